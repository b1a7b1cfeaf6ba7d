package coord

// SwissLV95 implements the Projection interface for EPSG:2056 (CH1903+ / LV95)
// with swisstopo's approximate polynomials (about 1 m accuracy). Alpine
// glacier grids are produced in this frame.
type SwissLV95 struct{}

// LV95 false origin (Bern).
const (
	lv95E0 = 2_600_000.0
	lv95N0 = 1_200_000.0
)

func (s *SwissLV95) EPSG() int { return 2056 }

// ToWGS84 converts Swiss LV95 easting/northing to WGS84 longitude/latitude (degrees).
func (s *SwissLV95) ToWGS84(easting, northing float64) (lon, lat float64) {
	// Auxiliary coordinates in 1000 km.
	y := (easting - lv95E0) / 1e6
	x := (northing - lv95N0) / 1e6

	// Results are in units of 10000 arc seconds.
	lam := 2.6779094 + y*(4.728982+x*(0.791484+0.1306*x)) - 0.0436*y*y*y
	phi := 16.9023892 + x*(3.238272-0.002528*x-0.0140*x*x) - y*y*(0.270978+0.0447*x)

	return lam * 100 / 36, phi * 100 / 36
}

// FromWGS84 converts WGS84 longitude/latitude (degrees) to Swiss LV95 easting/northing.
func (s *SwissLV95) FromWGS84(lon, lat float64) (easting, northing float64) {
	phi := (lat*3600 - 169028.66) / 1e4
	lam := (lon*3600 - 26782.5) / 1e4

	easting = 2_600_072.37 +
		lam*(211_455.93-phi*(10_938.51+0.36*phi)-44.54*lam*lam)
	northing = 1_200_147.07 +
		phi*(308_807.95+phi*(76.63+119.79*phi)) +
		lam*lam*(3_745.25-194.56*phi)
	return
}
