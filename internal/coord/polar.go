package coord

import "math"

// PolarStereographic implements the Projection interface for an ellipsoidal
// polar stereographic projection (variant B: true scale at a standard
// parallel), following Snyder's "Map Projections: A Working Manual", ch. 21.
type PolarStereographic struct {
	epsg  int
	south bool
	lon0  float64 // radians
	ecc   float64
	amc   float64 // a * m(latTS)
	tc    float64 // t(latTS)
}

// NewPolarStereographic creates a polar stereographic projection.
// latTS and lon0 are in degrees; a negative latTS selects the south pole.
func NewPolarStereographic(epsg int, latTS, lon0 float64) *PolarStereographic {
	south := latTS < 0
	phiC := math.Abs(latTS) * deg2rad
	e := math.Sqrt(WGS84E2)
	sinC := math.Sin(phiC)
	mc := math.Cos(phiC) / math.Sqrt(1-WGS84E2*sinC*sinC)

	return &PolarStereographic{
		epsg:  epsg,
		south: south,
		lon0:  lon0 * deg2rad,
		ecc:   e,
		amc:   WGS84A * mc,
		tc:    isometricT(phiC, e),
	}
}

// polarForEPSG returns the polar stereographic projections commonly used
// for ice velocity products.
func polarForEPSG(epsg int) Projection {
	switch epsg {
	case 3031: // Antarctic Polar Stereographic
		return NewPolarStereographic(3031, -71, 0)
	case 3413: // NSIDC Sea Ice Polar Stereographic North
		return NewPolarStereographic(3413, 70, -45)
	case 3995: // Arctic Polar Stereographic
		return NewPolarStereographic(3995, 71, 0)
	}
	return nil
}

func isometricT(phi, e float64) float64 {
	s := e * math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-s)/(1+s), e/2)
}

func (ps *PolarStereographic) EPSG() int { return ps.epsg }

// FromWGS84 converts WGS84 longitude/latitude (degrees) to projected x/y.
func (ps *PolarStereographic) FromWGS84(lon, lat float64) (x, y float64) {
	phi := lat * deg2rad
	lam := lon*deg2rad - ps.lon0
	if ps.south {
		phi, lam = -phi, -lam
	}

	rho := ps.amc * isometricT(phi, ps.ecc) / ps.tc
	x = rho * math.Sin(lam)
	y = -rho * math.Cos(lam)

	if ps.south {
		x, y = -x, -y
	}
	return
}

// ToWGS84 converts projected x/y to WGS84 longitude/latitude (degrees).
func (ps *PolarStereographic) ToWGS84(x, y float64) (lon, lat float64) {
	if ps.south {
		x, y = -x, -y
	}

	rho := math.Hypot(x, y)
	t := rho * ps.tc / ps.amc

	phi := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 15; i++ {
		s := ps.ecc * math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-s)/(1+s), ps.ecc/2))
		if math.Abs(next-phi) < 1e-14 {
			phi = next
			break
		}
		phi = next
	}

	lam := math.Atan2(x, -y)
	if rho == 0 {
		lam = 0
	}

	if ps.south {
		phi, lam = -phi, -lam
	}

	lon = normalizeLon((lam + ps.lon0) / deg2rad)
	lat = phi / deg2rad
	return
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
