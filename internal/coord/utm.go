package coord

import "math"

// WGS-84 ellipsoid parameters.
const (
	WGS84A  = 6378137.0             // semi-major axis (meters)
	WGS84F  = 1.0 / 298.257223563   // flattening
	WGS84E2 = WGS84F * (2 - WGS84F) // first eccentricity squared
)

const deg2rad = math.Pi / 180.0

// TransverseMercator implements the Projection interface for a transverse
// Mercator projection on the WGS-84 ellipsoid using the 4th-order Krüger
// series. Accuracy is well below a millimeter within ±4° of the central
// meridian, which covers a UTM zone with margin.
type TransverseMercator struct {
	epsg   int
	lon0   float64 // central meridian (radians)
	k0     float64
	falseE float64
	falseN float64
	scaleA float64 // k0 * rectifying radius
	alpha  [4]float64
	beta   [4]float64
	delta  [4]float64
	ecc    float64
}

// NewUTM returns the UTM projection for zone 1..60 in the given hemisphere.
func NewUTM(zone int, north bool) *TransverseMercator {
	epsg := 32600 + zone
	falseN := 0.0
	if !north {
		epsg = 32700 + zone
		falseN = 10_000_000
	}
	lon0 := float64(zone*6-183) * deg2rad
	return newTransverseMercator(epsg, lon0, 0.9996, 500_000, falseN)
}

func newTransverseMercator(epsg int, lon0, k0, falseE, falseN float64) *TransverseMercator {
	n := WGS84F / (2 - WGS84F)
	n2 := n * n
	n3 := n2 * n
	n4 := n3 * n

	rect := WGS84A / (1 + n) * (1 + n2/4 + n4/64)

	return &TransverseMercator{
		epsg:   epsg,
		lon0:   lon0,
		k0:     k0,
		falseE: falseE,
		falseN: falseN,
		scaleA: k0 * rect,
		alpha: [4]float64{
			n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180,
			13*n2/48 - 3*n3/5 + 557*n4/1440,
			61*n3/240 - 103*n4/140,
			49561 * n4 / 161280,
		},
		beta: [4]float64{
			n/2 - 2*n2/3 + 37*n3/96 - n4/360,
			n2/48 + n3/15 - 437*n4/1440,
			17*n3/480 - 37*n4/840,
			4397 * n4 / 161280,
		},
		delta: [4]float64{
			2*n - 2*n2/3 - 2*n3 + 116*n4/45,
			7*n2/3 - 8*n3/5 - 227*n4/45,
			56*n3/15 - 136*n4/35,
			4279 * n4 / 630,
		},
		ecc: 2 * math.Sqrt(n) / (1 + n),
	}
}

func (tm *TransverseMercator) EPSG() int { return tm.epsg }

// FromWGS84 converts WGS84 longitude/latitude (degrees) to easting/northing.
func (tm *TransverseMercator) FromWGS84(lon, lat float64) (x, y float64) {
	phi := lat * deg2rad
	lam := lon*deg2rad - tm.lon0

	e := tm.ecc
	sinPhi := math.Sin(phi)
	t := math.Sinh(math.Atanh(sinPhi) - e*math.Atanh(e*sinPhi))

	xiP := math.Atan2(t, math.Cos(lam))
	etaP := math.Atanh(math.Sin(lam) / math.Sqrt(1+t*t))

	xi, eta := xiP, etaP
	for j := 1; j <= 4; j++ {
		a := tm.alpha[j-1]
		k := 2 * float64(j)
		xi += a * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += a * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	x = tm.falseE + tm.scaleA*eta
	y = tm.falseN + tm.scaleA*xi
	return
}

// ToWGS84 converts easting/northing to WGS84 longitude/latitude (degrees).
func (tm *TransverseMercator) ToWGS84(x, y float64) (lon, lat float64) {
	xi := (y - tm.falseN) / tm.scaleA
	eta := (x - tm.falseE) / tm.scaleA

	xiP, etaP := xi, eta
	for j := 1; j <= 4; j++ {
		b := tm.beta[j-1]
		k := 2 * float64(j)
		xiP -= b * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= b * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	phi := chi
	for j := 1; j <= 4; j++ {
		phi += tm.delta[j-1] * math.Sin(2*float64(j)*chi)
	}

	lam := tm.lon0 + math.Atan2(math.Sinh(etaP), math.Cos(xiP))

	lon = lam / deg2rad
	lat = phi / deg2rad
	return
}
