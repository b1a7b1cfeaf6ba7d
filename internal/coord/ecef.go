package coord

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// GeodeticToECEF converts WGS-84 geodetic coordinates (degrees, meters above
// the ellipsoid) to Earth-centered Earth-fixed Cartesian meters.
func GeodeticToECEF(lonDeg, latDeg, h float64) r3.Vec {
	lat := latDeg * deg2rad
	lon := lonDeg * deg2rad

	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	// Radius of curvature in the prime vertical.
	N := WGS84A / math.Sqrt(1-WGS84E2*sinLat*sinLat)

	return r3.Vec{
		X: (N + h) * cosLat * cosLon,
		Y: (N + h) * cosLat * sinLon,
		Z: (N*(1-WGS84E2) + h) * sinLat,
	}
}

// ECEFToGeodetic converts ECEF meters to WGS-84 longitude/latitude (degrees)
// and ellipsoidal height using Bowring's iteration.
func ECEFToGeodetic(p r3.Vec) (lonDeg, latDeg, h float64) {
	lon := math.Atan2(p.Y, p.X)
	rho := math.Hypot(p.X, p.Y)

	lat := math.Atan2(p.Z, rho*(1-WGS84E2))
	for i := 0; i < 6; i++ {
		sinLat := math.Sin(lat)
		N := WGS84A / math.Sqrt(1-WGS84E2*sinLat*sinLat)
		lat = math.Atan2(p.Z+WGS84E2*N*sinLat, rho)
	}

	sinLat, cosLat := math.Sincos(lat)
	N := WGS84A / math.Sqrt(1-WGS84E2*sinLat*sinLat)
	if math.Abs(cosLat) > 1e-10 {
		h = rho/cosLat - N
	} else {
		h = math.Abs(p.Z)/math.Abs(sinLat) - N*(1-WGS84E2)
	}

	return lon / deg2rad, lat / deg2rad, h
}

// EllipsoidNormal returns the outward unit normal of the WGS-84 ellipsoid at
// the given geodetic position.
func EllipsoidNormal(lonDeg, latDeg float64) r3.Vec {
	sinLat, cosLat := math.Sincos(latDeg * deg2rad)
	sinLon, cosLon := math.Sincos(lonDeg * deg2rad)
	return r3.Vec{X: cosLat * cosLon, Y: cosLat * sinLon, Z: sinLat}
}
