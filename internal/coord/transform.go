package coord

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Transformer converts projected map coordinates plus ellipsoidal height to
// ECEF. It is immutable and safe for concurrent use.
type Transformer struct {
	proj Projection
}

// NewTransformer returns a Transformer for the given EPSG code.
func NewTransformer(epsg int) (*Transformer, error) {
	p, err := Lookup(epsg)
	if err != nil {
		return nil, err
	}
	return &Transformer{proj: p}, nil
}

// Projection returns the underlying map projection.
func (t *Transformer) Projection() Projection {
	return t.proj
}

// ToGeodetic converts projected x/y to WGS84 longitude/latitude (degrees).
func (t *Transformer) ToGeodetic(x, y float64) (lon, lat float64) {
	return t.proj.ToWGS84(x, y)
}

// ToCartesian converts projected x/y and ellipsoidal height h to ECEF meters.
func (t *Transformer) ToCartesian(x, y, h float64) (r3.Vec, error) {
	lon, lat := t.proj.ToWGS84(x, y)
	if math.IsNaN(lon) || math.IsNaN(lat) || lat < -90 || lat > 90 {
		return r3.Vec{}, fmt.Errorf("EPSG:%d (%.3f, %.3f) has no geodetic position", t.proj.EPSG(), x, y)
	}
	return GeodeticToECEF(lon, lat, h), nil
}

// Basis holds ECEF unit vectors of the projected grid at one point.
type Basis struct {
	X      r3.Vec // direction of increasing projected x
	Y      r3.Vec // direction of increasing projected y
	Normal r3.Vec // ellipsoid normal (up)
}

// LocalBasis returns the ECEF directions of +x, +y and up at (x, y, h).
// The x/y directions are estimated by central differences of step map units
// and are tangent to the ellipsoid at height h, not orthogonalised.
func (t *Transformer) LocalBasis(x, y, h, step float64) (Basis, error) {
	xp, err := t.ToCartesian(x+step, y, h)
	if err != nil {
		return Basis{}, err
	}
	xm, err := t.ToCartesian(x-step, y, h)
	if err != nil {
		return Basis{}, err
	}
	yp, err := t.ToCartesian(x, y+step, h)
	if err != nil {
		return Basis{}, err
	}
	ym, err := t.ToCartesian(x, y-step, h)
	if err != nil {
		return Basis{}, err
	}

	lon, lat := t.proj.ToWGS84(x, y)
	return Basis{
		X:      r3.Unit(r3.Sub(xp, xm)),
		Y:      r3.Unit(r3.Sub(yp, ym)),
		Normal: EllipsoidNormal(lon, lat),
	}, nil
}
