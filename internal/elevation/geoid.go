package elevation

import (
	"math"

	"github.com/westphae/geomag/pkg/egm96"

	"github.com/pspoerri/geogrid/internal/coord"
)

// GeoidSource converts heights above the EGM96 geoid (mean sea level) to
// heights above the WGS-84 ellipsoid.
type GeoidSource struct {
	src  Source
	proj coord.Projection
}

// WithGeoid wraps a source of orthometric heights given in the projected
// CRS proj.
func WithGeoid(src Source, proj coord.Projection) *GeoidSource {
	return &GeoidSource{src: src, proj: proj}
}

func (g *GeoidSource) NewSampler() Sampler {
	return &geoidSampler{inner: g.src.NewSampler(), proj: g.proj}
}

type geoidSampler struct {
	inner Sampler
	proj  coord.Projection
}

func (s *geoidSampler) Sample(x, y float64) (float64, bool) {
	h, ok := s.inner.Sample(x, y)
	if !ok {
		return 0, false
	}
	n, ok := Undulation(s.proj.ToWGS84(x, y))
	if !ok {
		return 0, false
	}
	return h + n, true
}

// Err forwards the read error of the wrapped sampler, if it has one.
func (s *geoidSampler) Err() error {
	if e, ok := s.inner.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}

// Undulation returns the EGM96 geoid height above the WGS-84 ellipsoid at
// the given longitude/latitude (degrees).
func Undulation(lon, lat float64) (float64, bool) {
	if math.IsNaN(lon) || math.IsNaN(lat) || lat < -90 || lat > 90 {
		return 0, false
	}
	// A point on the ellipsoid sits -N above mean sea level.
	msl, err := egm96.NewLocationGeodetic(lat, lon, 0).HeightAboveMSL()
	if err != nil {
		return 0, false
	}
	return -msl, true
}
