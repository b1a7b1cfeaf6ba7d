package geogrid

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pspoerri/geogrid/internal/coord"
	"github.com/pspoerri/geogrid/internal/elevation"
)

// Orbit yields the satellite state at a time in seconds. It must fail
// outside its time domain and be safe for concurrent use.
type Orbit interface {
	StateAt(t float64) (pos, vel r3.Vec, err error)
}

// Sampler returns a raster value at a projected coordinate; ok is false for
// no-data and outside coverage.
type Sampler = elevation.Sampler

// Source hands out one Sampler per worker.
type Source = elevation.Source

// Projector maps grid coordinates and ellipsoidal height to ECEF.
type Projector interface {
	ToCartesian(x, y, h float64) (r3.Vec, error)
	LocalBasis(x, y, h, step float64) (coord.Basis, error)
}

// Inputs are the rasters sampled during a sweep, all in the grid's CRS.
// DEM is required. VX/VY (m/yr) enable the offset hint; DHDX/DHDY are
// dimensionless surface slopes and default to flat.
type Inputs struct {
	DEM        Source
	VX, VY     Source
	DHDX, DHDY Source
}

func (in Inputs) validate() error {
	if in.DEM == nil {
		return configErr("DEM", "missing elevation source")
	}
	if (in.VX == nil) != (in.VY == nil) {
		return configErr("VX", "velocity hints need both VX and VY")
	}
	if (in.DHDX == nil) != (in.DHDY == nil) {
		return configErr("DHDX", "slopes need both DHDX and DHDY")
	}
	return nil
}

// samplers is the private set of samplers owned by one worker.
type samplers struct {
	dem, vx, vy, dhdx, dhdy Sampler
}

func (in Inputs) newSamplers() samplers {
	s := samplers{dem: in.DEM.NewSampler()}
	if in.VX != nil {
		s.vx, s.vy = in.VX.NewSampler(), in.VY.NewSampler()
	}
	if in.DHDX != nil {
		s.dhdx, s.dhdy = in.DHDX.NewSampler(), in.DHDY.NewSampler()
	}
	return s
}

// slope returns the surface gradient at (x, y), zero where unknown.
func (s *samplers) slope(x, y float64) (dhdx, dhdy float64) {
	if s.dhdx == nil {
		return 0, 0
	}
	gx, okx := s.dhdx.Sample(x, y)
	gy, oky := s.dhdy.Sample(x, y)
	if !okx || !oky {
		return 0, 0
	}
	return gx, gy
}

// err reports the first read error of a file-backed sampler, if any.
func (s *samplers) err() error {
	named := []struct {
		name string
		s    Sampler
	}{{"dem", s.dem}, {"vx", s.vx}, {"vy", s.vy}, {"dhdx", s.dhdx}, {"dhdy", s.dhdy}}
	for _, n := range named {
		e, ok := n.s.(interface{ Err() error })
		if !ok {
			continue
		}
		if err := e.Err(); err != nil {
			return &ResourceError{Resource: n.name, Err: err}
		}
	}
	return nil
}
