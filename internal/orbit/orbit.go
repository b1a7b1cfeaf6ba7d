// Package orbit models a satellite trajectory as an interpolated sequence of
// ECEF state vectors.
package orbit

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrOutOfDomain is returned when a state is requested outside the span
	// of the state vectors.
	ErrOutOfDomain = errors.New("orbit: time outside state vector span")
	// ErrTooFewVectors is returned when fewer than MinVectors are given.
	ErrTooFewVectors = errors.New("orbit: too few state vectors")
	// ErrUnsorted is returned when state vector times are not strictly increasing.
	ErrUnsorted = errors.New("orbit: state vector times not strictly increasing")
)

// MinVectors is the smallest number of state vectors an Orbit accepts.
const MinVectors = 4

// StateVector is a satellite position (m) and velocity (m/s) in ECEF at a
// time given in seconds since the orbit epoch.
type StateVector struct {
	Time     float64
	Position r3.Vec
	Velocity r3.Vec
}

// Orbit interpolates state vectors with a piecewise cubic Hermite
// polynomial per position component, using the velocities as derivatives.
// An Orbit is immutable and safe for concurrent use.
type Orbit struct {
	epoch      time.Time
	start, end float64
	n          int
	x, y, z    interp.PiecewiseCubic
}

// New builds an Orbit from state vectors sorted by time. Times are seconds
// since epoch.
func New(epoch time.Time, svs []StateVector) (*Orbit, error) {
	if len(svs) < MinVectors {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrTooFewVectors, len(svs), MinVectors)
	}

	n := len(svs)
	ts := make([]float64, n)
	px, py, pz := make([]float64, n), make([]float64, n), make([]float64, n)
	vx, vy, vz := make([]float64, n), make([]float64, n), make([]float64, n)
	for i, sv := range svs {
		if i > 0 && !(sv.Time > svs[i-1].Time) {
			return nil, fmt.Errorf("%w: vector %d at %.6f s follows %.6f s", ErrUnsorted, i, sv.Time, svs[i-1].Time)
		}
		if !finite(sv.Time) || !finiteVec(sv.Position) || !finiteVec(sv.Velocity) {
			return nil, fmt.Errorf("orbit: state vector %d is not finite", i)
		}
		ts[i] = sv.Time
		px[i], py[i], pz[i] = sv.Position.X, sv.Position.Y, sv.Position.Z
		vx[i], vy[i], vz[i] = sv.Velocity.X, sv.Velocity.Y, sv.Velocity.Z
	}

	o := &Orbit{epoch: epoch, start: ts[0], end: ts[n-1], n: n}
	o.x.FitWithDerivatives(ts, px, vx)
	o.y.FitWithDerivatives(ts, py, vy)
	o.z.FitWithDerivatives(ts, pz, vz)
	return o, nil
}

// StateAt returns the interpolated position and velocity at t seconds since
// the epoch. It fails with ErrOutOfDomain outside [start, end].
func (o *Orbit) StateAt(t float64) (pos, vel r3.Vec, err error) {
	if !(t >= o.start && t <= o.end) {
		return r3.Vec{}, r3.Vec{}, fmt.Errorf("%w: %.6f s not in [%.6f, %.6f]", ErrOutOfDomain, t, o.start, o.end)
	}
	pos = r3.Vec{X: o.x.Predict(t), Y: o.y.Predict(t), Z: o.z.Predict(t)}
	vel = r3.Vec{X: o.x.PredictDerivative(t), Y: o.y.PredictDerivative(t), Z: o.z.PredictDerivative(t)}
	return pos, vel, nil
}

// Domain returns the time span covered by the state vectors.
func (o *Orbit) Domain() (start, end float64) {
	return o.start, o.end
}

// Len returns the number of state vectors.
func (o *Orbit) Len() int {
	return o.n
}

// Epoch returns the reference time of the orbit's time scale.
func (o *Orbit) Epoch() time.Time {
	return o.epoch
}

// Seconds converts an absolute time to the orbit's time scale.
func (o *Orbit) Seconds(t time.Time) float64 {
	return t.Sub(o.epoch).Seconds()
}

// Time converts seconds in the orbit's time scale to an absolute time.
func (o *Orbit) Time(s float64) time.Time {
	whole := math.Floor(s)
	frac := s - whole
	return o.epoch.Add(time.Duration(whole) * time.Second).Add(time.Duration(frac * float64(time.Second)))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteVec(v r3.Vec) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}
