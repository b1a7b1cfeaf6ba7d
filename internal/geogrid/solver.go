package geogrid

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// MaxIterations caps the Newton iteration of a single solve.
	MaxIterations = 51
	// TimeTolerance is the azimuth time step, in seconds, below which the
	// iteration has converged.
	TimeTolerance = 1e-8

	accelStep       = 1e-3 // finite-difference step for the acceleration, seconds
	degenerateRatio = 1e-6 // |f'| below this fraction of |V|² is treated as zero
)

// Solution is the imaging geometry of one ground point.
type Solution struct {
	Time       float64 // zero-Doppler azimuth time
	Range      float64 // slant range at Time, meters
	Position   r3.Vec  // satellite position at Time
	Velocity   r3.Vec  // satellite velocity at Time
	Iterations int
	Failure    Failure
}

// OK reports whether the iteration converged on the configured look side.
func (s Solution) OK() bool {
	return s.Failure == FailNone
}

// Solver finds the zero-Doppler time of ground points by Newton iteration
// on f(t) = (P − S(t))·V(t). It holds no mutable state and may be shared.
type Solver struct {
	orbit   Orbit
	side    LookSide
	maxIter int
	tol     float64
}

// NewSolver returns a solver for the given orbit and look side.
func NewSolver(o Orbit, side LookSide) *Solver {
	return &Solver{orbit: o, side: side, maxIter: MaxIterations, tol: TimeTolerance}
}

// Solve finds the imaging time of ECEF point p starting from seed.
func (s *Solver) Solve(p r3.Vec, seed float64) Solution {
	t := seed
	for iter := 1; iter <= s.maxIter; iter++ {
		pos, vel, err := s.orbit.StateAt(t)
		if err != nil {
			return Solution{Iterations: iter, Failure: FailNoConvergence}
		}
		acc, err := s.acceleration(t, vel)
		if err != nil {
			return Solution{Iterations: iter, Failure: FailNoConvergence}
		}

		los := r3.Sub(p, pos)
		f := r3.Dot(los, vel)
		vv := r3.Dot(vel, vel)
		fp := r3.Dot(los, acc) - vv
		if math.Abs(fp) < degenerateRatio*vv || vv == 0 {
			return Solution{Iterations: iter, Failure: FailDegenerate}
		}

		dt := f / fp
		t -= dt
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Solution{Iterations: iter, Failure: FailNoConvergence}
		}
		if math.Abs(dt) < s.tol {
			return s.finish(p, t, iter)
		}
	}
	return Solution{Iterations: s.maxIter, Failure: FailNoConvergence}
}

// finish evaluates the state at the converged time and checks the look side.
func (s *Solver) finish(p r3.Vec, t float64, iter int) Solution {
	pos, vel, err := s.orbit.StateAt(t)
	if err != nil {
		return Solution{Iterations: iter, Failure: FailNoConvergence}
	}
	sol := Solution{
		Time:       t,
		Range:      r3.Norm(r3.Sub(pos, p)),
		Position:   pos,
		Velocity:   vel,
		Iterations: iter,
	}
	if !s.side.sees(p, pos, vel) {
		sol.Failure = FailLookSide
	}
	return sol
}

// acceleration differentiates the velocity over accelStep, forward where
// the orbit allows and backward at the end of its domain.
func (s *Solver) acceleration(t float64, vel r3.Vec) (r3.Vec, error) {
	if _, next, err := s.orbit.StateAt(t + accelStep); err == nil {
		return r3.Scale(1/accelStep, r3.Sub(next, vel)), nil
	}
	_, prev, err := s.orbit.StateAt(t - accelStep)
	if err != nil {
		return r3.Vec{}, err
	}
	return r3.Scale(1/accelStep, r3.Sub(vel, prev)), nil
}

// sees reports whether p lies on this side of the track of a satellite at
// pos moving along vel. The cross product of the radial direction with the
// velocity points to the left of the track.
func (s LookSide) sees(p, pos, vel r3.Vec) bool {
	c := r3.Dot(r3.Sub(p, pos), r3.Cross(r3.Unit(pos), vel))
	switch s {
	case LookLeft:
		return c > 0
	case LookRight:
		return c < 0
	}
	return false
}
