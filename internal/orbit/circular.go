package orbit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Circular is an analytic orbit on a circle centred at the Earth's center,
// expressed directly in ECEF (Earth rotation is ignored). It is used to
// build synthetic scenes.
type Circular struct {
	Radius  float64 // m
	Speed   float64 // m/s
	U, W    r3.Vec  // orthonormal plane basis; at RefTime the satellite is at Radius*U moving along W
	RefTime float64 // s
}

// NewCircular returns a circular orbit through radius*unit(u) at refTime,
// moving towards w. w is orthogonalised against u.
func NewCircular(u, w r3.Vec, radius, speed, refTime float64) (Circular, error) {
	if radius <= 0 || speed <= 0 {
		return Circular{}, fmt.Errorf("orbit: radius and speed must be positive (got %g, %g)", radius, speed)
	}
	if r3.Norm(u) == 0 {
		return Circular{}, fmt.Errorf("orbit: zero position direction")
	}
	u = r3.Unit(u)
	w = r3.Sub(w, r3.Scale(r3.Dot(w, u), u))
	if r3.Norm(w) < 1e-12 {
		return Circular{}, fmt.Errorf("orbit: direction of motion parallel to position")
	}
	return Circular{Radius: radius, Speed: speed, U: u, W: r3.Unit(w), RefTime: refTime}, nil
}

// StateAt returns the exact position and velocity at time t. It never fails.
func (c Circular) StateAt(t float64) (pos, vel r3.Vec, err error) {
	theta := c.Speed / c.Radius * (t - c.RefTime)
	sin, cos := math.Sincos(theta)
	pos = r3.Add(r3.Scale(c.Radius*cos, c.U), r3.Scale(c.Radius*sin, c.W))
	vel = r3.Add(r3.Scale(-c.Speed*sin, c.U), r3.Scale(c.Speed*cos, c.W))
	return pos, vel, nil
}

// Sample returns state vectors every dt seconds from t0 up to and including t1.
func (c Circular) Sample(t0, t1, dt float64) []StateVector {
	if dt <= 0 || t1 < t0 {
		return nil
	}
	n := int(math.Floor((t1-t0)/dt+1e-9)) + 1
	svs := make([]StateVector, 0, n)
	for i := 0; i < n; i++ {
		t := t0 + float64(i)*dt
		p, v, _ := c.StateAt(t)
		svs = append(svs, StateVector{Time: t, Position: p, Velocity: v})
	}
	return svs
}
