package geogrid

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pspoerri/geogrid/internal/coord"
)

// JacobianStep is the ground displacement, in meters, used to differentiate
// image position with respect to surface motion.
const JacobianStep = 10.0

// fractional returns the unrounded image position of a solution.
func (w *worker) fractional(sol Solution) (pixel, line float64) {
	return w.p.timing.Pixel(sol.Range), w.p.timing.Line(sol.Time)
}

// displaced solves p+d seeded with the undisplaced solution time.
func (w *worker) displaced(p, d r3.Vec, seed float64) (pixel, line float64, ok bool) {
	sol := w.solver.Solve(r3.Add(p, d), seed)
	if !sol.OK() {
		return 0, 0, false
	}
	pixel, line = w.fractional(sol)
	return pixel, line, true
}

// surfaceAxes returns the ground directions followed by unit horizontal
// motion along +x and +y on a surface with slope (dhdx, dhdy).
func surfaceAxes(b coord.Basis, dhdx, dhdy float64) (ex, ey r3.Vec) {
	ex = r3.Add(b.X, r3.Scale(dhdx, b.Normal))
	ey = r3.Add(b.Y, r3.Scale(dhdy, b.Normal))
	return ex, ey
}

// offsetHint predicts the (range, azimuth) pixel offset accumulated over
// the repeat interval by a surface moving at the hinted velocity.
func (w *worker) offsetHint(x, y float64, p r3.Vec, b coord.Basis, sol Solution, dhdx, dhdy float64) ([2]int32, bool) {
	vx, okx := w.s.vx.Sample(x, y)
	vy, oky := w.s.vy.Sample(x, y)
	if !okx || !oky {
		return [2]int32{}, false
	}
	ex, ey := surfaceAxes(b, dhdx, dhdy)
	d := r3.Scale(w.p.dtYears, r3.Add(r3.Scale(vx, ex), r3.Scale(vy, ey)))

	p1, l1, ok := w.displaced(p, d, sol.Time)
	if !ok {
		return [2]int32{}, false
	}
	p0, l0 := w.fractional(sol)
	dr, da := math.Round(p1-p0), math.Round(l1-l0)
	if !inInt32(dr) || !inInt32(da) {
		return [2]int32{}, false
	}
	return [2]int32{int32(dr), int32(da)}, true
}

// conversion returns the rows of the matrix taking a (range, azimuth)
// pixel offset measured over the repeat interval to (vx, vy) in m/yr.
func (w *worker) conversion(p r3.Vec, b coord.Basis, sol Solution, dhdx, dhdy float64) (ro2vx, ro2vy [2]float64, ok bool) {
	ex, ey := surfaceAxes(b, dhdx, dhdy)
	p0, l0 := w.fractional(sol)

	px, lx, okx := w.displaced(p, r3.Scale(JacobianStep, ex), sol.Time)
	py, ly, oky := w.displaced(p, r3.Scale(JacobianStep, ey), sol.Time)
	if !okx || !oky {
		return ro2vx, ro2vy, false
	}

	// Offsets in pixels per (m/yr) of velocity.
	k := w.p.dtYears / JacobianStep
	w.m.Set(0, 0, (px-p0)*k)
	w.m.Set(0, 1, (py-p0)*k)
	w.m.Set(1, 0, (lx-l0)*k)
	w.m.Set(1, 1, (ly-l0)*k)
	if err := w.inv.Inverse(w.m); err != nil {
		return ro2vx, ro2vy, false
	}

	ro2vx = [2]float64{w.inv.At(0, 0), w.inv.At(0, 1)}
	ro2vy = [2]float64{w.inv.At(1, 0), w.inv.At(1, 1)}
	for _, v := range [4]float64{ro2vx[0], ro2vx[1], ro2vy[0], ro2vy[1]} {
		if !finite(v) {
			return [2]float64{}, [2]float64{}, false
		}
	}
	return ro2vx, ro2vy, true
}

func inInt32(v float64) bool {
	return v > NoData && v <= math.MaxInt32
}

func newMatrices() (m, inv *mat.Dense) {
	return mat.NewDense(2, 2, nil), mat.NewDense(2, 2, nil)
}
