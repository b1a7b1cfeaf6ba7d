package geogrid

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/pspoerri/geogrid/internal/cog"
	"github.com/pspoerri/geogrid/internal/elevation"
)

// Diagnostics summarizes a sweep.
type Diagnostics struct {
	Cells    int
	Valid    int
	Failures map[Failure]int // invalid cells by category

	// Valid cells whose offset hint or conversion factors are no-data.
	OffsetNoData int
	FactorNoData int

	Duration time.Duration
}

// Invalid returns the number of cells without a pixel/line solution.
func (d Diagnostics) Invalid() int {
	return d.Cells - d.Valid
}

func (d Diagnostics) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d cells, %d valid", d.Cells, d.Valid)
	for _, f := range Failures() {
		if n := d.Failures[f]; n > 0 {
			fmt.Fprintf(&b, ", %d %s", n, f)
		}
	}
	if d.OffsetNoData > 0 {
		fmt.Fprintf(&b, ", %d without offset hint", d.OffsetNoData)
	}
	if d.FactorNoData > 0 {
		fmt.Fprintf(&b, ", %d without conversion factors", d.FactorNoData)
	}
	fmt.Fprintf(&b, " in %s", d.Duration.Round(time.Millisecond))
	return b.String()
}

// Engine runs grid sweeps for one frozen configuration.
type Engine struct {
	plan   *plan
	in     Inputs
	solver *Solver
	log    *slog.Logger
}

// NewEngine validates the acquisition geometry of cfg and binds it to the
// given input sources. The file references of cfg are ignored. A zero
// output spacing takes the posting of in.DEM. A nil logger discards.
func NewEngine(cfg Config, in Inputs, logger *slog.Logger) (*Engine, error) {
	if err := cfg.validateGeometry(); err != nil {
		return nil, err
	}
	if cfg.Orbit == nil {
		return nil, configErr("Orbit", "missing orbit")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	dx, dy, _ := elevation.Posting(in.DEM)
	p, err := cfg.freeze(dx, dy)
	if err != nil {
		return nil, err
	}
	p.offset = p.factors && in.VX != nil

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		plan:   p,
		in:     in,
		solver: NewSolver(p.orbit, p.side),
		log:    logger,
	}, nil
}

// Grid returns the output grid layout.
func (e *Engine) Grid() Grid {
	return e.plan.grid
}

// Timing returns the image timing of the acquisition.
func (e *Engine) Timing() Timing {
	return e.plan.timing
}

// Solver returns the engine's imaging geometry solver.
func (e *Engine) Solver() *Solver {
	return e.solver
}

// SweepOptions tunes the parallel sweep.
type SweepOptions struct {
	Workers   int       // 0 uses GOMAXPROCS
	BatchRows int       // rows per work item, 0 selects 8
	Progress  io.Writer // progress bar destination, nil for none
}

type rowBatch struct {
	start, end int
}

// Sweep computes every grid cell. Rows are distributed in batches over the
// workers; each worker owns its samplers and writes a disjoint set of rows,
// so the result does not depend on the worker count. Cancelling ctx stops
// the sweep between batches and returns ctx.Err().
func (e *Engine) Sweep(ctx context.Context, opts SweepOptions) (*Products, error) {
	start := time.Now()
	g := e.plan.grid

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	batch := opts.BatchRows
	if batch <= 0 {
		batch = 8
	}
	workers = min(workers, (g.Rows+batch-1)/batch)

	e.log.Info("sweep starting",
		"cols", g.Cols, "rows", g.Rows, "epsg", e.plan.epsg,
		"workers", workers, "offset", e.plan.offset, "factors", e.plan.factors)

	out := newProducts(e.plan)
	var bar *progressBar
	if opts.Progress != nil {
		bar = newProgressBar(opts.Progress, g.Cells())
	}

	jobs := make(chan rowBatch, workers*2)
	eg, ectx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(jobs)
		for r := 0; r < g.Rows; r += batch {
			select {
			case jobs <- rowBatch{start: r, end: min(r+batch, g.Rows)}:
			case <-ectx.Done():
				return ectx.Err()
			}
		}
		return nil
	})

	tallies := make([]tally, workers)
	for i := range workers {
		w := e.newWorker(&tallies[i])
		eg.Go(func() error {
			for job := range jobs {
				if err := ectx.Err(); err != nil {
					return err
				}
				before := w.tally.valid
				for row := job.start; row < job.end; row++ {
					w.row(row, out)
				}
				bar.Add((job.end-job.start)*g.Cols, w.tally.valid-before)
				if err := w.s.err(); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := eg.Wait()
	bar.Finish()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := Diagnostics{Cells: g.Cells(), Failures: make(map[Failure]int)}
	for _, t := range tallies {
		d.Valid += t.valid
		d.OffsetNoData += t.offsetNoData
		d.FactorNoData += t.factorNoData
		for f, n := range t.failures {
			if n > 0 {
				d.Failures[Failure(f)] += n
			}
		}
	}
	d.Duration = time.Since(start)
	d.record()
	out.Diagnostics = d

	e.log.Info("sweep finished", "diagnostics", d.String())
	return out, nil
}

// tally counts cell outcomes of one worker.
type tally struct {
	valid        int
	failures     [numFailures]int
	offsetNoData int
	factorNoData int
}

// worker is the per-goroutine state of a sweep.
type worker struct {
	p      *plan
	solver *Solver
	s      samplers
	m, inv *mat.Dense
	tally  *tally
}

func (e *Engine) newWorker(t *tally) *worker {
	m, inv := newMatrices()
	return &worker{
		p:      e.plan,
		solver: e.solver,
		s:      e.in.newSamplers(),
		m:      m,
		inv:    inv,
		tally:  t,
	}
}

// cellResult is the outcome of one grid cell.
type cellResult struct {
	failure     Failure
	pixel, line int32

	offset    [2]int32
	hasOffset bool

	ro2vx, ro2vy [2]float64
	hasFactors   bool

	// time is the converged azimuth time, valid when converged is set.
	time      float64
	converged bool
}

// row processes one grid row from west to east. The first cell is seeded
// with the acquisition mid time, later cells with the previous converged
// time of the same row.
func (w *worker) row(row int, out *Products) {
	g := w.p.grid
	mid := w.p.timing.MidTime()
	seed := mid
	for col := range g.Cols {
		x, y := g.Center(col, row)
		res := w.cell(x, y, seed)
		out.set(row*g.Cols+col, &res)
		w.count(&res)
		if res.converged {
			seed = res.time
		} else {
			seed = mid
		}
	}
}

func (w *worker) count(r *cellResult) {
	if r.failure != FailNone {
		w.tally.failures[r.failure]++
		return
	}
	w.tally.valid++
	if w.p.offset && !r.hasOffset {
		w.tally.offsetNoData++
	}
	if w.p.factors && !r.hasFactors {
		w.tally.factorNoData++
	}
}

// cell geocodes the grid point (x, y).
func (w *worker) cell(x, y, seed float64) cellResult {
	var res cellResult
	h, ok := w.s.dem.Sample(x, y)
	if !ok {
		res.failure = FailDEMNoData
		return res
	}
	p, err := w.p.proj.ToCartesian(x, y, h)
	if err != nil {
		res.failure = FailOutOfBounds
		return res
	}

	sol := w.solver.Solve(p, seed)
	solverIterations.Observe(float64(sol.Iterations))
	if sol.Failure == FailNone || sol.Failure == FailLookSide {
		res.time, res.converged = sol.Time, true
	}
	if !sol.OK() {
		res.failure = sol.Failure
		return res
	}

	pixel, line, ok := w.p.timing.PixelLine(sol.Time, sol.Range)
	if !ok {
		res.failure = FailOutOfBounds
		return res
	}
	res.pixel, res.line = int32(pixel), int32(line)

	if !w.p.offset && !w.p.factors {
		return res
	}
	b, err := w.p.proj.LocalBasis(x, y, h, w.p.basisStep)
	if err != nil {
		return res
	}
	dhdx, dhdy := w.s.slope(x, y)
	if w.p.offset {
		res.offset, res.hasOffset = w.offsetHint(x, y, p, b, sol, dhdx, dhdy)
	}
	if w.p.factors {
		res.ro2vx, res.ro2vy, res.hasFactors = w.conversion(p, b, sol, dhdx, dhdy)
	}
	return res
}

// Options controls Run.
type Options struct {
	Sweep SweepOptions
	Write cog.WriteOptions
	// GeoidDEM converts DEM heights from EGM96 mean sea level to WGS-84
	// ellipsoidal heights.
	GeoidDEM bool
	// CacheBlocks is the per-sampler block cache size of raster inputs.
	// When zero, CacheBytes is split over all samplers of the sweep.
	CacheBlocks int
	CacheBytes  int64
	Logger      *slog.Logger
}

// Result is the outcome of a successful Run.
type Result struct {
	Grid        Grid
	Diagnostics Diagnostics
	Products    *Products
}

// Run validates cfg, opens its inputs, sweeps the grid, and writes the
// requested outputs. Outputs are written only after the whole sweep has
// succeeded.
func Run(ctx context.Context, cfg Config, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	in, closer, err := openInputs(cfg, opts)
	if err != nil {
		return nil, err
	}
	defer closer()

	eng, err := NewEngine(cfg, in, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Offset != "" && !eng.plan.offset {
		return nil, configErr("Offset", "offset hint cannot be computed with the given inputs")
	}

	prod, err := eng.Sweep(ctx, opts.Sweep)
	if err != nil {
		return nil, err
	}

	dst := Outputs{PixelLine: cfg.PixelLine, Offset: cfg.Offset, RO2VX: cfg.RO2VX, RO2VY: cfg.RO2VY}
	if err := prod.Write(dst, opts.Write); err != nil {
		return nil, err
	}
	logger.Info("outputs written", "pixel_line", cfg.PixelLine, "offset", cfg.Offset,
		"ro2vx", cfg.RO2VX, "ro2vy", cfg.RO2VY)

	return &Result{Grid: prod.Grid, Diagnostics: prod.Diagnostics, Products: prod}, nil
}
