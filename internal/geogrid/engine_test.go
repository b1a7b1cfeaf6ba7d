package geogrid

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pspoerri/geogrid/internal/cog"
	"github.com/pspoerri/geogrid/internal/coord"
	"github.com/pspoerri/geogrid/internal/elevation"
	"github.com/pspoerri/geogrid/internal/orbit"
)

const sceneSensingStart = 100.0

// sceneOrbit is a circular orbit 700 km above the scene center of
// sceneConfig. At sensing start + 10 s the satellite is 390 km east of the
// center heading north, so the scene is on its left.
func sceneOrbit(t *testing.T) orbit.Circular {
	t.Helper()
	proj, err := coord.Lookup(32645)
	if err != nil {
		t.Fatal(err)
	}
	lon, lat := proj.ToWGS84(500000, 3000000)
	c := coord.GeodeticToECEF(lon, lat, 0)

	up := r3.Unit(c)
	east := r3.Vec{X: -math.Sin(lon * math.Pi / 180), Y: math.Cos(lon * math.Pi / 180)}
	north := r3.Cross(up, east)
	theta := 390e3 / r3.Norm(c)
	u := r3.Add(r3.Scale(math.Cos(theta), up), r3.Scale(math.Sin(theta), east))

	o, err := orbit.NewCircular(u, north, r3.Norm(c)+700e3, 7500, sceneSensingStart+10)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

// sceneConfig is a 100 × 100 grid over a 10 km box in UTM 45N.
func sceneConfig(t *testing.T) Config {
	return Config{
		EPSG:          32645,
		RepeatTime:    12 * 24 * 3600,
		NumPixels:     4000,
		NumLines:      20000,
		StartingRange: 800000,
		RangeSpacing:  10,
		SensingStart:  sceneSensingStart,
		PRF:           1000,
		LookSide:      LookLeft,
		XMin:          495000,
		XMax:          505000,
		YMin:          2995000,
		YMax:          3005000,
		XSpacing:      100,
		YSpacing:      100,
		Orbit:         sceneOrbit(t),
	}
}

func sweep(t *testing.T, cfg Config, in Inputs, opts SweepOptions) *Products {
	t.Helper()
	eng, err := NewEngine(cfg, in, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	out, err := eng.Sweep(context.Background(), opts)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	return out
}

func TestSweep_EndToEndScene(t *testing.T) {
	out := sweep(t, sceneConfig(t), Inputs{DEM: elevation.Constant(0)}, SweepOptions{Workers: 4})

	g := out.Grid
	if g.Cols != 100 || g.Rows != 100 {
		t.Fatalf("grid = %dx%d, want 100x100", g.Cols, g.Rows)
	}
	for _, r := range []*cog.Raster[float64]{out.RO2VX, out.RO2VY} {
		if r == nil || r.Width != 100 || r.Height != 100 || len(r.Bands) != 2 {
			t.Fatal("conversion rasters missing or mis-sized")
		}
	}
	if out.PixelLine.Width != 100 || out.PixelLine.Height != 100 || len(out.PixelLine.Bands) != 2 {
		t.Fatal("pixel/line raster mis-sized")
	}
	if out.Offset != nil {
		t.Error("offset raster without velocity hints")
	}

	d := out.Diagnostics
	if d.Cells != 10000 || d.Valid != 10000 || d.Invalid() != 0 {
		t.Fatalf("diagnostics: %v", d)
	}

	// Center cell is imaged about 10 s into the acquisition, roughly 811.6 km away.
	_, line, _ := out.At(50, 50)
	if math.Abs(float64(line)-10000) > 100 {
		t.Errorf("center line = %d, want about 10000", line)
	}
	pixel, _, _ := out.At(50, 50)
	if math.Abs(float64(pixel)-1160) > 20 {
		t.Errorf("center pixel = %d, want about 1160", pixel)
	}

	for row := range g.Rows {
		for col := range g.Cols {
			p, l, ok := out.At(col, row)
			if !ok {
				t.Fatalf("no-data at (%d, %d)", col, row)
			}
			// Row 0 is north: lines decrease with row index.
			if row > 0 {
				if _, above, _ := out.At(col, row-1); !(l < above) {
					t.Fatalf("line not increasing northward at (%d, %d): %d vs %d", col, row, l, above)
				}
			}
			// The satellite is east of the scene: range decreases eastward.
			if col > 0 {
				if west, _, _ := out.At(col-1, row); !(p < west) {
					t.Fatalf("pixel not decreasing eastward at (%d, %d): %d vs %d", col, row, p, west)
				}
			}

			i := row*g.Cols + col
			vx := [2]float64{out.RO2VX.Bands[0][i], out.RO2VX.Bands[1][i]}
			vy := [2]float64{out.RO2VY.Bands[0][i], out.RO2VY.Bands[1][i]}
			for _, v := range [4]float64{vx[0], vx[1], vy[0], vy[1]} {
				if math.IsNaN(v) || math.IsInf(v, 0) || v == NoData {
					t.Fatalf("non-finite factor at (%d, %d): %v %v", col, row, vx, vy)
				}
			}
			// Eastward motion shortens the range, northward motion delays the line.
			if !(vx[0] < 0) || !(vy[1] > 0) {
				t.Fatalf("factor signs at (%d, %d): ro2vx %v ro2vy %v", col, row, vx, vy)
			}
		}
	}
}

func TestSweep_NadirAdjacentPointAtSensingStart(t *testing.T) {
	o := northbound()
	cfg := Config{
		EPSG:          4326,
		NumPixels:     1000,
		NumLines:      1000,
		StartingRange: 700000,
		RangeSpacing:  1,
		SensingStart:  0,
		PRF:           1000,
		LookSide:      LookLeft,
		XMin:          -0.0101,
		XMax:          -0.0099,
		YMin:          -0.0001,
		YMax:          0.0001,
		XSpacing:      0.0002,
		YSpacing:      0.0002,
		Orbit:         o,
	}
	out := sweep(t, cfg, Inputs{DEM: elevation.Constant(0)}, SweepOptions{})

	if out.Grid.Cols != 1 || out.Grid.Rows != 1 {
		t.Fatalf("grid = %dx%d, want 1x1", out.Grid.Cols, out.Grid.Rows)
	}
	pixel, line, ok := out.At(0, 0)
	if !ok {
		t.Fatalf("no solution: %v", out.Diagnostics)
	}
	if line != 0 {
		t.Errorf("line = %d, want 0", line)
	}
	p := coord.GeodeticToECEF(-0.01, 0, 0)
	want := math.Round(r3.Norm(r3.Sub(o.s0, p)) - 700000)
	if float64(pixel) != want {
		t.Errorf("pixel = %d, want %v", pixel, want)
	}
	if out.RO2VX != nil {
		t.Error("conversion factors without repeat time")
	}

	cfg.LookSide = LookRight
	out = sweep(t, cfg, Inputs{DEM: elevation.Constant(0)}, SweepOptions{})
	if _, _, ok := out.At(0, 0); ok {
		t.Error("right-looking sensor accepted a point left of the track")
	}
	if out.Diagnostics.Failures[FailLookSide] != 1 {
		t.Errorf("diagnostics: %v", out.Diagnostics)
	}
}

func TestSweep_LookSideMismatch(t *testing.T) {
	cfg := sceneConfig(t)
	cfg.LookSide = LookRight
	out := sweep(t, cfg, Inputs{DEM: elevation.Constant(0)}, SweepOptions{})

	if out.Diagnostics.Valid != 0 || out.Diagnostics.Failures[FailLookSide] != 10000 {
		t.Fatalf("diagnostics: %v", out.Diagnostics)
	}
	for i, v := range out.RO2VX.Bands[0] {
		if v != NoData {
			t.Fatalf("cell %d: factor %v at an invalid cell", i, v)
		}
	}
}

func TestSweep_OutOfBounds(t *testing.T) {
	cfg := sceneConfig(t)
	cfg.NumPixels = 1160 // swath ends at the scene center
	cfg.NumLines = 10000 // acquisition ends at the scene center
	out := sweep(t, cfg, Inputs{DEM: elevation.Constant(0)}, SweepOptions{Workers: 3})

	d := out.Diagnostics
	if d.Failures[FailOutOfBounds] == 0 || d.Valid == 0 {
		t.Fatalf("expected a partial cover: %v", d)
	}
	if d.Valid+d.Failures[FailOutOfBounds] != d.Cells {
		t.Fatalf("unexpected failure categories: %v", d)
	}
	valid := 0
	for i := range out.PixelLine.Bands[0] {
		p, l := out.PixelLine.Bands[0][i], out.PixelLine.Bands[1][i]
		if p == NoData {
			if l != NoData || out.RO2VX.Bands[0][i] != NoData || out.RO2VY.Bands[1][i] != NoData {
				t.Fatalf("cell %d: partially written no-data cell", i)
			}
			continue
		}
		valid++
		if p < 0 || int(p) >= cfg.NumPixels || l < 0 || int(l) >= cfg.NumLines {
			t.Fatalf("cell %d: (%d, %d) outside the image", i, p, l)
		}
	}
	if valid != d.Valid {
		t.Errorf("%d valid cells in the raster, diagnostics say %d", valid, d.Valid)
	}
}

func TestSweep_DEMNoData(t *testing.T) {
	dem := elevation.Func(func(x, y float64) (float64, bool) {
		return 0, y > 3000000
	})
	out := sweep(t, sceneConfig(t), Inputs{DEM: dem}, SweepOptions{})
	if got := out.Diagnostics.Failures[FailDEMNoData]; got != 5000 {
		t.Errorf("dem no-data cells = %d, want 5000", got)
	}
	if _, _, ok := out.At(10, 99); ok {
		t.Error("cell without elevation has a solution")
	}
}

func TestSweep_Deterministic(t *testing.T) {
	cfg := sceneConfig(t)
	vel := elevation.Constant(400)
	in := Inputs{DEM: elevation.Constant(250), VX: vel, VY: vel}

	encode := func(out *Products) [][]byte {
		var all [][]byte
		for _, b := range []func() ([]byte, error){
			func() ([]byte, error) { return cog.Encode(out.PixelLine, cog.WriteOptions{}) },
			func() ([]byte, error) { return cog.Encode(out.Offset, cog.WriteOptions{}) },
			func() ([]byte, error) { return cog.Encode(out.RO2VX, cog.WriteOptions{}) },
			func() ([]byte, error) { return cog.Encode(out.RO2VY, cog.WriteOptions{}) },
		} {
			data, err := b()
			if err != nil {
				t.Fatal(err)
			}
			all = append(all, data)
		}
		return all
	}

	ref := encode(sweep(t, cfg, in, SweepOptions{Workers: 1}))
	for _, opts := range []SweepOptions{
		{Workers: 1},
		{Workers: 4, BatchRows: 3},
		{Workers: 16, BatchRows: 1},
	} {
		got := encode(sweep(t, cfg, in, opts))
		for i := range ref {
			if !bytes.Equal(ref[i], got[i]) {
				t.Errorf("workers=%d batch=%d: product %d differs", opts.Workers, opts.BatchRows, i)
			}
		}
	}
}

func TestSweep_OffsetHint(t *testing.T) {
	cfg := sceneConfig(t)
	// 3650 m/yr east over 12 days moves the surface 120 m.
	vx := elevation.Func(func(x, y float64) (float64, bool) {
		return 3650, x > 500000
	})
	in := Inputs{DEM: elevation.Constant(0), VX: vx, VY: elevation.Constant(0)}
	out := sweep(t, cfg, in, SweepOptions{Workers: 2})

	d := out.Diagnostics
	if d.Valid != 10000 || d.OffsetNoData != 5000 {
		t.Fatalf("diagnostics: %v", d)
	}
	for row := range out.Grid.Rows {
		for col := range out.Grid.Cols {
			i := row*out.Grid.Cols + col
			dr, da := out.Offset.Bands[0][i], out.Offset.Bands[1][i]
			if col < 50 {
				if dr != NoData || da != NoData {
					t.Fatalf("(%d, %d): offset %d, %d without a hint", col, row, dr, da)
				}
				continue
			}
			if dr >= 0 || da != 0 {
				t.Fatalf("(%d, %d): offset %d, %d for eastward motion", col, row, dr, da)
			}
			// The conversion factors map the offset back to the hint.
			k := out.RO2VX.Bands[0][i]
			if v := k*float64(dr) + out.RO2VX.Bands[1][i]*float64(da); math.Abs(v-3650) > 0.6*math.Abs(k) {
				t.Fatalf("(%d, %d): offset %d converts to %v m/yr", col, row, dr, v)
			}
		}
	}
}

func TestSweep_SlopeChangesFactors(t *testing.T) {
	cfg := sceneConfig(t)
	flat := sweep(t, cfg, Inputs{DEM: elevation.Constant(0), VX: elevation.Constant(0), VY: elevation.Constant(0)}, SweepOptions{})
	tilted := sweep(t, cfg, Inputs{
		DEM:  elevation.Constant(0),
		VX:   elevation.Constant(0),
		VY:   elevation.Constant(0),
		DHDX: elevation.Constant(0.2),
		DHDY: elevation.Constant(0),
	}, SweepOptions{})

	i := 50*100 + 50
	a, b := flat.RO2VX.Bands[0][i], tilted.RO2VX.Bands[0][i]
	if a == b || math.IsNaN(b) || b == NoData {
		t.Errorf("slope left ro2vx unchanged or invalid: %v vs %v", a, b)
	}
}

func TestSweep_Cancelled(t *testing.T) {
	eng, err := NewEngine(sceneConfig(t), Inputs{DEM: elevation.Constant(0)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.Sweep(ctx, SweepOptions{Workers: 2}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type failingSampler struct{ err error }

func (s failingSampler) Sample(x, y float64) (float64, bool) { return 0, false }
func (s failingSampler) Err() error                          { return s.err }

type failingSource struct{ err error }

func (s failingSource) NewSampler() Sampler { return failingSampler(s) }

func TestSweep_SamplerReadError(t *testing.T) {
	cause := errors.New("corrupt block")
	eng, err := NewEngine(sceneConfig(t), Inputs{DEM: failingSource{cause}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = eng.Sweep(context.Background(), SweepOptions{})
	var re *ResourceError
	if !errors.As(err, &re) || re.Resource != "dem" || !errors.Is(err, cause) {
		t.Errorf("err = %v, want dem ResourceError", err)
	}
}

func TestNewEngine_Errors(t *testing.T) {
	cfg := sceneConfig(t)
	tests := []struct {
		name string
		cfg  func() Config
		in   Inputs
	}{
		{"no dem", func() Config { return cfg }, Inputs{}},
		{"vx only", func() Config { return cfg }, Inputs{DEM: elevation.Constant(0), VX: elevation.Constant(1)}},
		{"no spacing", func() Config {
			c := cfg
			c.XSpacing, c.YSpacing = 0, 0
			return c
		}, Inputs{DEM: elevation.Constant(0)}},
		{"bad prf", func() Config {
			c := cfg
			c.PRF = -1
			return c
		}, Inputs{DEM: elevation.Constant(0)}},
		{"no orbit", func() Config {
			c := cfg
			c.Orbit = nil
			return c
		}, Inputs{DEM: elevation.Constant(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.cfg(), tt.in, nil); !errors.Is(err, ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestSweep_Metrics(t *testing.T) {
	okBefore := testutil.ToFloat64(cellsTotal.WithLabelValues("ok"))
	sideBefore := testutil.ToFloat64(cellsTotal.WithLabelValues("look_side"))

	cfg := sceneConfig(t)
	cfg.XSpacing, cfg.YSpacing = 1000, 1000
	sweep(t, cfg, Inputs{DEM: elevation.Constant(0)}, SweepOptions{})
	cfg.LookSide = LookRight
	sweep(t, cfg, Inputs{DEM: elevation.Constant(0)}, SweepOptions{})

	if got := testutil.ToFloat64(cellsTotal.WithLabelValues("ok")) - okBefore; got != 100 {
		t.Errorf("ok cells counted = %v, want 100", got)
	}
	if got := testutil.ToFloat64(cellsTotal.WithLabelValues("look_side")) - sideBefore; got != 100 {
		t.Errorf("look_side cells counted = %v, want 100", got)
	}
}

func TestDiagnostics_String(t *testing.T) {
	d := Diagnostics{
		Cells:        10,
		Valid:        7,
		Failures:     map[Failure]int{FailDEMNoData: 2, FailOutOfBounds: 1},
		FactorNoData: 1,
	}
	s := d.String()
	for _, want := range []string{"10 cells", "7 valid", "2 dem_nodata", "1 out_of_bounds", "1 without conversion factors"} {
		if !strings.Contains(s, want) {
			t.Errorf("%q does not contain %q", s, want)
		}
	}
}
