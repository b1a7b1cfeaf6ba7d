package runconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pspoerri/geogrid/internal/cog"
	"github.com/pspoerri/geogrid/internal/geogrid"
)

const sample = `
epsg: 32645
look_side: right
repeat_time: 1036800
image:
  pixels: 4000
  lines: 20000
  starting_range: 800000
  range_spacing: 10
  sensing_start: 2019-01-01T23:00:10.5Z
  prf: 1000
grid:
  xmin: 495000
  xmax: 505000
  ymin: 2995000
  ymax: 3005000
  xspacing: 100
  yspacing: 100
orbit: orbit.EOF
inputs:
  dem: dem.tif
  dem_datum: EGM96
  vx: s3://bucket/vx.tif
  vy: /data/vy.tif
outputs:
  pixel_line: out/window_location.tif
  ro2vx: out/ro2vx.tif
  ro2vy: out/ro2vy.tif
  compression: zstd
`

type fixedOrbit struct{}

func (fixedOrbit) StateAt(float64) (r3.Vec, r3.Vec, error) { return r3.Vec{}, r3.Vec{}, nil }

// dayScale counts seconds from midnight of 2019-01-01.
type dayScale struct{}

func (dayScale) Seconds(t time.Time) float64 {
	return t.Sub(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)).Seconds()
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	rf, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if rf.LookSide != geogrid.LookRight {
		t.Errorf("look side = %v", rf.LookSide)
	}
	want := time.Date(2019, 1, 1, 23, 0, 10, 500e6, time.UTC)
	if !rf.Image.SensingStart.Time.Equal(want) {
		t.Errorf("sensing start = %v, want %v", rf.Image.SensingStart.Time, want)
	}

	paths := []struct{ got, want string }{
		{rf.Orbit, filepath.Join(dir, "orbit.EOF")},
		{rf.Inputs.DEM, filepath.Join(dir, "dem.tif")},
		{rf.Inputs.VX, "s3://bucket/vx.tif"},
		{rf.Inputs.VY, "/data/vy.tif"},
		{rf.Outputs.PixelLine, filepath.Join(dir, "out/window_location.tif")},
	}
	for _, p := range paths {
		if p.got != p.want {
			t.Errorf("path = %q, want %q", p.got, p.want)
		}
	}

	in, out := rf.References()
	if len(in) != 4 || len(out) != 3 {
		t.Errorf("references: %d inputs, %d outputs", len(in), len(out))
	}

	cfg, err := rf.Config(fixedOrbit{}, dayScale{})
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.SensingStart != 82810.5 {
		t.Errorf("SensingStart = %v, want 82810.5", cfg.SensingStart)
	}
	if cfg.NumLines != 20000 || cfg.XSpacing != 100 || cfg.RO2VY != rf.Outputs.RO2VY {
		t.Errorf("config not copied: %+v", cfg)
	}

	geoid, err := rf.GeoidDEM()
	if err != nil || !geoid {
		t.Errorf("GeoidDEM = %v, %v", geoid, err)
	}
	wo, err := rf.WriteOptions()
	if err != nil || wo.Compression != cog.CompressionZSTD {
		t.Errorf("WriteOptions = %+v, %v", wo, err)
	}

	from, to, ok := rf.OrbitWindow(time.Minute)
	if !ok || !from.Equal(want.Add(-time.Minute)) || !to.Equal(want.Add(80*time.Second)) {
		t.Errorf("OrbitWindow = %v, %v, %v", from, to, ok)
	}
}

func TestParse_Instant(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		seconds float64
		isTime  bool
		ok      bool
	}{
		{"seconds", "100.25", 100.25, false, true},
		{"integer", "82810", 82810, false, true},
		{"timestamp", "2019-01-01T00:00:00Z", 0, true, true},
		{"offset timestamp", "2019-01-01T01:00:00+01:00", 0, true, true},
		{"garbage", "yesterday", 0, false, false},
		{"list", "[1, 2]", 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf, err := Parse(strings.NewReader("image:\n  sensing_start: " + tt.value + "\n"))
			if (err == nil) != tt.ok {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if !tt.ok {
				return
			}
			got := rf.Image.SensingStart
			if got.IsTime() != tt.isTime || got.Seconds != tt.seconds {
				t.Errorf("instant = %+v", got)
			}
			if tt.isTime && !got.Time.Equal(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("time = %v", got.Time)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"unknown key", "epsg: 4326\nbogus: 1\n"},
		{"bad look side", "look_side: up\n"},
		{"wrong type", "image:\n  pixels: many\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfig_Errors(t *testing.T) {
	rf, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rf.Config(fixedOrbit{}, nil); err == nil {
		t.Error("timestamp without a time scale: expected error")
	}

	rf.Image.PRF = 0
	if _, err := rf.Config(fixedOrbit{}, dayScale{}); !errors.Is(err, geogrid.ErrConfig) {
		t.Errorf("err = %v, want ErrConfig", err)
	}

	rf.Image.SensingStart = Instant{Seconds: 12}
	if _, _, ok := rf.OrbitWindow(time.Minute); ok {
		t.Error("OrbitWindow ok for a seconds sensing start")
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*File)
		field  string
	}{
		{"timestamp start without orbit", func(*File) {}, ""},
		{"bad epsg", func(f *File) { f.EPSG = 9999 }, "EPSG"},
		{"zero prf", func(f *File) { f.Image.PRF = 0 }, "PRF"},
		{"inverted grid", func(f *File) { f.Grid.XMin = f.Grid.XMax + 1 }, "XMin"},
		{"vx without vy", func(f *File) { f.Inputs.VY = "" }, "VX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf, err := Parse(strings.NewReader(sample))
			if err != nil {
				t.Fatal(err)
			}
			tt.modify(rf)
			err = rf.Check()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ce *geogrid.ConfigError
			if !errors.As(err, &ce) || ce.Field != tt.field {
				t.Errorf("Check() = %v, want %s error", err, tt.field)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	tests := []struct {
		datum, compression string
		geoid              bool
		want               uint16
		ok                 bool
	}{
		{"", "", false, cog.CompressionDeflate, true},
		{"ellipsoid", "none", false, cog.CompressionNone, true},
		{"egm96", "Deflate", true, cog.CompressionDeflate, true},
		{"navd88", "", false, 0, false},
		{"", "lzma", false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.datum+"/"+tt.compression, func(t *testing.T) {
			rf := &File{Inputs: Inputs{DEMDatum: tt.datum}, Outputs: Outputs{Compression: tt.compression}}
			geoid, gerr := rf.GeoidDEM()
			wo, werr := rf.WriteOptions()
			if ok := gerr == nil && werr == nil; ok != tt.ok {
				t.Fatalf("errors %v / %v, want ok=%v", gerr, werr, tt.ok)
			}
			if !tt.ok {
				return
			}
			if geoid != tt.geoid || wo.Compression != tt.want {
				t.Errorf("geoid=%v compression=%d", geoid, wo.Compression)
			}
		})
	}
}
