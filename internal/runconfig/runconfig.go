// Package runconfig reads the YAML run file of the geogrid command and
// turns it into a geogrid.Config.
package runconfig

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pspoerri/geogrid/internal/cog"
	"github.com/pspoerri/geogrid/internal/geogrid"
	"github.com/pspoerri/geogrid/internal/remote"
)

// File is the on-disk run description.
//
//	epsg: 32645
//	look_side: left            # or right, or the integers 1 / -1
//	repeat_time: 1036800       # seconds
//	image:
//	  pixels: 4000
//	  lines: 20000
//	  starting_range: 800000
//	  range_spacing: 10
//	  sensing_start: 2019-01-01T23:00:10.5Z   # or seconds in the orbit time scale
//	  prf: 1000
//	grid: {xmin: 495000, xmax: 505000, ymin: 2995000, ymax: 3005000, xspacing: 100, yspacing: 100}
//	orbit: S1A_OPER_AUX_POEORB.EOF
//	inputs: {dem: dem.tif, dem_datum: egm96, vx: vx.tif, vy: vy.tif}
//	outputs: {pixel_line: window_location.tif, ro2vx: ro2vx.tif, ro2vy: ro2vy.tif}
type File struct {
	EPSG       int              `yaml:"epsg"`
	LookSide   geogrid.LookSide `yaml:"look_side"`
	RepeatTime float64          `yaml:"repeat_time"`
	Image      Image            `yaml:"image"`
	Grid       Grid             `yaml:"grid"`
	Orbit      string           `yaml:"orbit"`
	Inputs     Inputs           `yaml:"inputs"`
	Outputs    Outputs          `yaml:"outputs"`
}

type Image struct {
	Pixels        int     `yaml:"pixels"`
	Lines         int     `yaml:"lines"`
	StartingRange float64 `yaml:"starting_range"`
	RangeSpacing  float64 `yaml:"range_spacing"`
	SensingStart  Instant `yaml:"sensing_start"`
	PRF           float64 `yaml:"prf"`
}

type Grid struct {
	XMin     float64 `yaml:"xmin"`
	XMax     float64 `yaml:"xmax"`
	YMin     float64 `yaml:"ymin"`
	YMax     float64 `yaml:"ymax"`
	XSpacing float64 `yaml:"xspacing"`
	YSpacing float64 `yaml:"yspacing"`
}

type Inputs struct {
	DEM string `yaml:"dem"`
	// DEMDatum is "ellipsoid" (default) or "egm96" for heights above mean
	// sea level.
	DEMDatum string `yaml:"dem_datum"`
	VX       string `yaml:"vx"`
	VY       string `yaml:"vy"`
	DHDX     string `yaml:"dhdx"`
	DHDY     string `yaml:"dhdy"`
}

type Outputs struct {
	PixelLine string `yaml:"pixel_line"`
	Offset    string `yaml:"offset"`
	RO2VX     string `yaml:"ro2vx"`
	RO2VY     string `yaml:"ro2vy"`
	// Compression is "deflate" (default), "zstd" or "none".
	Compression string `yaml:"compression"`
}

// Instant is a point in time given either as an RFC 3339 timestamp or as
// seconds in the orbit time scale.
type Instant struct {
	Time    time.Time
	Seconds float64
}

// IsTime reports whether the instant was given as a timestamp.
func (i Instant) IsTime() bool {
	return !i.Time.IsZero()
}

func (i *Instant) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a timestamp or seconds", n.Line)
	}
	if v, err := strconv.ParseFloat(n.Value, 64); err == nil {
		*i = Instant{Seconds: v}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, n.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid instant %q: %w", n.Line, n.Value, err)
	}
	*i = Instant{Time: t.UTC()}
	return nil
}

// Load reads a run file. Relative paths in it are resolved against the
// directory of the file; s3:// references are kept as they are.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rf, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rf.resolve(filepath.Dir(path))
	return rf, nil
}

// Parse decodes a run file. Unknown keys are an error.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var rf File
	if err := dec.Decode(&rf); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty run file")
		}
		return nil, err
	}
	return &rf, nil
}

// References returns pointers to every file reference of the run, inputs
// first, so that callers can rewrite them (e.g. after downloading).
func (f *File) References() (inputs, outputs []*string) {
	for _, p := range []*string{&f.Orbit, &f.Inputs.DEM, &f.Inputs.VX, &f.Inputs.VY, &f.Inputs.DHDX, &f.Inputs.DHDY} {
		if *p != "" {
			inputs = append(inputs, p)
		}
	}
	for _, p := range []*string{&f.Outputs.PixelLine, &f.Outputs.Offset, &f.Outputs.RO2VX, &f.Outputs.RO2VY} {
		if *p != "" {
			outputs = append(outputs, p)
		}
	}
	return inputs, outputs
}

func (f *File) resolve(base string) {
	in, out := f.References()
	for _, p := range append(in, out...) {
		if remote.IsRemote(*p) || filepath.IsAbs(*p) {
			continue
		}
		*p = filepath.Join(base, *p)
	}
}

// OrbitWindow returns the span of orbit data needed by the acquisition,
// padded by margin. ok is false when the sensing start is not a timestamp.
func (f *File) OrbitWindow(margin time.Duration) (from, to time.Time, ok bool) {
	if !f.Image.SensingStart.IsTime() || !(f.Image.PRF > 0) {
		return time.Time{}, time.Time{}, false
	}
	start := f.Image.SensingStart.Time
	length := time.Duration(float64(f.Image.Lines) / f.Image.PRF * float64(time.Second))
	return start.Add(-margin), start.Add(length + margin), true
}

// Timescale converts absolute times to seconds of an orbit.
type Timescale interface {
	Seconds(t time.Time) float64
}

// Config builds the geogrid configuration. ts converts a timestamp
// sensing start; it may be nil when the start is given in seconds.
func (f *File) Config(o geogrid.Orbit, ts Timescale) (geogrid.Config, error) {
	start := f.Image.SensingStart.Seconds
	if f.Image.SensingStart.IsTime() {
		if ts == nil {
			return geogrid.Config{}, fmt.Errorf("sensing_start is a timestamp but the orbit has no epoch")
		}
		start = ts.Seconds(f.Image.SensingStart.Time)
	}
	cfg := f.config(start)
	cfg.Orbit = o
	return cfg, cfg.Validate()
}

// Check validates everything in the run file that does not need the orbit
// or the input files. A timestamp sensing start is not converted.
func (f *File) Check() error {
	cfg := f.config(f.Image.SensingStart.Seconds)
	return cfg.ValidateSettings()
}

func (f *File) config(start float64) geogrid.Config {
	return geogrid.Config{
		EPSG:          f.EPSG,
		RepeatTime:    f.RepeatTime,
		NumPixels:     f.Image.Pixels,
		NumLines:      f.Image.Lines,
		StartingRange: f.Image.StartingRange,
		RangeSpacing:  f.Image.RangeSpacing,
		SensingStart:  start,
		PRF:           f.Image.PRF,
		LookSide:      f.LookSide,
		XMin:          f.Grid.XMin,
		XMax:          f.Grid.XMax,
		YMin:          f.Grid.YMin,
		YMax:          f.Grid.YMax,
		XSpacing:      f.Grid.XSpacing,
		YSpacing:      f.Grid.YSpacing,
		DEM:           f.Inputs.DEM,
		VX:            f.Inputs.VX,
		VY:            f.Inputs.VY,
		DHDX:          f.Inputs.DHDX,
		DHDY:          f.Inputs.DHDY,
		PixelLine:     f.Outputs.PixelLine,
		Offset:        f.Outputs.Offset,
		RO2VX:         f.Outputs.RO2VX,
		RO2VY:         f.Outputs.RO2VY,
	}
}

// GeoidDEM reports whether DEM heights are above the EGM96 geoid.
func (f *File) GeoidDEM() (bool, error) {
	switch strings.ToLower(f.Inputs.DEMDatum) {
	case "", "ellipsoid", "wgs84":
		return false, nil
	case "egm96", "geoid", "msl":
		return true, nil
	}
	return false, fmt.Errorf("unknown dem_datum %q (want ellipsoid or egm96)", f.Inputs.DEMDatum)
}

// WriteOptions returns the GeoTIFF encoding of the outputs.
func (f *File) WriteOptions() (cog.WriteOptions, error) {
	switch strings.ToLower(f.Outputs.Compression) {
	case "", "deflate":
		return cog.WriteOptions{Compression: cog.CompressionDeflate, Predictor: true}, nil
	case "zstd":
		return cog.WriteOptions{Compression: cog.CompressionZSTD, Predictor: true}, nil
	case "none":
		return cog.WriteOptions{Compression: cog.CompressionNone}, nil
	}
	return cog.WriteOptions{}, fmt.Errorf("unknown compression %q (want deflate, zstd or none)", f.Outputs.Compression)
}
