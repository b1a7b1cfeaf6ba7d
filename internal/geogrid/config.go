// Package geogrid maps a projected output grid onto the range/azimuth
// geometry of a SAR acquisition. For every grid cell it solves the
// zero-Doppler imaging equations against the orbit and emits the radar
// pixel/line position, an optional offset hint derived from a velocity
// field, and factors converting pixel offsets into surface velocity.
package geogrid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pspoerri/geogrid/internal/coord"
)

// LookSide is the side of the ground track the radar illuminates. The zero
// value is invalid so that an unset field is caught by Validate.
type LookSide int

const (
	LookLeft  LookSide = 1
	LookRight LookSide = -1
)

func (s LookSide) String() string {
	switch s {
	case LookLeft:
		return "left"
	case LookRight:
		return "right"
	}
	return "LookSide(" + strconv.Itoa(int(s)) + ")"
}

func (s LookSide) MarshalText() ([]byte, error) {
	if s != LookLeft && s != LookRight {
		return nil, fmt.Errorf("invalid look side %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts "left"/"right" in any case and the integer
// encoding 1 (left) / -1 (right).
func (s *LookSide) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "left", "1":
		*s = LookLeft
	case "right", "-1":
		*s = LookRight
	default:
		return fmt.Errorf("invalid look side %q (want left or right)", text)
	}
	return nil
}

// Year is the length of a year used for velocity scaling, in seconds.
const Year = 365 * 24 * 3600.0

// Config is the complete description of one geocoding run. It is a plain
// value: fill it in, call Validate (Run does this), and do not reuse the
// Orbit after the run unless it outlives it.
type Config struct {
	EPSG int // projection of the output grid and of every input raster

	// RepeatTime is the interval between the two acquisitions whose offsets
	// are measured downstream, in seconds.
	RepeatTime float64

	NumPixels     int
	NumLines      int
	StartingRange float64 // slant range of pixel 0, meters
	RangeSpacing  float64 // meters per pixel
	SensingStart  float64 // azimuth time of line 0, seconds in the orbit time scale
	PRF           float64 // lines per second
	LookSide      LookSide

	XMin, XMax float64
	YMin, YMax float64
	// XSpacing and YSpacing are the output posting in CRS units. Zero takes
	// the DEM posting.
	XSpacing, YSpacing float64

	// Input rasters. DEM is required by Run; the hint pairs are optional.
	DEM        string
	VX, VY     string
	DHDX, DHDY string

	// Output rasters. Empty paths are not written.
	PixelLine string
	Offset    string
	RO2VX     string
	RO2VY     string

	// Orbit is borrowed for the duration of the run.
	Orbit Orbit
}

// Validate checks every field Run depends on and returns a *ConfigError
// naming the first offending one.
func (c *Config) Validate() error {
	if err := c.ValidateSettings(); err != nil {
		return err
	}
	if c.Orbit == nil {
		return configErr("Orbit", "missing orbit")
	}
	return nil
}

// ValidateSettings is Validate without the orbit. It lets callers reject a
// bad configuration before fetching inputs or loading the orbit file.
func (c *Config) ValidateSettings() error {
	if err := c.validateGeometry(); err != nil {
		return err
	}
	if c.DEM == "" {
		return configErr("DEM", "missing DEM path")
	}
	if (c.VX == "") != (c.VY == "") {
		return configErr("VX", "velocity hints need both VX and VY")
	}
	if (c.DHDX == "") != (c.DHDY == "") {
		return configErr("DHDX", "slopes need both DHDX and DHDY")
	}
	if c.DHDX != "" && c.VX == "" {
		return configErr("DHDX", "slopes are only used together with VX/VY")
	}
	if c.Offset != "" && c.VX == "" {
		return configErr("Offset", "offset output requires VX/VY velocity hints")
	}
	if (c.Offset != "" || c.RO2VX != "" || c.RO2VY != "") && !(c.RepeatTime > 0) {
		return configErr("RepeatTime", "must be > 0 when offset or conversion outputs are requested (got %v)", c.RepeatTime)
	}
	if c.PixelLine == "" && c.Offset == "" && c.RO2VX == "" && c.RO2VY == "" {
		return configErr("PixelLine", "no output requested")
	}
	return nil
}

// validateGeometry checks the scalar acquisition and grid fields that do
// not refer to files.
func (c *Config) validateGeometry() error {
	if _, err := coord.Lookup(c.EPSG); err != nil {
		return &ConfigError{Field: "EPSG", Reason: err.Error(), Err: err}
	}
	if c.NumPixels <= 0 {
		return configErr("NumPixels", "must be > 0 (got %d)", c.NumPixels)
	}
	if c.NumLines <= 0 {
		return configErr("NumLines", "must be > 0 (got %d)", c.NumLines)
	}
	if !finite(c.StartingRange) || c.StartingRange < 0 {
		return configErr("StartingRange", "must be a finite distance >= 0 (got %v)", c.StartingRange)
	}
	if !(c.RangeSpacing > 0) || math.IsInf(c.RangeSpacing, 0) {
		return configErr("RangeSpacing", "must be > 0 (got %v)", c.RangeSpacing)
	}
	if !finite(c.SensingStart) {
		return configErr("SensingStart", "must be finite (got %v)", c.SensingStart)
	}
	if !(c.PRF > 0) || math.IsInf(c.PRF, 0) {
		return configErr("PRF", "must be > 0 (got %v)", c.PRF)
	}
	if c.LookSide != LookLeft && c.LookSide != LookRight {
		return configErr("LookSide", "must be left or right (got %v)", c.LookSide)
	}
	if !finite(c.RepeatTime) || c.RepeatTime < 0 {
		return configErr("RepeatTime", "must be finite and >= 0 (got %v)", c.RepeatTime)
	}
	if !finite(c.XMin) || !finite(c.XMax) || !(c.XMin < c.XMax) {
		return configErr("XMin", "need XMin < XMax (got %v, %v)", c.XMin, c.XMax)
	}
	if !finite(c.YMin) || !finite(c.YMax) || !(c.YMin < c.YMax) {
		return configErr("YMin", "need YMin < YMax (got %v, %v)", c.YMin, c.YMax)
	}
	if !finite(c.XSpacing) || c.XSpacing < 0 {
		return configErr("XSpacing", "must be >= 0 (got %v)", c.XSpacing)
	}
	if !finite(c.YSpacing) || c.YSpacing < 0 {
		return configErr("YSpacing", "must be >= 0 (got %v)", c.YSpacing)
	}
	return nil
}

// plan is the frozen form of a Config shared read-only by the workers.
type plan struct {
	epsg       int
	geographic bool
	grid       Grid
	timing     Timing
	side       LookSide
	dtYears    float64
	proj       Projector
	orbit      Orbit
	basisStep  float64 // finite-difference step of the local basis, CRS units

	offset  bool // compute the offset hint
	factors bool // compute ro2vx/ro2vy
}

// freeze resolves the grid and timing of a validated config. dx and dy
// replace zero spacings.
func (c *Config) freeze(dx, dy float64) (*plan, error) {
	if c.XSpacing > 0 {
		dx = c.XSpacing
	}
	if c.YSpacing > 0 {
		dy = c.YSpacing
	}
	if !(dx > 0) || !(dy > 0) {
		return nil, configErr("XSpacing", "no output spacing given and the DEM has no posting")
	}
	grid, err := NewGrid(c.XMin, c.XMax, c.YMin, c.YMax, dx, dy)
	if err != nil {
		return nil, err
	}
	tf, err := coord.NewTransformer(c.EPSG)
	if err != nil {
		return nil, &ConfigError{Field: "EPSG", Reason: err.Error(), Err: err}
	}
	return &plan{
		epsg:       c.EPSG,
		geographic: coord.IsGeographic(tf.Projection()),
		grid:       grid,
		timing: Timing{
			SensingStart:  c.SensingStart,
			PRF:           c.PRF,
			StartingRange: c.StartingRange,
			RangeSpacing:  c.RangeSpacing,
			NumLines:      c.NumLines,
			NumPixels:     c.NumPixels,
		},
		side:      c.LookSide,
		dtYears:   c.RepeatTime / Year,
		proj:      tf,
		orbit:     c.Orbit,
		basisStep: 0.5 * math.Min(grid.XSpacing, grid.YSpacing),
		factors:   c.RepeatTime > 0,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
