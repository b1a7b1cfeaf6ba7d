package geogrid

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is wrapped by every *ConfigError.
	ErrConfig = errors.New("invalid configuration")
	// ErrResource is wrapped by every *ResourceError.
	ErrResource = errors.New("unusable input")
)

// ConfigError reports a missing or invalid configuration field. It is
// returned before any input is opened.
type ConfigError struct {
	Field  string
	Reason string
	Err    error // optional cause
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfig, e.Err}
	}
	return []error{ErrConfig}
}

func configErr(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ResourceError reports an input that cannot be opened or read.
type ResourceError struct {
	Resource string // "dem", "vx", "orbit", ...
	Path     string
	Err      error
}

func (e *ResourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Resource, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() []error {
	return []error{ErrResource, e.Err}
}

// Failure classifies why a grid cell has no solution.
type Failure uint8

const (
	FailNone          Failure = iota
	FailDEMNoData             // no elevation at the cell
	FailNoConvergence         // Newton iteration did not converge or left the orbit span
	FailDegenerate            // vanishing Doppler derivative or singular conversion matrix
	FailLookSide              // point lies on the unobserved side of the track
	FailOutOfBounds           // solution outside the radar image
	numFailures
)

var failureNames = [numFailures]string{
	FailNone:          "ok",
	FailDEMNoData:     "dem_nodata",
	FailNoConvergence: "no_convergence",
	FailDegenerate:    "degenerate",
	FailLookSide:      "look_side",
	FailOutOfBounds:   "out_of_bounds",
}

func (f Failure) String() string {
	if f < numFailures {
		return failureNames[f]
	}
	return fmt.Sprintf("Failure(%d)", uint8(f))
}

// Failures lists every failure category except FailNone.
func Failures() []Failure {
	out := make([]Failure, 0, numFailures-1)
	for f := FailDEMNoData; f < numFailures; f++ {
		out = append(out, f)
	}
	return out
}
