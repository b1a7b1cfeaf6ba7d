package geogrid

import "math"

// Timing converts azimuth time and slant range to radar image coordinates.
type Timing struct {
	SensingStart  float64
	PRF           float64
	StartingRange float64
	RangeSpacing  float64
	NumLines      int
	NumPixels     int
}

// Line returns the fractional line index of azimuth time t.
func (tm Timing) Line(t float64) float64 {
	return (t - tm.SensingStart) * tm.PRF
}

// Pixel returns the fractional pixel index of slant range r.
func (tm Timing) Pixel(r float64) float64 {
	return (r - tm.StartingRange) / tm.RangeSpacing
}

// MidTime is the azimuth time at the middle of the acquisition.
func (tm Timing) MidTime() float64 {
	return tm.SensingStart + float64(tm.NumLines)/(2*tm.PRF)
}

// PixelLine rounds (t, r) to the nearest image sample. ok is false when
// the sample lies outside [0, NumPixels) × [0, NumLines).
func (tm Timing) PixelLine(t, r float64) (pixel, line int, ok bool) {
	p := math.Round(tm.Pixel(r))
	l := math.Round(tm.Line(t))
	if !(p >= 0 && p < float64(tm.NumPixels)) || !(l >= 0 && l < float64(tm.NumLines)) {
		return 0, 0, false
	}
	return int(p), int(l), true
}
