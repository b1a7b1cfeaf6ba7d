package encode

import (
	"image/color"
	"math"
)

// Colormap maps [0, 1] onto colours by linear interpolation between
// evenly spaced stops.
type Colormap struct {
	Name  string
	Stops []color.RGBA
}

// Viridis suits monotonic fields such as pixel and line indices.
var Viridis = Colormap{Name: "viridis", Stops: []color.RGBA{
	{68, 1, 84, 255},
	{72, 40, 120, 255},
	{62, 74, 137, 255},
	{49, 104, 142, 255},
	{38, 130, 142, 255},
	{31, 158, 137, 255},
	{53, 183, 121, 255},
	{110, 206, 88, 255},
	{181, 222, 43, 255},
	{253, 231, 37, 255},
}}

// Diverging is blue through white to red, for signed quantities centred on
// zero like offsets and conversion factors.
var Diverging = Colormap{Name: "diverging", Stops: []color.RGBA{
	{5, 48, 97, 255},
	{67, 147, 195, 255},
	{247, 247, 247, 255},
	{214, 96, 77, 255},
	{103, 0, 31, 255},
}}

// At returns the colour for f, clamped to [0, 1]. NaN is transparent.
func (c Colormap) At(f float64) color.RGBA {
	if math.IsNaN(f) || len(c.Stops) == 0 {
		return color.RGBA{}
	}
	f = max(0, min(1, f))
	pos := f * float64(len(c.Stops)-1)
	i := int(pos)
	if i >= len(c.Stops)-1 {
		return c.Stops[len(c.Stops)-1]
	}
	frac := pos - float64(i)
	a, b := c.Stops[i], c.Stops[i+1]
	return color.RGBA{
		R: lerp8(a.R, b.R, frac),
		G: lerp8(a.G, b.G, frac),
		B: lerp8(a.B, b.B, frac),
		A: 255,
	}
}

func lerp8(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}
