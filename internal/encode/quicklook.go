package encode

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"golang.org/x/image/draw"

	"github.com/pspoerri/geogrid/internal/cog"
)

// Options controls Render.
type Options struct {
	Colormap Colormap // zero value selects Viridis
	// Min and Max fix the colour stretch. When both are zero the stretch
	// runs between the 2nd and 98th percentile of the valid samples, or
	// symmetric about zero for Symmetric.
	Min, Max  float64
	Symmetric bool
	// MaxSize bounds the longer side of the result; larger rasters are
	// scaled down. 0 keeps the raster size.
	MaxSize int
}

// Render colour-maps one band of r. No-data and non-finite samples become
// transparent.
func Render[T cog.Sample](r *cog.Raster[T], band int, opts Options) (image.Image, error) {
	if band < 0 || band >= len(r.Bands) {
		return nil, fmt.Errorf("band %d out of range (raster has %d)", band, len(r.Bands))
	}
	cm := opts.Colormap
	if len(cm.Stops) == 0 {
		cm = Viridis
	}

	vals := make([]float64, len(r.Bands[band]))
	for i, v := range r.Bands[band] {
		f := float64(v)
		if (r.HasNoData && f == r.NoData) || math.IsInf(f, 0) {
			f = math.NaN()
		}
		vals[i] = f
	}

	lo, hi := opts.Min, opts.Max
	if lo == 0 && hi == 0 {
		lo, hi = stretch(vals, opts.Symmetric)
	}
	scale := 1 / (hi - lo)
	if !(hi > lo) {
		scale = 0
	}

	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i, v := range vals {
		c := color.RGBA{}
		if !math.IsNaN(v) {
			c = cm.At((v - lo) * scale)
		}
		img.SetRGBA(i%r.Width, i/r.Width, c)
	}

	if opts.MaxSize <= 0 || max(r.Width, r.Height) <= opts.MaxSize {
		return img, nil
	}
	return scaleDown(img, opts.MaxSize), nil
}

// stretch returns the 2nd and 98th percentile of the finite values.
func stretch(vals []float64, symmetric bool) (lo, hi float64) {
	valid := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return 0, 1
	}
	slices.Sort(valid)
	lo = valid[int(0.02*float64(len(valid)-1))]
	hi = valid[int(math.Ceil(0.98*float64(len(valid)-1)))]
	if symmetric {
		m := max(math.Abs(lo), math.Abs(hi))
		lo, hi = -m, m
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	return lo, hi
}

// scaleDown fits img into a size × size box, preserving the aspect ratio.
func scaleDown(img image.Image, size int) image.Image {
	b := img.Bounds()
	w, h := size, size
	if b.Dx() >= b.Dy() {
		h = max(1, int(math.Round(float64(b.Dy())*float64(size)/float64(b.Dx()))))
	} else {
		w = max(1, int(math.Round(float64(b.Dx())*float64(size)/float64(b.Dy()))))
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Rect, img, b, draw.Over, nil)
	return dst
}
