// Package elevation provides terrain height sources for the geocoding grid:
// synthetic surfaces, GeoTIFF rasters, and conversion of orthometric heights
// to WGS-84 ellipsoidal heights.
package elevation

import (
	"github.com/pspoerri/geogrid/internal/cog"
)

// Sampler returns the value at a projected coordinate. ok is false for
// no-data and outside coverage. A Sampler is used by one goroutine.
type Sampler interface {
	Sample(x, y float64) (v float64, ok bool)
}

// Source hands out independent samplers, one per worker.
type Source interface {
	NewSampler() Sampler
}

// Constant is a flat surface at a fixed height.
type Constant float64

func (c Constant) NewSampler() Sampler { return c }

func (c Constant) Sample(x, y float64) (float64, bool) { return float64(c), true }

// Func adapts a function to both Source and Sampler. The function must be
// safe for concurrent use.
type Func func(x, y float64) (float64, bool)

func (f Func) NewSampler() Sampler { return f }

func (f Func) Sample(x, y float64) (float64, bool) { return f(x, y) }

// RasterSource serves samples of the first band of a GeoTIFF.
type RasterSource struct {
	r           *cog.Reader
	cacheBlocks int
}

// Raster wraps an open reader. Every sampler gets a private block cache of
// cacheBlocks entries (0 selects the reader default).
func Raster(r *cog.Reader, cacheBlocks int) *RasterSource {
	return &RasterSource{r: r, cacheBlocks: cacheBlocks}
}

func (s *RasterSource) NewSampler() Sampler {
	return s.r.NewBandSampler(0, s.cacheBlocks)
}

// Reader returns the wrapped reader.
func (s *RasterSource) Reader() *cog.Reader {
	return s.r
}

// Posting returns the sample spacing of src in CRS units. ok is false for
// sources without a native grid.
func Posting(src Source) (dx, dy float64, ok bool) {
	switch s := src.(type) {
	case *RasterSource:
		dx, dy = s.r.PixelSize()
		return dx, dy, dx > 0 && dy > 0
	case *GeoidSource:
		return Posting(s.src)
	}
	return 0, 0, false
}
