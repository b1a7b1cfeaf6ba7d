package cog

import "math"

// Sampler reads values of one band at CRS coordinates. Each Sampler owns a
// block cache and must be used by a single goroutine; the Reader behind it
// is shared.
type Sampler struct {
	r     *Reader
	band  int
	cache *BlockCache
	err   error
}

// NewSampler returns a sampler of the first band with a private block cache.
func (r *Reader) NewSampler() *Sampler {
	return r.NewBandSampler(0, 0)
}

// NewBandSampler returns a sampler of the given band holding up to
// cacheBlocks decoded blocks (0 selects a default).
func (r *Reader) NewBandSampler(band, cacheBlocks int) *Sampler {
	return &Sampler{r: r, band: band, cache: NewBlockCache(cacheBlocks)}
}

// Err returns the first block decode error the sampler ran into. Samples
// that hit a broken block are reported as no-data.
func (s *Sampler) Err() error {
	return s.err
}

// Cache exposes the sampler's block cache statistics.
func (s *Sampler) Cache() *BlockCache {
	return s.cache
}

// Pixel returns the value of pixel (col, row).
func (s *Sampler) Pixel(col, row int) (float64, bool) {
	r := s.r
	if col < 0 || row < 0 || col >= r.Width() || row >= r.Height() {
		return 0, false
	}
	bw, bh := r.ifd.BlockSize()
	key := blockKey{band: s.band, col: col / bw, row: row / bh}

	b := s.cache.get(key)
	if b == nil {
		vals, w, h, err := r.ReadBlock(s.band, key.col, key.row)
		if err != nil {
			if s.err == nil {
				s.err = err
			}
			return 0, false
		}
		b = &block{vals: vals, w: w, h: h}
		s.cache.put(key, b)
	}

	v := b.vals[(row%bh)*b.w+col%bw]
	if r.IsNoData(v) {
		return 0, false
	}
	return v, true
}

// Sample returns the bilinearly interpolated value at CRS coordinate (x, y).
// Pixel values sit at pixel centers. The result is no-data outside the
// raster footprint or when a neighbour with non-zero weight is no-data.
func (s *Sampler) Sample(x, y float64) (float64, bool) {
	g := s.r.geo
	px, py := g.CRSToPixel(x, y)
	if math.IsNaN(px) || math.IsNaN(py) ||
		px < 0 || py < 0 || px > float64(s.r.Width()) || py > float64(s.r.Height()) {
		return 0, false
	}

	fx, fy := px-0.5, py-0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := fx-float64(x0), fy-float64(y0)

	// Half a pixel from the border the outer neighbour is clamped away.
	if x0 < 0 {
		x0, tx = 0, 0
	}
	if y0 < 0 {
		y0, ty = 0, 0
	}
	if x0 >= s.r.Width()-1 {
		x0, tx = s.r.Width()-1, 0
	}
	if y0 >= s.r.Height()-1 {
		y0, ty = s.r.Height()-1, 0
	}

	var sum float64
	for _, n := range [4]struct {
		dx, dy int
		w      float64
	}{
		{0, 0, (1 - tx) * (1 - ty)},
		{1, 0, tx * (1 - ty)},
		{0, 1, (1 - tx) * ty},
		{1, 1, tx * ty},
	} {
		if n.w == 0 {
			continue
		}
		v, ok := s.Pixel(x0+n.dx, y0+n.dy)
		if !ok {
			return 0, false
		}
		sum += n.w * v
	}
	return sum, true
}
