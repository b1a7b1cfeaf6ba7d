package geogrid

import (
	"fmt"

	"github.com/pspoerri/geogrid/internal/cog"
)

// NoData marks cells without a solution in every output band.
const NoData = -2000000000

// Products holds the rasters of one sweep. PixelLine always exists; Offset
// exists when velocity hints were given and RO2VX/RO2VY when the repeat
// time is positive.
type Products struct {
	Grid Grid
	EPSG int

	PixelLine *cog.Raster[int32]   // bands: pixel, line
	Offset    *cog.Raster[int32]   // bands: range offset, azimuth offset
	RO2VX     *cog.Raster[float64] // bands: range coefficient, azimuth coefficient
	RO2VY     *cog.Raster[float64]

	Diagnostics Diagnostics
}

func newBands[T cog.Sample](p *plan, n int, fill T) *cog.Raster[T] {
	r := cog.NewRaster(p.grid.Cols, p.grid.Rows, n, fill)
	r.Geo = p.grid.GeoInfo(p.epsg)
	r.Geographic = p.geographic
	r.NoData, r.HasNoData = NoData, true
	return r
}

func newProducts(p *plan) *Products {
	out := &Products{
		Grid:      p.grid,
		EPSG:      p.epsg,
		PixelLine: newBands(p, 2, int32(NoData)),
	}
	if p.offset {
		out.Offset = newBands(p, 2, int32(NoData))
	}
	if p.factors {
		out.RO2VX = newBands(p, 2, float64(NoData))
		out.RO2VY = newBands(p, 2, float64(NoData))
	}
	return out
}

// set stores the result of cell i. Cells are written by exactly one
// worker, so no locking is needed.
func (o *Products) set(i int, r *cellResult) {
	if r.failure != FailNone {
		return
	}
	o.PixelLine.Bands[0][i] = r.pixel
	o.PixelLine.Bands[1][i] = r.line
	if o.Offset != nil && r.hasOffset {
		o.Offset.Bands[0][i] = r.offset[0]
		o.Offset.Bands[1][i] = r.offset[1]
	}
	if o.RO2VX != nil && r.hasFactors {
		o.RO2VX.Bands[0][i], o.RO2VX.Bands[1][i] = r.ro2vx[0], r.ro2vx[1]
		o.RO2VY.Bands[0][i], o.RO2VY.Bands[1][i] = r.ro2vy[0], r.ro2vy[1]
	}
}

// At returns the pixel/line value of cell (col, row).
func (o *Products) At(col, row int) (pixel, line int32, ok bool) {
	i := row*o.Grid.Cols + col
	pixel, line = o.PixelLine.Bands[0][i], o.PixelLine.Bands[1][i]
	return pixel, line, pixel != NoData
}

// Outputs names the files products are written to. Empty paths are
// skipped.
type Outputs struct {
	PixelLine string
	Offset    string
	RO2VX     string
	RO2VY     string
}

// Write encodes every requested product and then stores them. Nothing is
// written when any product fails to encode or store, or a requested
// product was not computed.
func (o *Products) Write(dst Outputs, opts cog.WriteOptions) error {
	type pending struct {
		path string
		data []byte
	}
	var files []pending
	add := func(path string, data []byte, err error) error {
		if err != nil {
			return fmt.Errorf("encoding %s: %w", path, err)
		}
		files = append(files, pending{path, data})
		return nil
	}

	if dst.PixelLine != "" {
		data, err := cog.Encode(o.PixelLine, opts)
		if err := add(dst.PixelLine, data, err); err != nil {
			return err
		}
	}
	if dst.Offset != "" {
		if o.Offset == nil {
			return fmt.Errorf("offset output %s requested but no offset hint was computed", dst.Offset)
		}
		data, err := cog.Encode(o.Offset, opts)
		if err := add(dst.Offset, data, err); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		path string
		r    *cog.Raster[float64]
	}{{dst.RO2VX, o.RO2VX}, {dst.RO2VY, o.RO2VY}} {
		if f.path == "" {
			continue
		}
		if f.r == nil {
			return fmt.Errorf("conversion output %s requested but no factors were computed", f.path)
		}
		data, err := cog.Encode(f.r, opts)
		if err := add(f.path, data, err); err != nil {
			return err
		}
	}

	var batch cog.Batch
	for _, f := range files {
		if err := batch.Add(f.path, f.data); err != nil {
			return err
		}
	}
	return batch.Commit()
}
