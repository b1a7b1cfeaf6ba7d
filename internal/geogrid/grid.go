package geogrid

import (
	"math"

	"github.com/pspoerri/geogrid/internal/cog"
)

// Grid is the output raster layout. Row 0 is the northern (YMax) edge and
// columns advance along +x.
type Grid struct {
	XMin, YMax         float64
	XSpacing, YSpacing float64
	Cols, Rows         int
}

// NewGrid lays out the extent [xmin, xmax] × [ymin, ymax] at the given
// posting. The cell count along each axis is the rounded extent/spacing
// ratio.
func NewGrid(xmin, xmax, ymin, ymax, dx, dy float64) (Grid, error) {
	if !(dx > 0) || math.IsInf(dx, 0) {
		return Grid{}, configErr("XSpacing", "must be > 0 (got %v)", dx)
	}
	if !(dy > 0) || math.IsInf(dy, 0) {
		return Grid{}, configErr("YSpacing", "must be > 0 (got %v)", dy)
	}
	cols := math.Round((xmax - xmin) / dx)
	rows := math.Round((ymax - ymin) / dy)
	if cols < 1 {
		return Grid{}, configErr("XSpacing", "spacing %v exceeds the x extent %v", dx, xmax-xmin)
	}
	if rows < 1 {
		return Grid{}, configErr("YSpacing", "spacing %v exceeds the y extent %v", dy, ymax-ymin)
	}
	if cols*rows > math.MaxInt32 {
		return Grid{}, configErr("XSpacing", "grid of %.0f x %.0f cells is too large", cols, rows)
	}
	return Grid{
		XMin:     xmin,
		YMax:     ymax,
		XSpacing: dx,
		YSpacing: dy,
		Cols:     int(cols),
		Rows:     int(rows),
	}, nil
}

// Center returns the CRS coordinate of the center of cell (col, row).
func (g Grid) Center(col, row int) (x, y float64) {
	return g.XMin + (float64(col)+0.5)*g.XSpacing, g.YMax - (float64(row)+0.5)*g.YSpacing
}

// Cells returns the number of grid cells.
func (g Grid) Cells() int {
	return g.Cols * g.Rows
}

// GeoTransform returns the GDAL-style affine transform of the grid.
func (g Grid) GeoTransform() [6]float64 {
	return [6]float64{g.XMin, g.XSpacing, 0, g.YMax, 0, -g.YSpacing}
}

// GeoInfo returns the georeferencing written to the output rasters.
func (g Grid) GeoInfo(epsg int) cog.GeoInfo {
	return cog.GeoInfo{
		EPSG:       epsg,
		OriginX:    g.XMin,
		OriginY:    g.YMax,
		PixelSizeX: g.XSpacing,
		PixelSizeY: g.YSpacing,
	}
}
