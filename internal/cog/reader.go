package cog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrNoGeoreference is returned by Open when neither GeoTIFF tags nor a
// world file describe the pixel grid.
var ErrNoGeoreference = errors.New("no georeferencing")

// Reader provides block-level access to a single-image GeoTIFF or COG.
// The file is memory-mapped where the platform allows it, so concurrent
// reads need no locking.
type Reader struct {
	data      []byte
	mapped    bool
	bo        binary.ByteOrder
	ifd       IFD
	overviews int
	geo       GeoInfo
	path      string
	noData    float64
	hasNoData bool
}

// Open opens a GeoTIFF/COG file and parses its structure. Only the first
// (full resolution) image is used; overviews are counted but not read.
func Open(path string) (*Reader, error) {
	data, mapped, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	r, err := newReader(path, data)
	if err != nil {
		if mapped {
			munmapFile(data)
		}
		return nil, err
	}
	r.mapped = mapped
	return r, nil
}

func loadFile(path string) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Size() == 0 {
		return nil, false, fmt.Errorf("%s: empty file", path)
	}

	// The fd can be closed once the mapping exists.
	if data, err := mmapFile(f.Fd(), int(fi.Size())); err == nil {
		return data, true, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, false, nil
}

func newReader(path string, data []byte) (*Reader, error) {
	ifds, bo, err := parseTIFF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(ifds) == 0 {
		return nil, fmt.Errorf("%s: no IFDs found", path)
	}

	first := ifds[0]
	if err := first.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	geo := parseGeoInfo(&first)
	if !geo.Valid() {
		tfwPath := findTFW(path)
		if tfwPath == "" {
			return nil, fmt.Errorf("%s: %w", path, ErrNoGeoreference)
		}
		tfw, err := parseTFW(tfwPath)
		if err != nil {
			return nil, err
		}
		epsg := geo.EPSG
		geo = tfw.toGeoInfo()
		geo.EPSG = epsg
		if geo.EPSG == 0 {
			geo.EPSG = inferEPSG(geo, first.Width, first.Height)
		}
	}

	r := &Reader{
		data:      data,
		bo:        bo,
		ifd:       first,
		overviews: len(ifds) - 1,
		geo:       geo,
		path:      path,
	}
	if first.NoData != "" {
		v, err := parseNoData(first.NoData)
		if err != nil {
			return nil, fmt.Errorf("%s: GDAL_NODATA %q: %w", path, first.NoData, err)
		}
		r.noData, r.hasNoData = v, true
	}
	return r, nil
}

func parseNoData(s string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nan", "-nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Close releases the file mapping.
func (r *Reader) Close() error {
	if r.data == nil {
		return nil
	}
	var err error
	if r.mapped {
		err = munmapFile(r.data)
	}
	r.data = nil
	return err
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}

// GeoInfo returns the parsed geographic metadata.
func (r *Reader) GeoInfo() GeoInfo {
	return r.geo
}

// IFD returns the directory of the full resolution image. It must not be
// modified.
func (r *Reader) IFD() *IFD {
	return &r.ifd
}

// Width returns the image width in pixels.
func (r *Reader) Width() int {
	return int(r.ifd.Width)
}

// Height returns the image height in pixels.
func (r *Reader) Height() int {
	return int(r.ifd.Height)
}

// Bands returns the number of samples per pixel.
func (r *Reader) Bands() int {
	return int(r.ifd.SamplesPerPixel)
}

// NumOverviews returns the number of IFDs after the first.
func (r *Reader) NumOverviews() int {
	return r.overviews
}

// PixelSize returns the pixel size in CRS units.
func (r *Reader) PixelSize() (dx, dy float64) {
	return r.geo.PixelSizeX, r.geo.PixelSizeY
}

// EPSG returns the detected EPSG code (0 if unknown).
func (r *Reader) EPSG() int {
	return r.geo.EPSG
}

// NoData returns the GDAL no-data value, if the file declares one.
func (r *Reader) NoData() (float64, bool) {
	return r.noData, r.hasNoData
}

// BoundsInCRS returns the bounding box in the source CRS.
func (r *Reader) BoundsInCRS() (minX, minY, maxX, maxY float64) {
	minX = r.geo.OriginX
	maxY = r.geo.OriginY
	maxX = minX + float64(r.ifd.Width)*r.geo.PixelSizeX
	minY = maxY - float64(r.ifd.Height)*r.geo.PixelSizeY
	return
}

// IsNoData reports whether v is the declared no-data value or NaN.
func (r *Reader) IsNoData(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return r.hasNoData && v == r.noData
}

// ReadBlock decodes one tile or strip of the given band into float64 samples.
// The returned slice is w*h long in row-major order. Safe for concurrent use.
func (r *Reader) ReadBlock(band, col, row int) (vals []float64, w, h int, err error) {
	ifd := &r.ifd
	spp := int(ifd.SamplesPerPixel)
	if band < 0 || band >= spp {
		return nil, 0, 0, fmt.Errorf("band %d out of range (have %d)", band, spp)
	}

	across, down := ifd.BlocksAcross(), ifd.BlocksDown()
	if col < 0 || col >= across || row < 0 || row >= down {
		return nil, 0, 0, fmt.Errorf("block (%d,%d) out of range (%dx%d)", col, row, across, down)
	}

	idx := row*across + col
	chunky := ifd.PlanarConfig != 2
	if !chunky {
		idx += band * across * down
	}

	w, h = ifd.BlockSize()
	vals = make([]float64, w*h)

	offset, size := ifd.Offsets[idx], ifd.ByteCounts[idx]
	if size == 0 {
		// Sparse block.
		fill := math.NaN()
		if r.hasNoData {
			fill = r.noData
		}
		for i := range vals {
			vals[i] = fill
		}
		return vals, w, h, nil
	}

	end := offset + size
	if end > uint64(len(r.data)) {
		return nil, 0, 0, fmt.Errorf("block data [%d:%d] exceeds file size %d", offset, end, len(r.data))
	}

	bps := ifd.bytesPerSample()
	rowSamples := w
	if chunky {
		rowSamples *= spp
	}
	stride := 1
	if chunky {
		stride = spp
	}

	raw, err := decompress(ifd.Compression, r.data[offset:end], rowSamples*h*bps)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("block (%d,%d): %w", col, row, err)
	}

	bo := r.bo
	switch ifd.Predictor {
	case 2:
		if ifd.Compression == CompressionNone {
			raw = append([]byte(nil), raw...)
		}
		undoHorizontalPredictor(raw, bo, bps, rowSamples, stride)
	case 3:
		if ifd.Compression == CompressionNone {
			raw = append([]byte(nil), raw...)
		}
		undoFloatPredictor(raw, bps, rowSamples, stride)
		bo = binary.BigEndian
	}

	first := 0
	if chunky {
		first = band
	}
	toFloat64(vals, raw, bo, ifd.sampleFormat(), bps, first, stride)
	return vals, w, h, nil
}

// ReadBand decodes a whole band into a row-major float64 slice.
func (r *Reader) ReadBand(band int) ([]float64, error) {
	width, height := r.Width(), r.Height()
	out := make([]float64, width*height)
	across, down := r.ifd.BlocksAcross(), r.ifd.BlocksDown()

	for row := 0; row < down; row++ {
		for col := 0; col < across; col++ {
			vals, w, h, err := r.ReadBlock(band, col, row)
			if err != nil {
				return nil, err
			}
			x0, y0 := col*w, row*h
			for y := 0; y < h && y0+y < height; y++ {
				n := min(w, width-x0)
				copy(out[(y0+y)*width+x0:(y0+y)*width+x0+n], vals[y*w:y*w+n])
			}
		}
	}
	return out, nil
}

// OpenAll opens multiple rasters and returns their readers.
func OpenAll(paths []string) ([]*Reader, error) {
	readers := make([]*Reader, 0, len(paths))
	for _, p := range paths {
		r, err := Open(p)
		if err != nil {
			for _, rr := range readers {
				rr.Close()
			}
			return nil, err
		}
		readers = append(readers, r)
	}
	return readers, nil
}
