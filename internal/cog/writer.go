package cog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/exp/constraints"
)

// Sample is a pixel type the writer can encode.
type Sample interface {
	~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | constraints.Float
}

// Raster is a multi-band grid of one sample type. Bands are row-major and
// Width*Height long.
type Raster[T Sample] struct {
	Width, Height int
	Bands         [][]T
	Geo           GeoInfo
	Geographic    bool // EPSG is a geographic CRS (degrees)
	NoData        float64
	HasNoData     bool
}

// NewRaster allocates a raster with n bands, every sample set to fill.
func NewRaster[T Sample](width, height, n int, fill T) *Raster[T] {
	r := &Raster[T]{Width: width, Height: height, Bands: make([][]T, n)}
	for b := range r.Bands {
		band := make([]T, width*height)
		for i := range band {
			band[i] = fill
		}
		r.Bands[b] = band
	}
	return r
}

// WriteOptions controls the on-disk encoding.
type WriteOptions struct {
	Compression  uint16 // CompressionNone (default), CompressionDeflate or CompressionZSTD
	Predictor    bool   // horizontal (integers) or floating point predictor
	RowsPerStrip int    // 0 selects 64
	Level        int    // compression level, 0 = library default
}

type sampleLayout struct {
	bits   uint16
	format uint16
}

func layoutOf[T Sample]() (sampleLayout, error) {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return sampleLayout{8, sampleUint}, nil
	case int16:
		return sampleLayout{16, sampleInt}, nil
	case uint16:
		return sampleLayout{16, sampleUint}, nil
	case int32:
		return sampleLayout{32, sampleInt}, nil
	case uint32:
		return sampleLayout{32, sampleUint}, nil
	case float32:
		return sampleLayout{32, sampleFloat}, nil
	case float64:
		return sampleLayout{64, sampleFloat}, nil
	}
	return sampleLayout{}, fmt.Errorf("unsupported sample type %T", zero)
}

// WriteFile encodes r as a little-endian, band-separate, stripped GeoTIFF.
// The file is written to a temporary name and renamed into place.
func WriteFile[T Sample](path string, r *Raster[T], opts WriteOptions) error {
	data, err := Encode(r, opts)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return WriteBytes(path, data)
}

// WriteBytes stores encoded data at path through a temporary file in the
// same directory, so readers never observe a partial raster.
func WriteBytes(path string, data []byte) error {
	var b Batch
	if err := b.Add(path, data); err != nil {
		return err
	}
	return b.Commit()
}

// Batch stores several files so that either all of them or none reach
// their destinations. Add stages each file under a temporary name next to
// its destination; Commit renames them into place.
type Batch struct {
	staged []stagedFile
}

type stagedFile struct {
	tmp, path string
}

// Add stages data for path. On error every file staged so far is removed.
func (b *Batch) Add(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		b.Abort()
		return fmt.Errorf("creating %s: %w", path, err)
	}
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		b.Abort()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	b.staged = append(b.staged, stagedFile{tmp: tmp.Name(), path: path})
	return nil
}

// Commit moves every staged file into place. If a rename fails, the files
// already moved are removed again along with the remaining staged ones.
func (b *Batch) Commit() error {
	staged := b.staged
	b.staged = nil
	for i, f := range staged {
		if err := os.Rename(f.tmp, f.path); err != nil {
			for _, done := range staged[:i] {
				os.Remove(done.path)
			}
			for _, rest := range staged[i:] {
				os.Remove(rest.tmp)
			}
			return fmt.Errorf("renaming %s: %w", f.path, err)
		}
	}
	return nil
}

// Abort removes every staged file.
func (b *Batch) Abort() {
	for _, f := range b.staged {
		os.Remove(f.tmp)
	}
	b.staged = nil
}

// Encode returns the GeoTIFF encoding of r.
func Encode[T Sample](r *Raster[T], opts WriteOptions) ([]byte, error) {
	layout, err := layoutOf[T]()
	if err != nil {
		return nil, err
	}
	if r.Width <= 0 || r.Height <= 0 || len(r.Bands) == 0 {
		return nil, fmt.Errorf("empty raster %dx%dx%d", r.Width, r.Height, len(r.Bands))
	}
	for i, b := range r.Bands {
		if len(b) != r.Width*r.Height {
			return nil, fmt.Errorf("band %d has %d samples, want %d", i, len(b), r.Width*r.Height)
		}
	}

	compression := opts.Compression
	if compression == 0 {
		compression = CompressionNone
	}
	compress, err := compressor(compression, opts.Level)
	if err != nil {
		return nil, err
	}
	rps := opts.RowsPerStrip
	if rps <= 0 {
		rps = 64
	}
	rps = min(rps, r.Height)

	size := int(layout.bits / 8)
	stripsPerBand := (r.Height + rps - 1) / rps

	var predictor uint16 = 1
	if opts.Predictor {
		predictor = 2
		if layout.format == sampleFloat {
			predictor = 3
		}
	}

	// Header placeholder, then strip data, then the IFD.
	buf := bytes.NewBuffer(make([]byte, 8, 8+len(r.Bands)*r.Width*r.Height*size))
	var offsets, counts []uint32
	raw := make([]byte, 0, rps*r.Width*size)

	for _, band := range r.Bands {
		for s := 0; s < stripsPerBand; s++ {
			y0 := s * rps
			y1 := min(y0+rps, r.Height)

			raw = raw[:0]
			for _, v := range band[y0*r.Width : y1*r.Width] {
				raw = appendSample(raw, float64(v), layout)
			}
			switch predictor {
			case 2:
				applyHorizontalPredictor(raw, size, r.Width)
			case 3:
				applyFloatPredictor(raw, size, r.Width)
			}

			enc, err := compress(raw)
			if err != nil {
				return nil, err
			}
			if buf.Len()%2 == 1 {
				buf.WriteByte(0)
			}
			offsets = append(offsets, uint32(buf.Len()))
			counts = append(counts, uint32(len(enc)))
			buf.Write(enc)
		}
	}
	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}

	spp := len(r.Bands)
	entries := []ifdEntry{
		longEntry(tagImageWidth, uint32(r.Width)),
		longEntry(tagImageLength, uint32(r.Height)),
		shortEntry(tagBitsPerSample, repeat(layout.bits, spp)...),
		shortEntry(tagCompression, compression),
		shortEntry(tagPhotometric, 1),
		longEntry(tagStripOffsets, offsets...),
		shortEntry(tagSamplesPerPixel, uint16(spp)),
		longEntry(tagRowsPerStrip, uint32(rps)),
		longEntry(tagStripByteCounts, counts...),
		shortEntry(tagPlanarConfig, 2),
		shortEntry(tagSampleFormat, repeat(layout.format, spp)...),
	}
	if predictor != 1 {
		entries = append(entries, shortEntry(tagPredictor, predictor))
	}
	if spp > 1 {
		entries = append(entries, shortEntry(tagExtraSamples, make([]uint16, spp-1)...))
	}
	if r.Geo.Valid() {
		entries = append(entries,
			doubleEntry(tagModelPixelScaleTag, r.Geo.PixelSizeX, r.Geo.PixelSizeY, 0),
			doubleEntry(tagModelTiepointTag, 0, 0, 0, r.Geo.OriginX, r.Geo.OriginY, 0),
		)
		if r.Geo.EPSG > 0 && r.Geo.EPSG < math.MaxUint16 {
			entries = append(entries, shortEntry(tagGeoKeyDirectoryTag, buildGeoKeys(r.Geo.EPSG, r.Geographic)...))
		}
	}
	if r.HasNoData {
		entries = append(entries, asciiEntry(tagGDALNoData, formatNoData(r.NoData)))
	}

	out := writeIFD(buf.Bytes(), entries)
	if uint64(len(out)) > math.MaxUint32 {
		return nil, fmt.Errorf("raster of %d bytes exceeds classic TIFF limits", len(out))
	}
	copy(out[0:2], "II")
	le.PutUint16(out[2:4], 42)
	return out, nil
}

// The writer always produces little-endian files.
var le = binary.LittleEndian

func formatNoData(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func appendSample(dst []byte, v float64, l sampleLayout) []byte {
	switch {
	case l.format == sampleFloat && l.bits == 32:
		return le.AppendUint32(dst, math.Float32bits(float32(v)))
	case l.format == sampleFloat:
		return le.AppendUint64(dst, math.Float64bits(v))
	case l.bits == 8:
		return append(dst, uint8(v))
	case l.bits == 16 && l.format == sampleInt:
		return le.AppendUint16(dst, uint16(int16(v)))
	case l.bits == 16:
		return le.AppendUint16(dst, uint16(v))
	case l.format == sampleInt:
		return le.AppendUint32(dst, uint32(int32(v)))
	default:
		return le.AppendUint32(dst, uint32(v))
	}
}

// applyHorizontalPredictor differences each row in place, right to left.
func applyHorizontalPredictor(raw []byte, size, width int) {
	rowBytes := width * size
	for start := 0; start+rowBytes <= len(raw); start += rowBytes {
		row := raw[start : start+rowBytes]
		for i := width - 1; i > 0; i-- {
			cur, prev := row[i*size:(i+1)*size], row[(i-1)*size:i*size]
			switch size {
			case 1:
				cur[0] -= prev[0]
			case 2:
				le.PutUint16(cur, le.Uint16(cur)-le.Uint16(prev))
			case 4:
				le.PutUint32(cur, le.Uint32(cur)-le.Uint32(prev))
			}
		}
	}
}

// applyFloatPredictor splits each row into byte planes (most significant
// first) and differences the bytes.
func applyFloatPredictor(raw []byte, size, width int) {
	rowBytes := width * size
	tmp := make([]byte, rowBytes)
	for start := 0; start+rowBytes <= len(raw); start += rowBytes {
		row := raw[start : start+rowBytes]
		for s := 0; s < width; s++ {
			for b := 0; b < size; b++ {
				// Byte b of the big-endian form of sample s.
				tmp[b*width+s] = row[s*size+size-1-b]
			}
		}
		copy(row, tmp)
		for i := rowBytes - 1; i > 0; i-- {
			row[i] -= row[i-1]
		}
	}
}

func compressor(compression uint16, level int) (func([]byte) ([]byte, error), error) {
	switch compression {
	case CompressionNone:
		return func(b []byte) ([]byte, error) {
			return append([]byte(nil), b...), nil
		}, nil
	case CompressionDeflate:
		if level == 0 {
			level = zlib.DefaultCompression
		}
		return func(b []byte) ([]byte, error) {
			var out bytes.Buffer
			zw, err := zlib.NewWriterLevel(&out, level)
			if err != nil {
				return nil, err
			}
			if _, err := zw.Write(b); err != nil {
				return nil, err
			}
			if err := zw.Close(); err != nil {
				return nil, err
			}
			return out.Bytes(), nil
		}, nil
	case CompressionZSTD:
		zl := zstd.SpeedDefault
		if level > 0 {
			zl = zstd.EncoderLevelFromZstd(level)
		}
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zl), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return func(b []byte) ([]byte, error) {
			return enc.EncodeAll(b, nil), nil
		}, nil
	}
	return nil, fmt.Errorf("unsupported compression for writing: %d", compression)
}

// ifdEntry is a tag ready to be serialised.
type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte // little-endian value bytes
}

func shortEntry(tag uint16, vals ...uint16) ifdEntry {
	data := make([]byte, 0, 2*len(vals))
	for _, v := range vals {
		data = le.AppendUint16(data, v)
	}
	return ifdEntry{tag: tag, typ: dtShort, count: uint32(len(vals)), data: data}
}

func longEntry(tag uint16, vals ...uint32) ifdEntry {
	data := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		data = le.AppendUint32(data, v)
	}
	return ifdEntry{tag: tag, typ: dtLong, count: uint32(len(vals)), data: data}
}

func doubleEntry(tag uint16, vals ...float64) ifdEntry {
	data := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		data = le.AppendUint64(data, math.Float64bits(v))
	}
	return ifdEntry{tag: tag, typ: dtDouble, count: uint32(len(vals)), data: data}
}

func asciiEntry(tag uint16, s string) ifdEntry {
	data := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: dtASCII, count: uint32(len(data)), data: data}
}

func repeat[T any](v T, n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// writeIFD appends a single IFD (entries sorted by tag) followed by its
// out-of-line values to buf and points the header at it.
func writeIFD(buf []byte, entries []ifdEntry) []byte {
	slices.SortFunc(entries, func(a, b ifdEntry) int { return int(a.tag) - int(b.tag) })

	ifdOffset := len(buf)
	extOffset := ifdOffset + 2 + 12*len(entries) + 4

	var ext []byte
	buf = le.AppendUint16(buf, uint16(len(entries)))
	for _, e := range entries {
		buf = le.AppendUint16(buf, e.tag)
		buf = le.AppendUint16(buf, e.typ)
		buf = le.AppendUint32(buf, e.count)
		if len(e.data) <= 4 {
			var inline [4]byte
			copy(inline[:], e.data)
			buf = append(buf, inline[:]...)
			continue
		}
		if len(ext)%2 == 1 {
			ext = append(ext, 0)
		}
		buf = le.AppendUint32(buf, uint32(extOffset+len(ext)))
		ext = append(ext, e.data...)
	}
	buf = le.AppendUint32(buf, 0) // no further IFDs
	buf = append(buf, ext...)

	le.PutUint32(buf[4:8], uint32(ifdOffset))
	return buf
}
