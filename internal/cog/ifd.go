package cog

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// TIFF tag IDs.
const (
	tagImageWidth         = 256
	tagImageLength        = 257
	tagBitsPerSample      = 258
	tagCompression        = 259
	tagPhotometric        = 262
	tagStripOffsets       = 273
	tagSamplesPerPixel    = 277
	tagRowsPerStrip       = 278
	tagStripByteCounts    = 279
	tagPlanarConfig       = 284
	tagPredictor          = 317
	tagTileWidth          = 322
	tagTileLength         = 323
	tagTileOffsets        = 324
	tagTileByteCounts     = 325
	tagExtraSamples       = 338
	tagSampleFormat       = 339
	tagModelPixelScaleTag = 33550
	tagModelTiepointTag   = 33922
	tagGeoKeyDirectoryTag = 34735
	tagGeoDoubleParamsTag = 34736
	tagGeoAsciiParamsTag  = 34737
	tagGDALNoData         = 42113
)

// TIFF data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndef     = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

// Compression schemes understood by the reader.
const (
	CompressionNone    = 1
	CompressionLZW     = 5
	CompressionDeflate = 8
	CompressionZSTD    = 50000

	compressionAdobeDeflate = 32946
)

// SampleFormat tag values.
const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

// IFD represents a parsed TIFF Image File Directory. Strip and tile layouts
// are both described as a grid of blocks: a strip is a block as wide as the
// image and RowsPerStrip tall.
type IFD struct {
	Width           uint32
	Height          uint32
	TileWidth       uint32
	TileHeight      uint32
	RowsPerStrip    uint32
	BitsPerSample   []uint16
	SampleFormat    []uint16
	SamplesPerPixel uint16
	Compression     uint16
	Photometric     uint16
	Predictor       uint16
	PlanarConfig    uint16
	Offsets         []uint64
	ByteCounts      []uint64
	ModelTiepoint   []float64
	ModelPixelScale []float64
	GeoKeys         []uint16
	GeoDoubleParams []float64
	GeoAsciiParams  string
	NoData          string
}

// Tiled reports whether the image uses a tile layout.
func (ifd *IFD) Tiled() bool {
	return ifd.TileWidth > 0 && ifd.TileHeight > 0
}

// BlockSize returns the width and height of one tile or strip.
func (ifd *IFD) BlockSize() (w, h int) {
	if ifd.Tiled() {
		return int(ifd.TileWidth), int(ifd.TileHeight)
	}
	rps := ifd.RowsPerStrip
	if rps == 0 || rps > ifd.Height {
		rps = ifd.Height
	}
	return int(ifd.Width), int(rps)
}

// BlocksAcross returns the number of blocks in the horizontal direction.
func (ifd *IFD) BlocksAcross() int {
	w, _ := ifd.BlockSize()
	return (int(ifd.Width) + w - 1) / w
}

// BlocksDown returns the number of blocks in the vertical direction.
func (ifd *IFD) BlocksDown() int {
	_, h := ifd.BlockSize()
	return (int(ifd.Height) + h - 1) / h
}

// bytesPerSample returns the size of one sample of the first band.
func (ifd *IFD) bytesPerSample() int {
	if len(ifd.BitsPerSample) == 0 {
		return 1
	}
	return int(ifd.BitsPerSample[0]) / 8
}

// sampleFormat returns the SampleFormat of the first band (1 when absent).
func (ifd *IFD) sampleFormat() uint16 {
	if len(ifd.SampleFormat) == 0 {
		return sampleUint
	}
	return ifd.SampleFormat[0]
}

// DataType returns a GDAL-style name of the sample type, e.g. "Float32".
func (ifd *IFD) DataType() string {
	bits := 8 * ifd.bytesPerSample()
	switch ifd.sampleFormat() {
	case sampleInt:
		return fmt.Sprintf("Int%d", bits)
	case sampleFloat:
		return fmt.Sprintf("Float%d", bits)
	default:
		if bits == 8 {
			return "Byte"
		}
		return fmt.Sprintf("UInt%d", bits)
	}
}

// validate checks that the layout is one the reader can decode.
func (ifd *IFD) validate() error {
	if ifd.Width == 0 || ifd.Height == 0 {
		return fmt.Errorf("empty image %dx%d", ifd.Width, ifd.Height)
	}
	bits := uint16(8)
	if len(ifd.BitsPerSample) > 0 {
		bits = ifd.BitsPerSample[0]
	}
	for _, b := range ifd.BitsPerSample {
		if b != bits {
			return fmt.Errorf("mixed bits per sample %v", ifd.BitsPerSample)
		}
	}
	switch ifd.sampleFormat() {
	case sampleUint, sampleInt:
		if bits != 8 && bits != 16 && bits != 32 {
			return fmt.Errorf("unsupported integer sample size %d bits", bits)
		}
	case sampleFloat:
		if bits != 32 && bits != 64 {
			return fmt.Errorf("unsupported float sample size %d bits", bits)
		}
	default:
		return fmt.Errorf("unsupported sample format %d", ifd.sampleFormat())
	}
	switch ifd.Compression {
	case CompressionNone, CompressionLZW, CompressionDeflate, compressionAdobeDeflate, CompressionZSTD:
	default:
		return fmt.Errorf("unsupported compression %d", ifd.Compression)
	}
	switch ifd.Predictor {
	case 0, 1, 2, 3:
	default:
		return fmt.Errorf("unsupported predictor %d", ifd.Predictor)
	}
	want := ifd.BlocksAcross() * ifd.BlocksDown()
	if ifd.PlanarConfig == 2 {
		want *= int(ifd.SamplesPerPixel)
	}
	if len(ifd.Offsets) < want || len(ifd.ByteCounts) < want {
		return fmt.Errorf("have %d block offsets, need %d", len(ifd.Offsets), want)
	}
	return nil
}

// tiffEntry is a raw TIFF directory entry.
type tiffEntry struct {
	Tag      uint16
	DataType uint16
	Count    uint64
	Value    []byte // raw value bytes or inline value
}

// parseTIFF reads all IFDs from a TIFF file.
func parseTIFF(r io.ReadSeeker) ([]IFD, binary.ByteOrder, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, nil, fmt.Errorf("reading TIFF header: %w", err)
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("invalid TIFF byte order: %x", header[0:2])
	}

	magic := bo.Uint16(header[2:4])
	isBigTIFF := magic == 43
	if magic != 42 && magic != 43 {
		return nil, nil, fmt.Errorf("invalid TIFF magic: %d", magic)
	}

	var offset uint64
	if isBigTIFF {
		// BigTIFF: bytes 4-5 = offset size (8), bytes 6-7 = 0, bytes 8-15 = first IFD offset
		var bigHeader [8]byte
		if _, err := io.ReadFull(r, bigHeader[:]); err != nil {
			return nil, nil, fmt.Errorf("reading BigTIFF header: %w", err)
		}
		offset = bo.Uint64(bigHeader[:])
	} else {
		offset = uint64(bo.Uint32(header[4:8]))
	}

	var ifds []IFD
	seen := make(map[uint64]bool)
	for offset != 0 {
		if seen[offset] {
			return nil, nil, fmt.Errorf("IFD chain loops at offset %d", offset)
		}
		seen[offset] = true

		ifd, next, err := parseOneIFD(r, bo, offset, isBigTIFF)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing IFD at offset %d: %w", offset, err)
		}
		ifds = append(ifds, ifd)
		offset = next
	}

	return ifds, bo, nil
}

func parseOneIFD(r io.ReadSeeker, bo binary.ByteOrder, offset uint64, bigTIFF bool) (IFD, uint64, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return IFD{}, 0, err
	}

	countSize, entrySize, nextSize := 2, 12, 4
	if bigTIFF {
		countSize, entrySize, nextSize = 8, 20, 8
	}

	buf := make([]byte, countSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return IFD{}, 0, err
	}
	var numEntries uint64
	if bigTIFF {
		numEntries = bo.Uint64(buf)
	} else {
		numEntries = uint64(bo.Uint16(buf))
	}

	raw := make([]byte, int(numEntries)*entrySize+nextSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return IFD{}, 0, err
	}

	entries := make([]tiffEntry, numEntries)
	for i := range entries {
		entries[i] = parseTiffEntry(raw[i*entrySize:(i+1)*entrySize], bo, bigTIFF)
	}

	tail := raw[len(raw)-nextSize:]
	var next uint64
	if bigTIFF {
		next = bo.Uint64(tail)
	} else {
		next = uint64(bo.Uint32(tail))
	}

	// Resolve entries that point to external data.
	for i := range entries {
		if err := resolveEntry(r, bo, &entries[i], bigTIFF); err != nil {
			return IFD{}, 0, fmt.Errorf("resolving entry tag %d: %w", entries[i].Tag, err)
		}
	}

	return buildIFD(entries, bo), next, nil
}

func parseTiffEntry(buf []byte, bo binary.ByteOrder, bigTIFF bool) tiffEntry {
	e := tiffEntry{
		Tag:      bo.Uint16(buf[0:2]),
		DataType: bo.Uint16(buf[2:4]),
	}
	if bigTIFF {
		e.Count = bo.Uint64(buf[4:12])
		e.Value = append([]byte(nil), buf[12:20]...)
	} else {
		e.Count = uint64(bo.Uint32(buf[4:8]))
		e.Value = append([]byte(nil), buf[8:12]...)
	}
	return e
}

func dataTypeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndef:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble, dtLong8, dtSLong8, dtIFD8:
		return 8
	default:
		return 1
	}
}

// resolveEntry reads the actual data for an entry if it doesn't fit inline.
func resolveEntry(r io.ReadSeeker, bo binary.ByteOrder, e *tiffEntry, bigTIFF bool) error {
	totalSize := int(e.Count) * dataTypeSize(e.DataType)

	inlineSize := 4
	if bigTIFF {
		inlineSize = 8
	}
	if totalSize <= inlineSize {
		return nil
	}

	var dataOffset uint64
	if bigTIFF {
		dataOffset = bo.Uint64(e.Value)
	} else {
		dataOffset = uint64(bo.Uint32(e.Value))
	}

	if _, err := r.Seek(int64(dataOffset), io.SeekStart); err != nil {
		return err
	}

	data := make([]byte, totalSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	e.Value = data
	return nil
}

func buildIFD(entries []tiffEntry, bo binary.ByteOrder) IFD {
	ifd := IFD{
		SamplesPerPixel: 1,
		PlanarConfig:    1,
		Compression:     CompressionNone,
	}

	for _, e := range entries {
		switch e.Tag {
		case tagImageWidth:
			ifd.Width = getUint32(e, bo)
		case tagImageLength:
			ifd.Height = getUint32(e, bo)
		case tagTileWidth:
			ifd.TileWidth = getUint32(e, bo)
		case tagTileLength:
			ifd.TileHeight = getUint32(e, bo)
		case tagRowsPerStrip:
			ifd.RowsPerStrip = getUint32(e, bo)
		case tagBitsPerSample:
			ifd.BitsPerSample = getUint16Slice(e, bo)
		case tagSampleFormat:
			ifd.SampleFormat = getUint16Slice(e, bo)
		case tagSamplesPerPixel:
			ifd.SamplesPerPixel = getUint16Val(e, bo)
		case tagCompression:
			ifd.Compression = getUint16Val(e, bo)
		case tagPhotometric:
			ifd.Photometric = getUint16Val(e, bo)
		case tagPredictor:
			ifd.Predictor = getUint16Val(e, bo)
		case tagPlanarConfig:
			ifd.PlanarConfig = getUint16Val(e, bo)
		case tagTileOffsets, tagStripOffsets:
			ifd.Offsets = getUint64Slice(e, bo)
		case tagTileByteCounts, tagStripByteCounts:
			ifd.ByteCounts = getUint64Slice(e, bo)
		case tagModelTiepointTag:
			ifd.ModelTiepoint = getFloat64Slice(e, bo)
		case tagModelPixelScaleTag:
			ifd.ModelPixelScale = getFloat64Slice(e, bo)
		case tagGeoKeyDirectoryTag:
			ifd.GeoKeys = getUint16Slice(e, bo)
		case tagGeoDoubleParamsTag:
			ifd.GeoDoubleParams = getFloat64Slice(e, bo)
		case tagGeoAsciiParamsTag:
			ifd.GeoAsciiParams = asciiValue(e)
		case tagGDALNoData:
			ifd.NoData = asciiValue(e)
		}
	}

	return ifd
}

func asciiValue(e tiffEntry) string {
	n := min(int(e.Count), len(e.Value))
	return strings.TrimRight(string(e.Value[:n]), "\x00 ")
}

func getUint16Val(e tiffEntry, bo binary.ByteOrder) uint16 {
	switch e.DataType {
	case dtShort:
		return bo.Uint16(e.Value)
	case dtLong:
		return uint16(bo.Uint32(e.Value))
	default:
		return uint16(e.Value[0])
	}
}

func getUint32(e tiffEntry, bo binary.ByteOrder) uint32 {
	switch e.DataType {
	case dtShort:
		return uint32(bo.Uint16(e.Value))
	case dtLong:
		return bo.Uint32(e.Value)
	case dtLong8:
		return uint32(bo.Uint64(e.Value))
	default:
		return uint32(e.Value[0])
	}
}

func getUint16Slice(e tiffEntry, bo binary.ByteOrder) []uint16 {
	n := int(e.Count)
	result := make([]uint16, n)
	for i := 0; i < n; i++ {
		result[i] = bo.Uint16(e.Value[i*2 : i*2+2])
	}
	return result
}

func getUint64Slice(e tiffEntry, bo binary.ByteOrder) []uint64 {
	n := int(e.Count)
	result := make([]uint64, n)
	switch e.DataType {
	case dtLong:
		for i := 0; i < n; i++ {
			result[i] = uint64(bo.Uint32(e.Value[i*4 : i*4+4]))
		}
	case dtLong8:
		for i := 0; i < n; i++ {
			result[i] = bo.Uint64(e.Value[i*8 : i*8+8])
		}
	case dtShort:
		for i := 0; i < n; i++ {
			result[i] = uint64(bo.Uint16(e.Value[i*2 : i*2+2]))
		}
	}
	return result
}

func getFloat64Slice(e tiffEntry, bo binary.ByteOrder) []float64 {
	n := int(e.Count)
	result := make([]float64, n)
	size := dataTypeSize(e.DataType)
	for i := 0; i < n; i++ {
		off := i * size
		switch e.DataType {
		case dtDouble:
			result[i] = math.Float64frombits(bo.Uint64(e.Value[off : off+8]))
		case dtFloat:
			result[i] = float64(math.Float32frombits(bo.Uint32(e.Value[off : off+4])))
		}
	}
	return result
}
