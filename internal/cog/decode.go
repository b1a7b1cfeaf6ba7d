package cog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// zstdDecoder is shared by all readers; DecodeAll is safe for concurrent use.
var zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

// decompress inflates one block according to the TIFF compression tag.
func decompress(compression uint16, data []byte, sizeHint int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionLZW:
		return decompressTIFFLZW(data, sizeHint)
	case CompressionDeflate, compressionAdobeDeflate:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		out := bytes.NewBuffer(make([]byte, 0, sizeHint))
		if _, err := io.Copy(out, zr); err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		return out.Bytes(), nil
	case CompressionZSTD:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, sizeHint))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %d", compression)
	}
}

// undoHorizontalPredictor reverses predictor 2 in place. raw holds rows of
// rowSamples samples of size bytes each in byte order bo.
func undoHorizontalPredictor(raw []byte, bo binary.ByteOrder, size, rowSamples, spp int) {
	rowBytes := rowSamples * size
	for start := 0; start+rowBytes <= len(raw); start += rowBytes {
		row := raw[start : start+rowBytes]
		for i := spp; i < rowSamples; i++ {
			cur := row[i*size : (i+1)*size]
			prev := row[(i-spp)*size : (i-spp+1)*size]
			switch size {
			case 1:
				cur[0] += prev[0]
			case 2:
				bo.PutUint16(cur, bo.Uint16(cur)+bo.Uint16(prev))
			case 4:
				bo.PutUint32(cur, bo.Uint32(cur)+bo.Uint32(prev))
			case 8:
				bo.PutUint64(cur, bo.Uint64(cur)+bo.Uint64(prev))
			}
		}
	}
}

// undoFloatPredictor reverses predictor 3. After this call every sample is
// stored big-endian regardless of the file byte order.
func undoFloatPredictor(raw []byte, size, rowSamples, spp int) {
	rowBytes := rowSamples * size
	tmp := make([]byte, rowBytes)
	for start := 0; start+rowBytes <= len(raw); start += rowBytes {
		row := raw[start : start+rowBytes]
		for i := spp; i < rowBytes; i++ {
			row[i] += row[i-spp]
		}
		// Byte planes are stored most significant first.
		copy(tmp, row)
		for s := 0; s < rowSamples; s++ {
			for b := 0; b < size; b++ {
				row[s*size+b] = tmp[b*rowSamples+s]
			}
		}
	}
}

// toFloat64 converts n samples starting at sample index first, stepping by
// stride samples, into dst.
func toFloat64(dst []float64, raw []byte, bo binary.ByteOrder, format uint16, size, first, stride int) {
	for i := range dst {
		off := (first + i*stride) * size
		if off+size > len(raw) {
			dst[i] = math.NaN()
			continue
		}
		b := raw[off : off+size]
		switch format {
		case sampleFloat:
			if size == 4 {
				dst[i] = float64(math.Float32frombits(bo.Uint32(b)))
			} else {
				dst[i] = math.Float64frombits(bo.Uint64(b))
			}
		case sampleInt:
			switch size {
			case 1:
				dst[i] = float64(int8(b[0]))
			case 2:
				dst[i] = float64(int16(bo.Uint16(b)))
			case 4:
				dst[i] = float64(int32(bo.Uint32(b)))
			}
		default:
			switch size {
			case 1:
				dst[i] = float64(b[0])
			case 2:
				dst[i] = float64(bo.Uint16(b))
			case 4:
				dst[i] = float64(bo.Uint32(b))
			}
		}
	}
}
