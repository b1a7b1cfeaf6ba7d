package encode

import (
	"bytes"
	"image"
	"image/png"
)

// PNGEncoder keeps no-data transparent.
type PNGEncoder struct{}

func (e *PNGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *PNGEncoder) Format() string        { return "png" }
func (e *PNGEncoder) FileExtension() string { return ".png" }
