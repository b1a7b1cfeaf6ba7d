// Package encode renders product bands as colour-mapped preview images and
// encodes them as PNG, JPEG or WebP.
package encode

import (
	"fmt"
	"image"
	"strings"
)

// Encoder turns an image into file bytes.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)

	// Format returns the format name (e.g. "jpeg", "png", "webp").
	Format() string

	FileExtension() string
}

// NewEncoder creates an encoder for the given format. quality applies to
// the lossy formats; 0 selects 85.
func NewEncoder(format string, quality int) (Encoder, error) {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return &JPEGEncoder{Quality: quality}, nil
	case "png":
		return &PNGEncoder{}, nil
	case "webp":
		return &WebPEncoder{Quality: quality}, nil
	default:
		return nil, fmt.Errorf("unsupported quicklook format: %q (supported: png, jpeg, webp)", format)
	}
}

func qualityOr(q, def int) int {
	if q <= 0 || q > 100 {
		return def
	}
	return q
}
