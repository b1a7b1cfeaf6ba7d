package encode

import (
	"bytes"
	"image"

	"github.com/gen2brain/webp"
)

// WebPEncoder uses the WASM build of libwebp (or a system libwebp through
// purego when present), so no CGo is needed. Lossless keeps exact colours.
type WebPEncoder struct {
	Quality  int
	Lossless bool
}

func (e *WebPEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	opts := webp.Options{
		Lossless: e.Lossless,
		Quality:  qualityOr(e.Quality, 85),
	}
	if err := webp.Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *WebPEncoder) Format() string        { return "webp" }
func (e *WebPEncoder) FileExtension() string { return ".webp" }
