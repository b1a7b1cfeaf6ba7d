package encode

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
)

// JPEGEncoder flattens the image onto Background before encoding, since
// JPEG has no alpha channel.
type JPEGEncoder struct {
	Quality    int         // 1-100, default 85
	Background color.Color // nil is white
}

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	bg := e.Background
	if bg == nil {
		bg = color.White
	}
	flat := image.NewRGBA(img.Bounds())
	draw.Draw(flat, flat.Rect, image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Rect, img, img.Bounds().Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: qualityOr(e.Quality, 85)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *JPEGEncoder) Format() string        { return "jpeg" }
func (e *JPEGEncoder) FileExtension() string { return ".jpg" }
