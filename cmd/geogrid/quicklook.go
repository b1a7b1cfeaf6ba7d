package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pspoerri/geogrid/internal/cog"
	"github.com/pspoerri/geogrid/internal/encode"
	"github.com/pspoerri/geogrid/internal/geogrid"
)

// writeQuicklooks renders every band of the written products next to its
// GeoTIFF as <name>_<band><ext> and returns the files created.
func writeQuicklooks(p *geogrid.Products, dst geogrid.Outputs, enc encode.Encoder, size int) ([]string, error) {
	var written []string
	add := func(paths []string, err error) error {
		written = append(written, paths...)
		return err
	}

	seq := encode.Options{Colormap: encode.Viridis, MaxSize: size}
	div := encode.Options{Colormap: encode.Diverging, Symmetric: true, MaxSize: size}

	if dst.PixelLine != "" {
		if err := add(renderBands(p.PixelLine, dst.PixelLine, [2]string{"pixel", "line"}, seq, enc)); err != nil {
			return written, err
		}
	}
	if dst.Offset != "" && p.Offset != nil {
		if err := add(renderBands(p.Offset, dst.Offset, [2]string{"range", "azimuth"}, div, enc)); err != nil {
			return written, err
		}
	}
	for _, f := range []struct {
		path string
		r    *cog.Raster[float64]
	}{{dst.RO2VX, p.RO2VX}, {dst.RO2VY, p.RO2VY}} {
		if f.path == "" || f.r == nil {
			continue
		}
		if err := add(renderBands(f.r, f.path, [2]string{"range", "azimuth"}, div, enc)); err != nil {
			return written, err
		}
	}
	return written, nil
}

func renderBands[T cog.Sample](r *cog.Raster[T], path string, names [2]string, opts encode.Options, enc encode.Encoder) ([]string, error) {
	var written []string
	for b, name := range names {
		img, err := encode.Render(r, b, opts)
		if err != nil {
			return written, fmt.Errorf("%s band %s: %w", path, name, err)
		}
		data, err := enc.Encode(img)
		if err != nil {
			return written, fmt.Errorf("%s band %s: %w", path, name, err)
		}
		out := quicklookPath(path, name, enc)
		if err := cog.WriteBytes(out, data); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}

func quicklookPath(product, band string, enc encode.Encoder) string {
	return strings.TrimSuffix(product, filepath.Ext(product)) + "_" + band + enc.FileExtension()
}

// previewRef returns the s3:// destination of a preview whose product was
// staged for upload, or "" for local products.
func previewRef(preview string, dst geogrid.Outputs, uploads map[string]string) string {
	for _, product := range []string{dst.PixelLine, dst.Offset, dst.RO2VX, dst.RO2VY} {
		ref, ok := uploads[product]
		if product == "" || !ok {
			continue
		}
		stem := strings.TrimSuffix(product, filepath.Ext(product)) + "_"
		if rest, found := strings.CutPrefix(preview, stem); found {
			return strings.TrimSuffix(ref, filepath.Ext(ref)) + "_" + rest
		}
	}
	return ""
}
