package cog

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TFW holds the six affine parameters of an ESRI world file.
type TFW struct {
	PixelSizeX float64 // line 1
	RotationY  float64 // line 2
	RotationX  float64 // line 3
	PixelSizeY float64 // line 4, negative for north-up
	OriginX    float64 // line 5, x of the upper-left pixel center
	OriginY    float64 // line 6, y of the upper-left pixel center
}

// parseTFW reads a world file. Blank lines are skipped.
func parseTFW(path string) (*TFW, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading TFW %s: %w", path, err)
	}
	defer f.Close()

	var vals []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() && len(vals) < 6 {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("TFW %s value %d: %w", path, len(vals)+1, err)
		}
		vals = append(vals, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading TFW %s: %w", path, err)
	}
	if len(vals) < 6 {
		return nil, fmt.Errorf("TFW %s: expected 6 values, got %d", path, len(vals))
	}

	tfw := &TFW{vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]}
	if tfw.RotationX != 0 || tfw.RotationY != 0 {
		return nil, fmt.Errorf("TFW %s: rotated world files are not supported", path)
	}
	if tfw.PixelSizeX == 0 || tfw.PixelSizeY == 0 {
		return nil, fmt.Errorf("TFW %s: zero pixel size", path)
	}
	return tfw, nil
}

// findTFW returns the world file next to tiffPath, or "" if there is none.
func findTFW(tiffPath string) string {
	base := strings.TrimSuffix(tiffPath, filepath.Ext(tiffPath))
	for _, ext := range []string{".tfw", ".TFW", ".tifw", ".TIFW", ".wld"} {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext
		}
	}
	return ""
}

// toGeoInfo moves the origin from the upper-left pixel center to its corner.
func (tfw *TFW) toGeoInfo() GeoInfo {
	dx, dy := math.Abs(tfw.PixelSizeX), math.Abs(tfw.PixelSizeY)
	return GeoInfo{
		PixelSizeX: dx,
		PixelSizeY: dy,
		OriginX:    tfw.OriginX - dx/2,
		OriginY:    tfw.OriginY + dy/2,
	}
}

// inferEPSG guesses the CRS of a world-file raster from its extent. Only
// unambiguous cases are recognised: geographic degrees and Swiss LV95.
// Anything else yields 0 and must be declared by the caller.
func inferEPSG(info GeoInfo, width, height uint32) int {
	maxX := info.OriginX + float64(width)*info.PixelSizeX
	minY := info.OriginY - float64(height)*info.PixelSizeY

	if info.OriginX >= -180 && maxX <= 360 && minY >= -90 && info.OriginY <= 90 {
		return 4326
	}
	if info.OriginX >= 2_400_000 && maxX <= 2_900_000 &&
		minY >= 1_000_000 && info.OriginY <= 1_400_000 {
		return 2056
	}
	return 0
}
