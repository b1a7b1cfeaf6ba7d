package cog

// GeoTIFF GeoKey IDs.
const (
	gkModelTypeGeoKey       = 1024
	gkRasterTypeGeoKey      = 1025
	gkGeographicTypeGeoKey  = 2048
	gkProjectedCSTypeGeoKey = 3072
)

const (
	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterPixelIsArea   = 1
	rasterPixelIsPoint  = 2
)

// GeoInfo holds parsed GeoTIFF metadata.
type GeoInfo struct {
	EPSG       int     // EPSG code (e.g. 32645)
	OriginX    float64 // x of the upper-left corner
	OriginY    float64 // y of the upper-left corner
	PixelSizeX float64 // pixel width in CRS units (positive)
	PixelSizeY float64 // pixel height in CRS units (positive)
}

// Valid reports whether the georeferencing describes a usable grid.
func (g GeoInfo) Valid() bool {
	return g.PixelSizeX > 0 && g.PixelSizeY > 0
}

// PixelToCRS returns the CRS coordinate of fractional pixel position (px, py),
// where (0, 0) is the upper-left corner of the upper-left pixel.
func (g GeoInfo) PixelToCRS(px, py float64) (x, y float64) {
	return g.OriginX + px*g.PixelSizeX, g.OriginY - py*g.PixelSizeY
}

// CRSToPixel is the inverse of PixelToCRS.
func (g GeoInfo) CRSToPixel(x, y float64) (px, py float64) {
	return (x - g.OriginX) / g.PixelSizeX, (g.OriginY - y) / g.PixelSizeY
}

// parseGeoInfo extracts geographic metadata from an IFD.
func parseGeoInfo(ifd *IFD) GeoInfo {
	info := GeoInfo{}

	// ModelPixelScale: [ScaleX, ScaleY, ScaleZ]
	if len(ifd.ModelPixelScale) >= 2 {
		info.PixelSizeX = ifd.ModelPixelScale[0]
		info.PixelSizeY = ifd.ModelPixelScale[1]
	}

	// ModelTiepoint: [I, J, K, X, Y, Z] maps pixel (I,J) to (X,Y).
	if len(ifd.ModelTiepoint) >= 6 {
		i, j := ifd.ModelTiepoint[0], ifd.ModelTiepoint[1]
		if geoKey(ifd.GeoKeys, gkRasterTypeGeoKey) == rasterPixelIsPoint {
			// Tiepoint refers to the pixel center.
			i, j = i+0.5, j+0.5
		}
		info.OriginX = ifd.ModelTiepoint[3] - i*info.PixelSizeX
		info.OriginY = ifd.ModelTiepoint[4] + j*info.PixelSizeY
	}

	info.EPSG = parseEPSG(ifd.GeoKeys)
	return info
}

// parseEPSG extracts the EPSG code from GeoKey directory entries.
func parseEPSG(geoKeys []uint16) int {
	if v := geoKey(geoKeys, gkProjectedCSTypeGeoKey); v > 0 && v != 32767 {
		return v
	}
	if v := geoKey(geoKeys, gkGeographicTypeGeoKey); v > 0 && v != 32767 {
		return v
	}
	return 0
}

// geoKey returns the inline SHORT value of a GeoKey, or 0 when absent.
func geoKey(geoKeys []uint16, id uint16) int {
	if len(geoKeys) < 4 {
		return 0
	}

	// Header: [KeyDirectoryVersion, KeyRevision, MinorRevision, NumberOfKeys]
	numKeys := int(geoKeys[3])
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(geoKeys) {
			break
		}
		// Entry: [KeyID, TIFFTagLocation, Count, ValueOffset]; location 0 = inline.
		if geoKeys[base] == id && geoKeys[base+1] == 0 {
			return int(geoKeys[base+3])
		}
	}
	return 0
}

// buildGeoKeys returns a GeoKey directory for the given EPSG code.
func buildGeoKeys(epsg int, geographic bool) []uint16 {
	modelType, csKey := uint16(modelTypeProjected), uint16(gkProjectedCSTypeGeoKey)
	if geographic {
		modelType, csKey = modelTypeGeographic, gkGeographicTypeGeoKey
	}
	return []uint16{
		1, 1, 0, 3,
		gkModelTypeGeoKey, 0, 1, modelType,
		gkRasterTypeGeoKey, 0, 1, rasterPixelIsArea,
		csKey, 0, 1, uint16(epsg),
	}
}
