package coord

import (
	"errors"
	"fmt"
)

// ErrUnsupportedEPSG is returned when no projection is implemented for an EPSG code.
var ErrUnsupportedEPSG = errors.New("unsupported EPSG code")

// Projection defines the interface for converting between a source CRS and WGS84.
type Projection interface {
	// ToWGS84 converts source CRS coordinates to WGS84 longitude/latitude (degrees).
	ToWGS84(x, y float64) (lon, lat float64)

	// FromWGS84 converts WGS84 longitude/latitude (degrees) to source CRS coordinates.
	FromWGS84(lon, lat float64) (x, y float64)

	// EPSG returns the EPSG code for this projection.
	EPSG() int
}

// ForEPSG returns a Projection for the given EPSG code.
// Returns nil if the EPSG code is not supported.
func ForEPSG(epsg int) Projection {
	switch {
	case epsg == 2056:
		return &SwissLV95{}
	case epsg == 4326:
		return &WGS84Identity{}
	case epsg == 3857:
		return &WebMercatorProj{}
	case epsg > 32600 && epsg <= 32660:
		return NewUTM(epsg-32600, true)
	case epsg > 32700 && epsg <= 32760:
		return NewUTM(epsg-32700, false)
	}
	if ps := polarForEPSG(epsg); ps != nil {
		return ps
	}
	return nil
}

// Lookup is ForEPSG with an error for unsupported codes.
func Lookup(epsg int) (Projection, error) {
	p := ForEPSG(epsg)
	if p == nil {
		return nil, fmt.Errorf("EPSG:%d: %w", epsg, ErrUnsupportedEPSG)
	}
	return p, nil
}

// IsGeographic reports whether the projection's coordinates are lon/lat degrees.
func IsGeographic(p Projection) bool {
	return p.EPSG() == 4326
}

// WGS84Identity is a no-op projection for data already in EPSG:4326.
type WGS84Identity struct{}

func (w *WGS84Identity) ToWGS84(x, y float64) (lon, lat float64)   { return x, y }
func (w *WGS84Identity) FromWGS84(lon, lat float64) (x, y float64) { return lon, lat }
func (w *WGS84Identity) EPSG() int                                 { return 4326 }
