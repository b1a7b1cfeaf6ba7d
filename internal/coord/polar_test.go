package coord

import (
	"math"
	"testing"
)

func TestPolarStereographic_Pole(t *testing.T) {
	for _, epsg := range []int{3031, 3413, 3995} {
		p := ForEPSG(epsg)
		lat := 90.0
		if epsg == 3031 {
			lat = -90
		}
		x, y := p.FromWGS84(0, lat)
		if math.Hypot(x, y) > 1e-6 {
			t.Errorf("EPSG:%d pole maps to (%v, %v), want origin", epsg, x, y)
		}
		_, gotLat := p.ToWGS84(0, 0)
		if math.Abs(gotLat-lat) > 1e-9 {
			t.Errorf("EPSG:%d ToWGS84(0, 0) lat = %v, want %v", epsg, gotLat, lat)
		}
	}
}

func TestPolarStereographic_Orientation(t *testing.T) {
	// EPSG:3031 has the Greenwich meridian pointing along +y.
	x, y := ForEPSG(3031).FromWGS84(0, -71)
	if math.Abs(x) > 1e-6 || y <= 0 {
		t.Errorf("3031 (0°, -71°) = (%.3f, %.3f), want x=0, y>0", x, y)
	}

	// EPSG:3413 has 45°W pointing along -y.
	x, y = ForEPSG(3413).FromWGS84(-45, 70)
	if math.Abs(x) > 1e-6 || y >= 0 {
		t.Errorf("3413 (-45°, 70°) = (%.3f, %.3f), want x=0, y<0", x, y)
	}
}

// At the standard parallel the projection is true to scale, so the distance
// from the pole equals the parallel's radius a·cosφ/√(1-e²sin²φ).
func TestPolarStereographic_TrueScaleParallel(t *testing.T) {
	tests := []struct {
		epsg  int
		latTS float64
	}{
		{3031, -71},
		{3413, 70},
		{3995, 71},
	}
	for _, tt := range tests {
		x, y := ForEPSG(tt.epsg).FromWGS84(17, tt.latTS)
		sinPhi, cosPhi := math.Sincos(tt.latTS * math.Pi / 180)
		want := WGS84A * math.Abs(cosPhi) / math.Sqrt(1-WGS84E2*sinPhi*sinPhi)
		if got := math.Hypot(x, y); math.Abs(got-want) > 1e-6 {
			t.Errorf("EPSG:%d radius at %v° = %.6f, want %.6f", tt.epsg, tt.latTS, got, want)
		}
	}
}
