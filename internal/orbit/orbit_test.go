package orbit

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

func testCircular(t *testing.T) Circular {
	t.Helper()
	c, err := NewCircular(r3.Vec{X: 1}, r3.Vec{Z: 1}, 7_078_137, 7_500, 0)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCircular_StateAt(t *testing.T) {
	c := testCircular(t)
	for _, tt := range []float64{-100, 0, 12.5, 600} {
		p, v, err := c.StateAt(tt)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(r3.Norm(p)-c.Radius) > 1e-6 {
			t.Errorf("t=%v: |p| = %v, want %v", tt, r3.Norm(p), c.Radius)
		}
		if math.Abs(r3.Norm(v)-c.Speed) > 1e-9 {
			t.Errorf("t=%v: |v| = %v, want %v", tt, r3.Norm(v), c.Speed)
		}
		if d := r3.Dot(p, v); math.Abs(d) > 1e-3 {
			t.Errorf("t=%v: p·v = %v, want 0", tt, d)
		}
	}
}

func TestNewCircular_Errors(t *testing.T) {
	if _, err := NewCircular(r3.Vec{X: 1}, r3.Vec{X: 2}, 7e6, 7.5e3, 0); err == nil {
		t.Error("expected error for motion parallel to position")
	}
	if _, err := NewCircular(r3.Vec{X: 1}, r3.Vec{Y: 1}, 0, 7.5e3, 0); err == nil {
		t.Error("expected error for zero radius")
	}
}

func TestOrbit_InterpolatesCircular(t *testing.T) {
	c := testCircular(t)
	o, err := New(time.Time{}, c.Sample(0, 100, 10))
	if err != nil {
		t.Fatal(err)
	}
	if o.Len() != 11 {
		t.Fatalf("Len = %d, want 11", o.Len())
	}

	for _, tt := range []float64{0, 3.3, 47.25, 99.9, 100} {
		p, v, err := o.StateAt(tt)
		if err != nil {
			t.Fatalf("StateAt(%v): %v", tt, err)
		}
		wp, wv, _ := c.StateAt(tt)
		if d := r3.Norm(r3.Sub(p, wp)); d > 1e-2 {
			t.Errorf("t=%v: position error %v m", tt, d)
		}
		if d := r3.Norm(r3.Sub(v, wv)); d > 1e-2 {
			t.Errorf("t=%v: velocity error %v m/s", tt, d)
		}
	}
}

func TestOrbit_Domain(t *testing.T) {
	c := testCircular(t)
	o, err := New(time.Time{}, c.Sample(10, 50, 10))
	if err != nil {
		t.Fatal(err)
	}
	start, end := o.Domain()
	if start != 10 || end != 50 {
		t.Errorf("Domain = [%v, %v], want [10, 50]", start, end)
	}

	for _, tt := range []float64{9.999, 50.001, math.NaN()} {
		if _, _, err := o.StateAt(tt); !errors.Is(err, ErrOutOfDomain) {
			t.Errorf("StateAt(%v) err = %v, want ErrOutOfDomain", tt, err)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	c := testCircular(t)
	svs := c.Sample(0, 30, 10)

	if _, err := New(time.Time{}, svs[:3]); !errors.Is(err, ErrTooFewVectors) {
		t.Errorf("3 vectors: err = %v, want ErrTooFewVectors", err)
	}

	swapped := append([]StateVector(nil), svs...)
	swapped[1], swapped[2] = swapped[2], swapped[1]
	if _, err := New(time.Time{}, swapped); !errors.Is(err, ErrUnsorted) {
		t.Errorf("unsorted: err = %v, want ErrUnsorted", err)
	}

	dup := append([]StateVector(nil), svs...)
	dup[2].Time = dup[1].Time
	if _, err := New(time.Time{}, dup); !errors.Is(err, ErrUnsorted) {
		t.Errorf("duplicate time: err = %v, want ErrUnsorted", err)
	}
}

func TestOrbit_TimeConversion(t *testing.T) {
	epoch := time.Date(2017, 3, 4, 12, 0, 0, 0, time.UTC)
	c := testCircular(t)
	o, err := New(epoch, c.Sample(0, 30, 10))
	if err != nil {
		t.Fatal(err)
	}
	ts := epoch.Add(12*time.Second + 250*time.Millisecond)
	if s := o.Seconds(ts); s != 12.25 {
		t.Errorf("Seconds = %v, want 12.25", s)
	}
	if got := o.Time(12.25); !got.Equal(ts) {
		t.Errorf("Time(12.25) = %v, want %v", got, ts)
	}
}

func TestReadText(t *testing.T) {
	c := testCircular(t)
	epoch := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	svs := c.Sample(0, 40, 10)

	var buf bytes.Buffer
	if err := WriteText(&buf, epoch, svs); err != nil {
		t.Fatal(err)
	}
	text := "# synthetic orbit\n\n" + buf.String()

	o, err := ReadText(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if !o.Epoch().Equal(epoch) {
		t.Errorf("epoch = %v, want %v", o.Epoch(), epoch)
	}
	p, _, err := o.StateAt(20)
	if err != nil {
		t.Fatal(err)
	}
	if d := r3.Norm(r3.Sub(p, svs[2].Position)); d > 1e-3 {
		t.Errorf("position at 20 s off by %v m", d)
	}
}

func TestReadText_Timestamps(t *testing.T) {
	text := `
2020-01-02T03:04:05Z  7000000 0 0  0 7500 0
2020-01-02T03:04:15Z  6999960 75000 0  -80 7499 0  # trailing comment
2020-01-02T03:04:25Z  6999840 150000 0  -160 7498 0
2020-01-02T03:04:35Z  6999640 225000 0  -240 7496 0
`
	o, err := ReadText(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	if start, end := o.Domain(); start != 0 || end != 30 {
		t.Errorf("Domain = [%v, %v], want [0, 30]", start, end)
	}
	if want := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC); !o.Epoch().Equal(want) {
		t.Errorf("epoch = %v, want %v", o.Epoch(), want)
	}
}

func TestReadText_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"short row", "0 1 2 3\n"},
		{"bad number", "0 1 2 x 4 5 6\n"},
		{"late epoch", "0 1 2 3 4 5 6\nepoch 2020-01-01T00:00:00Z\n"},
		{"too few", "0 1 2 3 4 5 6\n1 1 2 3 4 5 6\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadText(strings.NewReader(tt.text)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

const eofSample = `<?xml version="1.0" ?>
<Earth_Explorer_File>
  <Earth_Explorer_Header>
    <Fixed_Header><File_Name>S1A_OPER_AUX_POEORB</File_Name></Fixed_Header>
  </Earth_Explorer_Header>
  <Data_Block type="xml">
    <List_of_OSVs count="5">
      <OSV><TAI>TAI=2019-01-01T23:00:27.000000</TAI><UTC>UTC=2019-01-01T22:59:50.000000</UTC>
        <X unit="m">7000000.0</X><Y unit="m">0.0</Y><Z unit="m">0.0</Z>
        <VX unit="m/s">0.0</VX><VY unit="m/s">7500.0</VY><VZ unit="m/s">0.0</VZ><Quality>NOMINAL</Quality></OSV>
      <OSV><UTC>UTC=2019-01-01T23:00:00.000000</UTC>
        <X unit="m">6999959.8</X><Y unit="m">74999.1</Y><Z unit="m">0.0</Z>
        <VX unit="m/s">-80.4</VX><VY unit="m/s">7499.6</VY><VZ unit="m/s">0.0</VZ></OSV>
      <OSV><UTC>UTC=2019-01-01T23:00:10.000000</UTC>
        <X unit="m">6999839.3</X><Y unit="m">149996.3</Y><Z unit="m">0.0</Z>
        <VX unit="m/s">-160.7</VX><VY unit="m/s">7498.3</VY><VZ unit="m/s">0.0</VZ></OSV>
      <OSV><UTC>UTC=2019-01-01T23:00:20.000000</UTC>
        <X unit="m">6999638.3</X><Y unit="m">224987.5</Y><Z unit="m">0.0</Z>
        <VX unit="m/s">-241.1</VX><VY unit="m/s">7496.1</VY><VZ unit="m/s">0.0</VZ></OSV>
      <OSV><UTC>UTC=2019-01-01T23:00:30.000000</UTC>
        <X unit="m">6999357.0</X><Y unit="m">299970.4</Y><Z unit="m">0.0</Z>
        <VX unit="m/s">-321.4</VX><VY unit="m/s">7493.1</VY><VZ unit="m/s">0.0</VZ></OSV>
    </List_of_OSVs>
  </Data_Block>
</Earth_Explorer_File>
`

func TestReadEOF(t *testing.T) {
	o, err := ReadEOF(strings.NewReader(eofSample), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadEOF: %v", err)
	}
	if o.Len() != 5 {
		t.Errorf("Len = %d, want 5", o.Len())
	}
	if want := time.Date(2019, 1, 1, 22, 59, 50, 0, time.UTC); !o.Epoch().Equal(want) {
		t.Errorf("epoch = %v, want %v", o.Epoch(), want)
	}
	if _, end := o.Domain(); end != 40 {
		t.Errorf("end = %v, want 40", end)
	}
}

func TestReadEOF_Crop(t *testing.T) {
	from := time.Date(2019, 1, 1, 23, 0, 0, 0, time.UTC)
	_, err := ReadEOF(strings.NewReader(eofSample), from, from.Add(25*time.Second))
	if !errors.Is(err, ErrTooFewVectors) {
		t.Errorf("cropped to 3 vectors: err = %v, want ErrTooFewVectors", err)
	}
	o, err := ReadEOF(strings.NewReader(eofSample), from, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if !o.Epoch().Equal(from) || o.Len() != 4 {
		t.Errorf("crop from: epoch %v len %d", o.Epoch(), o.Len())
	}
}

func TestLoad_Sniffing(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "orbit.dat")
	if err := os.WriteFile(xmlPath, []byte("\n  "+eofSample), 0o644); err != nil {
		t.Fatal(err)
	}
	o, err := Load(xmlPath, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Load xml: %v", err)
	}
	if o.Len() != 5 {
		t.Errorf("Len = %d, want 5", o.Len())
	}

	var buf bytes.Buffer
	c := testCircular(t)
	WriteText(&buf, time.Unix(0, 0).UTC(), c.Sample(0, 60, 10))
	txtPath := filepath.Join(dir, "orbit.txt")
	if err := os.WriteFile(txtPath, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	o, err = Load(txtPath, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Load text: %v", err)
	}
	if o.Len() != 7 {
		t.Errorf("Len = %d, want 7", o.Len())
	}

	if _, err := Load(filepath.Join(dir, "missing.EOF"), time.Time{}, time.Time{}); err == nil {
		t.Error("expected error for missing file")
	}
}
