package orbit

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// osv is one <OSV> record of an Earth Explorer orbit file.
type osv struct {
	UTC string `xml:"UTC"`
	X   string `xml:"X"`
	Y   string `xml:"Y"`
	Z   string `xml:"Z"`
	VX  string `xml:"VX"`
	VY  string `xml:"VY"`
	VZ  string `xml:"VZ"`
}

const eofTimeLayout = "2006-01-02T15:04:05.999999"

// ReadEOF parses a Sentinel-1 precise or restituted orbit file (Earth
// Explorer XML, *.EOF). State vectors are taken from List_of_OSVs; the UTC
// time of the first vector becomes the epoch. When from and to are non-zero
// only vectors within [from, to] are kept.
func ReadEOF(r io.Reader, from, to time.Time) (*Orbit, error) {
	dec := xml.NewDecoder(r)
	var (
		epoch time.Time
		svs   []StateVector
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("orbit: parsing EOF: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "OSV" {
			continue
		}

		var rec osv
		if err := dec.DecodeElement(&rec, &start); err != nil {
			return nil, fmt.Errorf("orbit: parsing OSV %d: %w", len(svs), err)
		}
		ts, err := time.Parse(eofTimeLayout, strings.TrimPrefix(strings.TrimSpace(rec.UTC), "UTC="))
		if err != nil {
			return nil, fmt.Errorf("orbit: OSV %d time: %w", len(svs), err)
		}
		if !from.IsZero() && ts.Before(from) {
			continue
		}
		if !to.IsZero() && ts.After(to) {
			break
		}

		var v [6]float64
		for i, s := range []string{rec.X, rec.Y, rec.Z, rec.VX, rec.VY, rec.VZ} {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("orbit: OSV %d: %w", len(svs), err)
			}
			v[i] = f
		}

		if len(svs) == 0 {
			epoch = ts
		}
		svs = append(svs, StateVector{
			Time:     ts.Sub(epoch).Seconds(),
			Position: r3.Vec{X: v[0], Y: v[1], Z: v[2]},
			Velocity: r3.Vec{X: v[3], Y: v[4], Z: v[5]},
		})
	}
	return New(epoch, svs)
}
