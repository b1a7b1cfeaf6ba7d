package orbit

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// ReadText parses a whitespace separated state vector table:
//
//	# comment
//	epoch 2017-03-04T12:00:00Z
//	<time> x y z vx vy vz
//
// <time> is either seconds since the epoch or an RFC 3339 timestamp. Without
// an epoch line the first timestamp (or the zero time, for numeric tables)
// becomes the epoch.
func ReadText(r io.Reader) (*Orbit, error) {
	sc := bufio.NewScanner(r)
	var (
		epoch    time.Time
		hasEpoch bool
		svs      []StateVector
		lineNo   int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if strings.EqualFold(fields[0], "epoch") {
			if len(fields) != 2 || len(svs) > 0 {
				return nil, fmt.Errorf("orbit: line %d: epoch must come before the state vectors", lineNo)
			}
			t, err := time.Parse(time.RFC3339Nano, fields[1])
			if err != nil {
				return nil, fmt.Errorf("orbit: line %d: %w", lineNo, err)
			}
			epoch, hasEpoch = t, true
			continue
		}
		if len(fields) != 7 {
			return nil, fmt.Errorf("orbit: line %d: expected 7 columns, got %d", lineNo, len(fields))
		}

		var sec float64
		if ts, err := time.Parse(time.RFC3339Nano, fields[0]); err == nil {
			if !hasEpoch {
				epoch, hasEpoch = ts, true
			}
			sec = ts.Sub(epoch).Seconds()
		} else {
			sec, err = strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, fmt.Errorf("orbit: line %d: bad time %q", lineNo, fields[0])
			}
		}

		var v [6]float64
		for i := range v {
			f, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("orbit: line %d column %d: %w", lineNo, i+2, err)
			}
			v[i] = f
		}
		svs = append(svs, StateVector{
			Time:     sec,
			Position: r3.Vec{X: v[0], Y: v[1], Z: v[2]},
			Velocity: r3.Vec{X: v[3], Y: v[4], Z: v[5]},
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("orbit: reading state vectors: %w", err)
	}
	return New(epoch, svs)
}

// WriteText writes state vectors in the format read by ReadText.
func WriteText(w io.Writer, epoch time.Time, svs []StateVector) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "epoch %s\n", epoch.UTC().Format(time.RFC3339Nano))
	for _, sv := range svs {
		fmt.Fprintf(bw, "%.6f %.4f %.4f %.4f %.6f %.6f %.6f\n", sv.Time,
			sv.Position.X, sv.Position.Y, sv.Position.Z,
			sv.Velocity.X, sv.Velocity.Y, sv.Velocity.Z)
	}
	return bw.Flush()
}
