package geogrid

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

// progressBar redraws one terminal line with the share of grid cells swept,
// the share of them that geocoded, and an estimate of the time left. A nil
// *progressBar ignores every call.
type progressBar struct {
	w      io.Writer
	cells  int64
	width  int
	start  time.Time
	stop   chan struct{}
	exited chan struct{}

	swept, valid atomic.Int64
}

func newProgressBar(w io.Writer, cells int) *progressBar {
	pb := &progressBar{
		w:      w,
		cells:  int64(cells),
		width:  30,
		start:  time.Now(),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go pb.loop()
	return pb
}

// Add records swept cells, valid of which produced a pixel/line pair.
func (pb *progressBar) Add(swept, valid int) {
	if pb == nil {
		return
	}
	pb.swept.Add(int64(swept))
	pb.valid.Add(int64(valid))
}

// Finish draws the final state and ends the line.
func (pb *progressBar) Finish() {
	if pb == nil {
		return
	}
	close(pb.stop)
	<-pb.exited
	fmt.Fprintln(pb.w, pb.line(time.Since(pb.start)))
}

func (pb *progressBar) loop() {
	defer close(pb.exited)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-pb.stop:
			return
		case <-tick.C:
			fmt.Fprint(pb.w, pb.line(time.Since(pb.start)))
		}
	}
}

func (pb *progressBar) line(elapsed time.Duration) string {
	swept, valid := pb.swept.Load(), pb.valid.Load()
	frac := 1.0
	if pb.cells > 0 {
		frac = min(1, float64(swept)/float64(pb.cells))
	}
	n := int(frac * float64(pb.width))
	bar := strings.Repeat("=", n) + strings.Repeat(" ", pb.width-n)

	validPct := 0.0
	if swept > 0 {
		validPct = 100 * float64(valid) / float64(swept)
	}
	eta := "--"
	if frac > 0 && frac < 1 {
		eta = formatDuration(time.Duration(float64(elapsed) * (1 - frac) / frac))
	} else if frac >= 1 {
		eta = "0s"
	}
	return fmt.Sprintf("\rgeocoding [%s] %5.1f%%  %d/%d cells, %.1f%% valid  elapsed %s  left %s\033[K",
		bar, 100*frac, swept, pb.cells, validPct, formatDuration(elapsed), eta)
}

// formatDuration prints whole seconds below a minute ("45s"), then
// minutes and seconds ("1m23s"), then hours ("2h05m").
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
