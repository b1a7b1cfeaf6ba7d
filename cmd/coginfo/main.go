package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/pspoerri/geogrid/internal/cog"
)

func main() {
	stats := flag.Bool("stats", true, "Read every band and print value statistics")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: coginfo [flags] <file.tif>\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	r, err := cog.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	ifd := r.IFD()
	fmt.Printf("File: %s\n", r.Path())
	fmt.Printf("EPSG: %d\n", r.EPSG())
	fmt.Printf("Size: %d x %d, %d band(s) of %s\n", r.Width(), r.Height(), r.Bands(), ifd.DataType())
	dx, dy := r.PixelSize()
	fmt.Printf("Pixel size (CRS units): %g x %g\n", dx, dy)
	if nd, ok := r.NoData(); ok {
		fmt.Printf("No-data: %g\n", nd)
	}
	bw, bh := ifd.BlockSize()
	layout := "strips"
	if ifd.Tiled() {
		layout = "tiles"
	}
	fmt.Printf("Blocks: %dx%d %s, %d x %d, compression %d\n",
		bw, bh, layout, ifd.BlocksAcross(), ifd.BlocksDown(), ifd.Compression)
	fmt.Printf("Overviews: %d\n", r.NumOverviews())

	geo := r.GeoInfo()
	fmt.Printf("Origin: X=%f, Y=%f\n", geo.OriginX, geo.OriginY)
	minX, minY, maxX, maxY := r.BoundsInCRS()
	fmt.Printf("Bounds (CRS): X=[%f, %f], Y=[%f, %f]\n", minX, maxX, minY, maxY)

	if !*stats {
		return
	}
	for b := 0; b < r.Bands(); b++ {
		vals, err := r.ReadBand(b)
		if err != nil {
			fmt.Printf("  Band %d: ERROR: %v\n", b, err)
			continue
		}
		printStats(b, vals, r)
	}
}

func printStats(band int, vals []float64, r *cog.Reader) {
	lo, hi := math.Inf(1), math.Inf(-1)
	var sum float64
	valid := 0
	for _, v := range vals {
		if r.IsNoData(v) || math.IsNaN(v) {
			continue
		}
		lo, hi = min(lo, v), max(hi, v)
		sum += v
		valid++
	}
	if valid == 0 {
		fmt.Printf("  Band %d: no valid samples\n", band)
		return
	}
	fmt.Printf("  Band %d: %d/%d valid (%.1f%%), min=%g max=%g mean=%g\n",
		band, valid, len(vals), 100*float64(valid)/float64(len(vals)), lo, hi, sum/float64(valid))
}
