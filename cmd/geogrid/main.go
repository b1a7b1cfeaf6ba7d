package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pspoerri/geogrid/internal/encode"
	"github.com/pspoerri/geogrid/internal/geogrid"
	"github.com/pspoerri/geogrid/internal/orbit"
	"github.com/pspoerri/geogrid/internal/remote"
	"github.com/pspoerri/geogrid/internal/runconfig"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Orbit vectors kept on either side of the acquisition.
const orbitMargin = 2 * time.Minute

func main() {
	var (
		configPath    string
		concurrency   int
		batchRows     int
		verbose       bool
		quicklook     string
		quicklookSize int
		quality       int
		metricsFile   string
		cacheDir      string
		cacheMemMB    int
		showVersion   bool
		cpuProfile    string
		memProfile    string
	)

	flag.StringVar(&configPath, "config", "", "Run file (YAML)")
	flag.IntVar(&concurrency, "concurrency", runtime.NumCPU(), "Number of parallel workers")
	flag.IntVar(&batchRows, "batch-rows", 8, "Grid rows per work item")
	flag.BoolVar(&verbose, "verbose", false, "Debug logging and a progress bar")
	flag.StringVar(&quicklook, "quicklook", "", "Also write preview images of every output band: png, jpeg, webp")
	flag.IntVar(&quicklookSize, "quicklook-size", 1024, "Longest side of preview images in pixels (0 = grid size)")
	flag.IntVar(&quality, "quality", 85, "JPEG/WebP preview quality 1-100")
	flag.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file at exit")
	flag.StringVar(&cacheDir, "cache-dir", defaultCacheDir(), "Directory for downloaded s3:// inputs and staged outputs")
	flag.IntVar(&cacheMemMB, "cache-mem", 0, "Memory for decoded input blocks in MB (0 = auto ~25% of RAM)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&cpuProfile, "cpuprofile", "", "Write CPU profile to file")
	flag.StringVar(&memProfile, "memprofile", "", "Write memory profile to file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: geogrid [flags] -config <run.yaml>\n\n")
		fmt.Fprintf(os.Stderr, "Map a projected grid to SAR radar geometry and write pixel/line,\n")
		fmt.Fprintf(os.Stderr, "offset-hint and velocity conversion GeoTIFFs.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("geogrid %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}
	if configPath == "" && flag.NArg() == 1 {
		configPath = flag.Arg(0)
	}
	if configPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// CPU profiling.
	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Fatalf("Creating CPU profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("Starting CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	// Memory profile (written at exit).
	if memProfile != "" {
		defer func() {
			f, err := os.Create(memProfile)
			if err != nil {
				log.Fatalf("Creating memory profile: %v", err)
			}
			defer f.Close()
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				log.Fatalf("Writing memory profile: %v", err)
			}
		}()
	}

	if metricsFile != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(metricsFile, prometheus.DefaultGatherer); err != nil {
				log.Printf("Writing metrics: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	rf, err := runconfig.Load(configPath)
	if err != nil {
		log.Fatalf("Run file: %v", err)
	}
	// Reject bad settings before any download or orbit parsing.
	if err := rf.Check(); err != nil {
		log.Fatalf("Configuration: %v", err)
	}
	geoid, err := rf.GeoidDEM()
	if err != nil {
		log.Fatalf("Configuration: %v", err)
	}
	writeOpts, err := rf.WriteOptions()
	if err != nil {
		log.Fatalf("Configuration: %v", err)
	}

	var enc encode.Encoder
	if quicklook != "" {
		if enc, err = encode.NewEncoder(quicklook, quality); err != nil {
			log.Fatalf("Quicklook: %v", err)
		}
	}

	// Object store inputs are downloaded, object store outputs are
	// written locally and uploaded once everything succeeded.
	inputs, outputs := rf.References()
	var store *remote.Store
	uploads := map[string]string{} // staged path -> s3:// reference
	if remote.AnyRemote(inputs) || remote.AnyRemote(outputs) {
		api, err := remote.NewS3()
		if err != nil {
			log.Fatalf("S3: %v", err)
		}
		store = remote.NewStore(api, cacheDir, logger)
		if err := store.FetchAll(ctx, inputs); err != nil {
			log.Fatalf("Fetching inputs: %v", err)
		}
		for _, p := range outputs {
			if !remote.IsRemote(*p) {
				continue
			}
			staged, err := store.StagePath(*p)
			if err != nil {
				log.Fatalf("Staging outputs: %v", err)
			}
			uploads[staged] = *p
			*p = staged
		}
	}
	for _, p := range outputs {
		if err := os.MkdirAll(filepath.Dir(*p), 0o755); err != nil {
			log.Fatalf("Creating output directory: %v", err)
		}
	}

	from, to, _ := rf.OrbitWindow(orbitMargin)
	o, err := orbit.Load(rf.Orbit, from, to)
	if err != nil {
		log.Fatalf("Orbit: %v", err)
	}
	var ts runconfig.Timescale
	if !o.Epoch().IsZero() {
		ts = o
	}
	cfg, err := rf.Config(o, ts)
	if err != nil {
		log.Fatalf("Configuration: %v", err)
	}

	cacheBytes := int64(cacheMemMB) << 20
	if cacheMemMB <= 0 {
		cacheBytes = geogrid.CacheBudget(geogrid.DefaultCacheFraction, logger)
	}

	// Print settings summary.
	fmt.Printf("geogrid %s (commit %s, built %s)\n", version, commit, buildDate)
	fmt.Printf("  %-14s EPSG:%d\n", "Grid CRS:", cfg.EPSG)
	fmt.Printf("  %-14s X [%.1f, %.1f], Y [%.1f, %.1f]\n", "Extent:", cfg.XMin, cfg.XMax, cfg.YMin, cfg.YMax)
	fmt.Printf("  %-14s %d lines x %d pixels, %s looking\n", "Image:", cfg.NumLines, cfg.NumPixels, cfg.LookSide)
	start0, end0 := o.Domain()
	fmt.Printf("  %-14s %d vectors, %.0f s\n", "Orbit:", o.Len(), end0-start0)
	fmt.Printf("  %-14s %d\n", "Concurrency:", concurrency)
	if quicklook != "" {
		fmt.Printf("  %-14s %s, %dpx\n", "Quicklooks:", enc.Format(), quicklookSize)
	}

	opts := geogrid.Options{
		Sweep:      geogrid.SweepOptions{Workers: concurrency, BatchRows: batchRows},
		Write:      writeOpts,
		GeoidDEM:   geoid,
		CacheBytes: cacheBytes,
		Logger:     logger,
	}
	if verbose {
		opts.Sweep.Progress = os.Stderr
	}

	res, err := geogrid.Run(ctx, cfg, opts)
	if err != nil {
		log.Fatalf("Geogrid: %v", err)
	}

	written := []string{cfg.PixelLine, cfg.Offset, cfg.RO2VX, cfg.RO2VY}
	if enc != nil {
		dst := geogrid.Outputs{PixelLine: cfg.PixelLine, Offset: cfg.Offset, RO2VX: cfg.RO2VX, RO2VY: cfg.RO2VY}
		previews, err := writeQuicklooks(res.Products, dst, enc, quicklookSize)
		if err != nil {
			log.Fatalf("Quicklooks: %v", err)
		}
		for _, p := range previews {
			if ref := previewRef(p, dst, uploads); ref != "" {
				uploads[p] = ref
			}
		}
		written = append(written, previews...)
	}

	for staged, ref := range uploads {
		if err := store.Upload(ctx, staged, ref); err != nil {
			log.Fatalf("Uploading outputs: %v", err)
		}
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	fmt.Printf("Done: %v, %v\n", res.Diagnostics, elapsed)
	for _, p := range written {
		if p == "" {
			continue
		}
		if ref, ok := uploads[p]; ok {
			p = ref
		}
		fmt.Printf("  → %s\n", p)
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "geogrid")
	}
	return filepath.Join(dir, "geogrid")
}
