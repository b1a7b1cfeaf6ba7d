package geogrid

import (
	"log/slog"
	"runtime"

	"github.com/pspoerri/geogrid/internal/cog"
)

// DefaultCacheFraction is the share of total RAM that decoded input blocks
// may occupy across all workers.
const DefaultCacheFraction = 0.25

const (
	minCacheBlocks = 8
	maxCacheBlocks = 4096
)

// CacheBudget returns the bytes input block caches may use: fraction of
// total system RAM minus what the Go runtime already holds. It returns 0
// when RAM cannot be detected, leaving the reader defaults in place.
func CacheBudget(fraction float64, logger *slog.Logger) int64 {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	totalRAM, err := totalSystemRAM()
	if err != nil {
		logger.Debug("cannot detect system RAM; using default block caches", "err", err)
		return 0
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	budget := int64(float64(totalRAM)*fraction) - int64(m.Sys)
	if budget < 64<<20 {
		logger.Debug("block cache budget too small; using default block caches",
			"budget_mb", budget>>20)
		return 0
	}
	logger.Debug("block cache budget",
		"ram_gb", float64(totalRAM)/(1<<30), "budget_mb", budget>>20)
	return budget
}

// cacheBlocks splits budget over every sampler of the sweep: each worker
// holds one sampler per input raster, and a cached block is decoded to
// float64. 0 leaves the reader default.
func cacheBlocks(budget int64, workers int, readers []*cog.Reader) int {
	if budget <= 0 || len(readers) == 0 {
		return 0
	}
	var perWorker int64
	for _, r := range readers {
		ifd := r.IFD()
		w, h := ifd.BlockSize()
		perWorker += int64(w) * int64(h) * 8
	}
	if perWorker == 0 {
		return 0
	}
	n := budget / (int64(max(workers, 1)) * perWorker)
	return int(min(max(n, minCacheBlocks), maxCacheBlocks))
}
