package geogrid

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cellsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geogrid_cells_total",
			Help: "Grid cells processed, by outcome.",
		},
		[]string{"status"},
	)

	solverIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geogrid_solver_iterations",
			Help:    "Newton iterations per zero-Doppler solve of a grid cell.",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		},
	)

	sweepDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geogrid_sweep_duration_seconds",
			Help:    "Wall time of complete grid sweeps.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(cellsTotal)
	prometheus.MustRegister(solverIterations)
	prometheus.MustRegister(sweepDurationSeconds)
}

// record adds the outcome of a finished sweep to the collectors.
func (d Diagnostics) record() {
	cellsTotal.WithLabelValues(FailNone.String()).Add(float64(d.Valid))
	for f, n := range d.Failures {
		cellsTotal.WithLabelValues(f.String()).Add(float64(n))
	}
	sweepDurationSeconds.Observe(d.Duration.Seconds())
}
