// Package metrics provides Prometheus metrics for the classification engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	EncountersClassified *prometheus.CounterVec
	EncountersErrored    prometheus.Counter
	RowsRejected         prometheus.Counter
	ClassifyDuration     prometheus.Histogram
	ActiveWorkers        prometheus.Gauge
	BatchRows            prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		EncountersClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psi_encounters_classified_total",
			Help: "Classified encounters by indicator and status",
		}, []string{"indicator", "status"}),
		EncountersErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psi_encounters_errored_total",
			Help: "Encounters that failed classification",
		}),
		RowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psi_rows_rejected_total",
			Help: "Input rows rejected during normalization",
		}),
		ClassifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "psi_classify_duration_seconds",
			Help:    "Per-encounter classification duration",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "psi_active_workers",
			Help: "Workers currently classifying",
		}),
		BatchRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "psi_batch_rows",
			Help: "Rows in the current batch",
		}),
	}

	prometheus.MustRegister(
		m.EncountersClassified,
		m.EncountersErrored,
		m.RowsRejected,
		m.ClassifyDuration,
		m.ActiveWorkers,
		m.BatchRows,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
