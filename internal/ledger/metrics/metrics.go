// Package metrics exposes Prometheus metrics for the attendance ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ledger's Prometheus collectors.
type Metrics struct {
	MarksTotal      *prometheus.CounterVec
	UpsertDuration  prometheus.Histogram
	StaleWritesSeen prometheus.Counter
}

// New creates and registers the ledger metrics.
func New() *Metrics {
	return &Metrics{
		MarksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_ledger_marks_total",
			Help: "Mark upserts by outcome",
		}, []string{"outcome"}),
		UpsertDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "flock_ledger_upsert_duration_ms",
			Help:    "Latency of ledger upserts in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}),
		StaleWritesSeen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flock_ledger_stale_writes_total",
			Help: "Writes rejected by last-write-wins timestamp comparison",
		}),
	}
}

// ObserveUpsert records one upsert with its outcome and latency.
func (m *Metrics) ObserveUpsert(outcome string, durationMs float64) {
	m.MarksTotal.WithLabelValues(outcome).Inc()
	m.UpsertDuration.Observe(durationMs)
	if outcome == "stale" {
		m.StaleWritesSeen.Inc()
	}
}
