// Package metrics holds the Prometheus instruments for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts sync outcomes per sweep.
type Metrics struct {
	MarksSynced   *prometheus.CounterVec
	SweepDuration prometheus.Histogram
	QueueParked   prometheus.Counter
}

// New registers the sync metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MarksSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flock",
			Subsystem: "sync",
			Name:      "marks_total",
			Help:      "Pending marks processed, labelled by terminal outcome.",
		}, []string{"outcome"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flock",
			Subsystem: "sync",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one queue sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueParked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flock",
			Subsystem: "sync",
			Name:      "operator_parked_total",
			Help:      "Marks escalated to the operator queue.",
		}),
	}
	reg.MustRegister(m.MarksSynced, m.SweepDuration, m.QueueParked)
	return m
}
