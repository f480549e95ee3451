// Package metrics provides Prometheus instrumentation for the store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	MessagesLogged  prometheus.Counter
	StatusUpdates   prometheus.Counter
	ReportsServed   prometheus.Counter
	Exports         prometheus.Counter
	RepairAttempts  prometheus.Counter
	RowsCleaned     prometheus.Counter
	Degraded        prometheus.Gauge
	RequestDuration prometheus.Histogram
}

// New registers and returns the store metrics.
func New() *Metrics {
	return &Metrics{
		MessagesLogged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sendvault_messages_logged_total",
			Help: "Total number of send attempts logged",
		}),
		StatusUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sendvault_status_updates_total",
			Help: "Total number of message status updates applied",
		}),
		ReportsServed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sendvault_reports_served_total",
			Help: "Total number of analytics reports served (cached or recomputed)",
		}),
		Exports: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sendvault_exports_total",
			Help: "Total number of data exports",
		}),
		RepairAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sendvault_repair_attempts_total",
			Help: "Total number of manual database repair attempts",
		}),
		RowsCleaned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sendvault_rows_cleaned_total",
			Help: "Total number of rows removed by retention cleanup",
		}),
		Degraded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sendvault_degraded",
			Help: "1 when the store is in degraded mode, 0 otherwise",
		}),
		RequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sendvault_request_duration_seconds",
			Help:    "Time spent handling operator API requests",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
