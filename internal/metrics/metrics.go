// Package metrics provides Prometheus instrumentation for the moderation
// bot. It exposes gauges for open conversation windows, counters for message
// and dispatch throughput, and a histogram for classifier latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesIngested counts messages recorded into conversation windows.
	MessagesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modbot_messages_ingested_total",
		Help: "Total number of messages recorded into conversation windows",
	})

	// ActiveWindows tracks the current number of open conversation windows.
	ActiveWindows = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "modbot_active_windows",
		Help: "Current number of open conversation windows",
	})

	// DispatchCycles counts completed dispatch cycles, labeled by what
	// initiated them: "timer" or "manual".
	DispatchCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_dispatch_cycles_total",
		Help: "Total number of completed moderation dispatch cycles",
	}, []string{"trigger"})

	// MessagesModerated counts messages scored and recorded in the ledger.
	MessagesModerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modbot_messages_moderated_total",
		Help: "Total number of messages scored and marked moderated",
	})

	// ClassifierFailures counts classifier calls that failed or returned a
	// malformed verdict and were normalized to the neutral verdict.
	ClassifierFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modbot_classifier_failures_total",
		Help: "Total number of classifier calls normalized to the neutral verdict",
	})

	// ClassifierLatency records classifier round-trip latency in seconds.
	ClassifierLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "modbot_classifier_latency_seconds",
		Help:    "Classifier round-trip latency in seconds",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// Alerts counts threshold alerts, labeled by outcome: "fired" or
	// "suppressed".
	Alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_alerts_total",
		Help: "Total number of threshold alerts by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		MessagesIngested,
		ActiveWindows,
		DispatchCycles,
		MessagesModerated,
		ClassifierFailures,
		ClassifierLatency,
		Alerts,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
