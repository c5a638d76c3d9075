// Package metrics provides Prometheus instrumentation for the moderation
// service. It exposes counters for message outcomes, violations, penalties
// and collaborator failures, and a histogram for per-message latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesTotal counts inbound messages by terminal state:
	// "ignored", "exempted", "clean", "actioned" or "failed".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_messages_total",
		Help: "Total number of inbound messages processed, by outcome",
	}, []string{"outcome"})

	// ViolationsTotal counts recorded violations by type ("SPAM", "PROFANITY").
	ViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_violations_total",
		Help: "Total number of recorded violations",
	}, []string{"type"})

	// PenaltiesTotal counts executed penalties by action.
	PenaltiesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_penalties_total",
		Help: "Total number of penalties executed",
	}, []string{"action"})

	// ClassifierFailures counts analyses that fell back to the clean verdict.
	ClassifierFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_classifier_failures_total",
		Help: "Classifier analyses that failed, timed out or returned malformed data",
	}, []string{"analysis"}) // analysis = "spam", "profanity"

	// TransportFailures counts failed chat-platform calls by operation.
	TransportFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_transport_failures_total",
		Help: "Chat transport calls that failed",
	}, []string{"op"})

	// LedgerFailures counts strike ledger transactions that were rolled back.
	LedgerFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moderator_ledger_failures_total",
		Help: "Strike ledger transactions that failed and were rolled back",
	})

	// HandleLatency records end-to-end processing time per message.
	HandleLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moderator_handle_latency_seconds",
		Help:    "Per-message moderation latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// InFlight tracks messages currently being moderated.
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "moderator_in_flight_messages",
		Help: "Messages currently being moderated",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		ViolationsTotal,
		PenaltiesTotal,
		ClassifierFailures,
		TransportFailures,
		LedgerFailures,
		HandleLatency,
		InFlight,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
