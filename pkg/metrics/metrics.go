package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultRejected = "rejected"

	OutcomeCompleted = "completed"
	OutcomeAbandoned = "abandoned"
	OutcomeIgnored   = "ignored"
)

// Registry holds the service collectors plus the Go runtime and process
// collectors. It is what /metrics exposes.
var Registry = newRegistry()

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

var factory = promauto.With(Registry)

var EventsPublished = factory.NewCounterVec(
	prometheus.CounterOpts{
		Name: "order_events_published_total",
		Help: "Events handed to the broker, by destination, event type and result.",
	},
	[]string{"destination", "type", "result"},
)

var MessagesProcessed = factory.NewCounterVec(
	prometheus.CounterOpts{
		Name: "order_messages_processed_total",
		Help: "Inbound messages by destination and terminal outcome.",
	},
	[]string{"destination", "outcome"},
)

var ProcessingDuration = factory.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "order_message_processing_seconds",
		Help:    "Time from receive to complete/abandon.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"destination"},
)
