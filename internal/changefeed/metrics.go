package changefeed

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var (
	pollOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "changefeed",
		Name:      "polls_total",
		Help:      "Long-poll round trips by outcome.",
	}, []string{"track", "outcome"})

	batchEvents = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "changefeed",
		Name:      "batch_events",
		Help:      "Number of change events delivered per non-empty response.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"track"})

	listenerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "changefeed",
		Name:      "listener_state",
		Help:      "Current listener state per track (0 disconnected, 1 connecting, 2 connected, 3 fatally failed).",
	}, []string{"track"})
)

func init() {
	prometheus.MustRegister(pollOutcomes, batchEvents, listenerState)
}

var tracer = otel.Tracer("github.com/example/annotation-sync/changefeed")
