package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var (
	operationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "operations_total",
		Help:      "Edit operations by name and outcome.",
	}, []string{"operation", "outcome"})

	roundTrip = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dispatch",
		Name:      "round_trip_seconds",
		Help:      "Latency of a single editor service request.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"operation"})
)

func init() {
	prometheus.MustRegister(operationOutcomes, roundTrip)
}

var tracer = otel.Tracer("github.com/example/annotation-sync/dispatch")
