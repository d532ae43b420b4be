package reconcile

import "github.com/prometheus/client_golang/prometheus"

var (
	applyLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reconcile",
		Name:      "apply_seconds",
		Help:      "Time spent applying a change feed batch to a track store.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{"track"})

	eventsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconcile",
		Name:      "events_applied_total",
		Help:      "Change events applied, by operation.",
	}, []string{"track", "operation"})

	featuresSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconcile",
		Name:      "features_skipped_total",
		Help:      "Feature payloads dropped because they failed validation.",
	}, []string{"track"})
)

func init() {
	prometheus.MustRegister(applyLatency, eventsApplied, featuresSkipped)
}
