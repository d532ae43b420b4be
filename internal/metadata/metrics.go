package metadata

import "github.com/prometheus/client_golang/prometheus"

var cacheRequests = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "metadata",
	Name:      "cache_requests_total",
	Help:      "Metadata query lookups by result.",
}, []string{"operation", "result"}))

var cacheEvictions = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "metadata",
	Name:      "cache_invalidated_total",
	Help:      "Cached query results dropped after a store change.",
}, []string{"track"}))

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if regErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return regErr.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return c
}
