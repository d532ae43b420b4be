package uibridge

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	bridgeUpgradeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bridge",
		Name:      "upgrade_seconds",
		Help:      "Latency spent upgrading HTTP connections to WebSockets.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"track"})

	bridgeConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bridge",
		Name:      "connections",
		Help:      "Active WebSocket connections per track.",
	}, []string{"track"})

	bridgeMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "messages_total",
		Help:      "Notifications pushed to WebSocket clients by kind.",
	}, []string{"kind"})

	once sync.Once
)

func init() {
	once.Do(func() {
		prometheus.MustRegister(bridgeUpgradeLatency, bridgeConnections, bridgeMessages)
	})
}
