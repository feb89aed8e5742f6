package rls

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	binds    prometheus.Counter
	failures *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		binds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "rls",
			Name:      "binds_total",
			Help:      "Tenant bindings written to acquired connections.",
		}),
		failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rls",
			Name:      "bind_failures_total",
			Help:      "Failed tenant bind or reset calls.",
		}, []string{"op"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
