package uow

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	finishedTotal    *prometheus.CounterVec
	conflictsTotal   *prometheus.CounterVec
	dispatchTotal    *prometheus.CounterVec
	dispatchedEvents prometheus.Counter
	commitLatency    prometheus.Histogram
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		finishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uow",
			Name:      "finished_total",
			Help:      "Units of work by outcome.",
		}, []string{"result"}),
		conflictsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uow",
			Name:      "conflicts_total",
			Help:      "Writes rejected because of a stale version.",
		}, []string{"kind"}),
		dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uow",
			Name:      "dispatch_total",
			Help:      "Post-commit batch dispatches by result.",
		}, []string{"result"}),
		dispatchedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "uow",
			Name:      "events_dispatched_total",
			Help:      "Domain events handed to the dispatcher after commit.",
		}),
		commitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "uow",
			Name:      "commit_latency_seconds",
			Help:      "Latency of unit of work commits.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
