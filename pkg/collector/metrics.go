package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "gbgc"
	subsystem        = "collector"
)

// Metrics tracks collection progress
type Metrics struct {
	TipNumber     prometheus.Gauge
	Completed     prometheus.Gauge
	FetchFailures prometheus.Counter
	CacheHits     prometheus.Counter
	Refetched     prometheus.Counter
}

// NewMetrics registers the collector metrics. A nil registerer leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TipNumber: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "tip_number",
			Help:      "Latest tip height seen on the node",
		}),
		Completed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "completed",
			Help:      "Number of finished fetch tasks, successful or not",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "fetch_failures_total",
			Help:      "Total number of failed fetch tasks",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of block records served from the cache",
		}),
		Refetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "refetched_total",
			Help:      "Total number of heights recovered by the synchronous refetch",
		}),
	}
}
