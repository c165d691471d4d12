package modelcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheRequests counts Get calls by outcome (hit, miss).
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_model_cache_requests_total",
		Help: "Model cache lookups by result",
	}, []string{"result"})

	// cacheLoads counts artifact loads by outcome.
	cacheLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_model_cache_loads_total",
		Help: "Model artifact loads by result",
	}, []string{"result"})

	cacheLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vigil_model_cache_load_duration_seconds",
		Help:    "Model artifact fetch and decode duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_model_cache_evictions_total",
		Help: "Ready model handles dropped from the cache",
	})

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_model_cache_entries",
		Help: "Ready model handles currently cached",
	})
)
