package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// answers counts per-model answers by source (saved, evaluated, unavailable).
	answers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_query_answers_total",
		Help: "Per-model answers to immediate queries by source",
	}, []string{"source"})

	sweepEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_sweep_evaluations_total",
		Help: "Query evaluations during sweeps by result",
	}, []string{"result"})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vigil_sweep_duration_seconds",
		Help:    "Duration of a full model sweep in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	})

	deltaReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_delta_reports_total",
		Help: "Delta reports produced by sweeps by kind",
	}, []string{"kind"})
)
