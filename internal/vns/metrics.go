package vns

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var (
	// iterationsTotal counts completed search iterations
	iterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bnsearch_vns_iterations_total",
		Help: "Total completed VNS iterations",
	})

	// candidatesTotal counts candidates by outcome
	candidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bnsearch_vns_candidates_total",
		Help: "Total VNS candidates by result",
	}, []string{"result"})

	neighborhoodGrowthTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bnsearch_vns_neighborhood_growth_total",
		Help: "Total neighborhood size increases",
	})

	terminationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bnsearch_vns_terminations_total",
		Help: "Total finished searches by termination reason",
	}, []string{"reason"})

	// evaluationDuration tracks objective latency, which dominates a run
	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bnsearch_vns_evaluation_duration_seconds",
		Help:    "Objective evaluation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
	})
)

var tracer = otel.Tracer("bnsearch/internal/vns")
