// Package metrics exposes Prometheus collectors for the cognitive core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindforge_decisions_total",
		Help: "Total decisions by selection algorithm",
	}, []string{"algorithm"})

	DecisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mindforge_decision_duration_seconds",
		Help:    "End-to-end decision latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindforge_llm_requests_total",
		Help: "LLM requests by provider and status",
	}, []string{"provider", "status"})

	LLMFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindforge_llm_fallbacks_total",
		Help: "Requests that fell through to a fallback provider",
	})

	LLMCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindforge_llm_cache_hits_total",
		Help: "Responses served from the request cache",
	})

	VerifierFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindforge_verifier_fallbacks_total",
		Help: "Verification calls that degraded to the neutral fallback",
	})

	PathsCulledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindforge_paths_culled_total",
		Help: "Strategies removed by trial ground culling",
	})

	GoldenPromotionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindforge_golden_promotions_total",
		Help: "Strategies promoted to golden templates",
	})
)
