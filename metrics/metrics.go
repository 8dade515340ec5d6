// Package metrics registers the Prometheus collectors shared by the API and
// the forecast worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RankRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_rank_requests_total",
		Help: "Route ranking requests by preference and outcome.",
	}, []string{"preference", "outcome"})

	RoutesScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safewalk_routes_scored_total",
		Help: "Candidate routes that received a safety assessment.",
	})

	DegradedSources = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_degraded_sources_total",
		Help: "Upstream calls that failed or timed out and fell back to a default.",
	}, []string{"component", "source"})

	EnrichmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_enrichment_failures_total",
		Help: "Optional enrichment lookups that failed and were omitted.",
	}, []string{"provider"})

	Forecasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_forecasts_total",
		Help: "Risk forecasts produced, split into computed and no-data sentinels.",
	}, []string{"result"})

	RankDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "safewalk_rank_duration_seconds",
		Help:    "Duration of a full route ranking request.",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	})

	ForecastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "safewalk_forecast_duration_seconds",
		Help:    "Duration of a single risk forecast.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	})
)
