// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForecastRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_requests_total",
		Help: "Forecast requests by outcome.",
	}, []string{"status"})

	ForecastLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forecast_request_duration_seconds",
		Help:    "Forecast request latency.",
		Buckets: prometheus.DefBuckets,
	})

	PredictionsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forecast_predictions_served_total",
		Help: "Number of (product, week) predictions returned.",
	})

	ForecastCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_cache_lookups_total",
		Help: "Forecast cache lookups by result.",
	}, []string{"result"})

	ModelReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_model_reloads_total",
		Help: "Model reload attempts by result.",
	}, []string{"result"})

	PromotionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "model_promotions_total",
		Help: "Promotion gate outcomes.",
	}, []string{"outcome"})

	ProductionPlans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "production_plans_total",
		Help: "Production plan requests by outcome.",
	}, []string{"status"})

	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "model_training_runs_total",
		Help: "Training pipeline runs by result.",
	}, []string{"result"})
)
