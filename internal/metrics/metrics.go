package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EstimatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valuation_estimates_total",
			Help: "Total number of estimation requests by outcome",
		},
		[]string{"outcome"},
	)

	EstimateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "valuation_estimate_duration_seconds",
			Help:    "Duration of estimation requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ComparablesFound = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "valuation_comparables_found",
			Help:    "Number of comparable sales used per estimate",
			Buckets: []float64{0, 1, 2, 3, 5, 7, 10},
		},
	)

	RetrievalTier = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valuation_retrieval_tier_total",
			Help: "Retrieval tier at which the minimum sample was reached",
		},
		[]string{"tier"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valuation_notifications_total",
			Help: "Total number of notifications by channel and status",
		},
		[]string{"channel", "status"},
	)
)
