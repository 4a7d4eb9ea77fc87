// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RetrievalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_requests_total",
			Help: "Total number of retrieval requests processed",
		},
		[]string{"intent", "status"},
	)

	StageDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_stage_degraded_total",
			Help: "Total number of stages degraded to empty output",
		},
		[]string{"stage", "error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "retrieval_stage_duration_seconds",
			Help: "Duration of pipeline stage processing in seconds",
		},
		[]string{"stage"},
	)

	DocumentsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrieval_documents_returned",
			Help:    "Number of fused documents returned per request",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"intent"},
	)

	OverallConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrieval_overall_confidence",
			Help:    "Overall confidence of the fused result set",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"intent"},
	)

	RefusalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_refusals_total",
			Help: "Total number of requests gated with shouldAnswer=false",
		},
		[]string{"reason"},
	)

	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_cache_requests_total",
			Help: "Response cache lookups by outcome",
		},
		[]string{"result"},
	)

	RequestsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "retrieval_requests_active",
			Help: "Number of retrieval requests currently in flight",
		},
		[]string{"intent"},
	)
)
