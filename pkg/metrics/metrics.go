// Package metrics provides Prometheus metrics for the Peony service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal tracks resolution attempts by source and decision
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peony",
			Subsystem: "matching",
			Name:      "resolutions_total",
			Help:      "Total number of resolution attempts by source and decision",
		},
		[]string{"source", "decision"},
	)

	// ResolutionDuration tracks per-record resolution duration in seconds
	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peony",
			Subsystem: "matching",
			Name:      "resolution_duration_seconds",
			Help:      "Duration of per-record resolution in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	// ConfidenceScore tracks the distribution of best-candidate confidence scores
	ConfidenceScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peony",
			Subsystem: "matching",
			Name:      "confidence_score",
			Help:      "Distribution of best-candidate confidence scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		},
		[]string{"source"},
	)

	// BatchRecordsTotal tracks batch records by outcome
	BatchRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peony",
			Subsystem: "batch",
			Name:      "records_total",
			Help:      "Total number of batch records by outcome",
		},
		[]string{"outcome"},
	)

	// BatchDuration tracks whole-batch duration in seconds
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "peony",
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Duration of batch runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// ReviewActionsTotal tracks manual review actions by action
	ReviewActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peony",
			Subsystem: "review",
			Name:      "actions_total",
			Help:      "Total number of manual review actions",
		},
		[]string{"action"},
	)

	// QualityMetricValue exposes the latest calculated data quality ratios
	QualityMetricValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "peony",
			Subsystem: "quality",
			Name:      "metric_value",
			Help:      "Latest calculated data quality ratio by metric name and source",
		},
		[]string{"metric_name", "source"},
	)

	// KafkaMessagesTotal tracks consumed ingestion messages by result
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peony",
			Subsystem: "kafka",
			Name:      "messages_total",
			Help:      "Total number of consumed ingestion messages by result",
		},
		[]string{"topic", "result"},
	)
)
