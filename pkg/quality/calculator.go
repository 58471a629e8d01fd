// Package quality computes the catalog's data quality ratios: completeness
// of master products, mapping coverage and auto-match accuracy. Snapshots
// are stored as a time series and exported as Prometheus gauges.
package quality

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/sellerdesk/peony/internal/repositories/qualitymetric"
	"github.com/sellerdesk/peony/pkg/metrics"
	"github.com/sellerdesk/peony/pkg/models"
	"github.com/sellerdesk/peony/pkg/tracing"
)

// MetricStore is the slice of the quality metric repository the calculator
// needs.
type MetricStore interface {
	InsertBatch(ctx context.Context, metrics []models.DataQualityMetric) error
	CompletenessCounts(ctx context.Context, source string) (qualitymetric.Counts, error)
	CoverageCounts(ctx context.Context, source string) (qualitymetric.Counts, error)
	AccuracyCounts(ctx context.Context, source string) (qualitymetric.Counts, error)
	Sources(ctx context.Context) ([]string, error)
}

// Calculator computes one snapshot of every quality ratio, overall and per
// source.
type Calculator struct {
	logger ectologger.Logger
	store  MetricStore
}

func NewCalculator(logger ectologger.Logger, store MetricStore) *Calculator {
	return &Calculator{
		logger: logger,
		store:  store,
	}
}

// Calculate computes and persists the current quality snapshot. A metric
// with an empty denominator reports zero rather than an error; an empty
// catalog is a valid, just poor, state.
func (c *Calculator) Calculate(ctx context.Context) ([]models.DataQualityMetric, error) {
	ctx, span := tracing.StartSpan(ctx, "quality.Calculator.Calculate")
	defer span.End()

	now := time.Now().UTC()

	sources, err := c.store.Sources(ctx)
	if err != nil {
		return nil, err
	}

	// "" is the overall scope across all sources
	scopes := append([]string{""}, sources...)

	snapshot := make([]models.DataQualityMetric, 0, len(scopes)*3)
	for _, source := range scopes {
		rows, err := c.calculateScope(ctx, source, now)
		if err != nil {
			return nil, err
		}
		snapshot = append(snapshot, rows...)
	}

	if err := c.store.InsertBatch(ctx, snapshot); err != nil {
		return nil, err
	}

	for _, m := range snapshot {
		metrics.QualityMetricValue.WithLabelValues(m.MetricName, sourceLabel(m.Source)).Set(m.Value)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"metrics": len(snapshot),
		"sources": len(sources),
	}).Info("Calculated data quality snapshot")

	return snapshot, nil
}

func (c *Calculator) calculateScope(ctx context.Context, source string, now time.Time) ([]models.DataQualityMetric, error) {
	completeness, err := c.store.CompletenessCounts(ctx, source)
	if err != nil {
		return nil, err
	}
	coverage, err := c.store.CoverageCounts(ctx, source)
	if err != nil {
		return nil, err
	}
	accuracy, err := c.store.AccuracyCounts(ctx, source)
	if err != nil {
		return nil, err
	}

	return []models.DataQualityMetric{
		metricRow(models.MetricCompleteness, source, completeness, now),
		metricRow(models.MetricCoverage, source, coverage, now),
		metricRow(models.MetricAccuracy, source, accuracy, now),
	}, nil
}

func metricRow(name, source string, counts qualitymetric.Counts, now time.Time) models.DataQualityMetric {
	row := models.DataQualityMetric{
		MetricName:   name,
		Value:        ratio(counts),
		Numerator:    counts.Numerator,
		Denominator:  counts.Denominator,
		CalculatedAt: now,
	}
	if source != "" {
		row.Source = &source
	}
	return row
}

func ratio(counts qualitymetric.Counts) float64 {
	if counts.Denominator == 0 {
		return 0
	}
	return float64(counts.Numerator) / float64(counts.Denominator)
}

func sourceLabel(source *string) string {
	if source == nil {
		return "all"
	}
	return *source
}
