package quality

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerdesk/peony/internal/repositories/qualitymetric"
	"github.com/sellerdesk/peony/pkg/models"
)

type fakeMetricStore struct {
	sources      []string
	completeness map[string]qualitymetric.Counts
	coverage     map[string]qualitymetric.Counts
	accuracy     map[string]qualitymetric.Counts
	inserted     []models.DataQualityMetric
}

func (f *fakeMetricStore) InsertBatch(_ context.Context, metrics []models.DataQualityMetric) error {
	f.inserted = append(f.inserted, metrics...)
	return nil
}

func (f *fakeMetricStore) CompletenessCounts(_ context.Context, source string) (qualitymetric.Counts, error) {
	return f.completeness[source], nil
}

func (f *fakeMetricStore) CoverageCounts(_ context.Context, source string) (qualitymetric.Counts, error) {
	return f.coverage[source], nil
}

func (f *fakeMetricStore) AccuracyCounts(_ context.Context, source string) (qualitymetric.Counts, error) {
	return f.accuracy[source], nil
}

func (f *fakeMetricStore) Sources(_ context.Context) ([]string, error) {
	return f.sources, nil
}

func newTestCalculator(store *fakeMetricStore) *Calculator {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewCalculator(logger, store)
}

func TestCalculateOverallAndPerSource(t *testing.T) {
	store := &fakeMetricStore{
		sources: []string{"ozon", "wildberries"},
		completeness: map[string]qualitymetric.Counts{
			"":            {Numerator: 80, Denominator: 100},
			"ozon":        {Numerator: 40, Denominator: 50},
			"wildberries": {Numerator: 30, Denominator: 60},
		},
		coverage: map[string]qualitymetric.Counts{
			"":            {Numerator: 90, Denominator: 120},
			"ozon":        {Numerator: 50, Denominator: 60},
			"wildberries": {Numerator: 40, Denominator: 60},
		},
		accuracy: map[string]qualitymetric.Counts{
			"":            {Numerator: 85, Denominator: 90},
			"ozon":        {Numerator: 45, Denominator: 50},
			"wildberries": {Numerator: 40, Denominator: 40},
		},
	}
	calculator := newTestCalculator(store)

	snapshot, err := calculator.Calculate(context.Background())
	require.NoError(t, err)

	// three metrics for the overall scope plus three per source
	require.Len(t, snapshot, 9)
	assert.Equal(t, snapshot, store.inserted)

	overall := snapshot[0]
	assert.Equal(t, models.MetricCompleteness, overall.MetricName)
	assert.Nil(t, overall.Source)
	assert.InDelta(t, 0.8, overall.Value, 1e-9)
	assert.Equal(t, int64(80), overall.Numerator)
	assert.Equal(t, int64(100), overall.Denominator)

	bySource := make(map[string]float64)
	for _, m := range snapshot {
		if m.Source != nil && m.MetricName == models.MetricAccuracy {
			bySource[*m.Source] = m.Value
		}
	}
	assert.InDelta(t, 0.9, bySource["ozon"], 1e-9)
	assert.InDelta(t, 1.0, bySource["wildberries"], 1e-9)
}

func TestCalculateEmptyCatalog(t *testing.T) {
	store := &fakeMetricStore{
		completeness: map[string]qualitymetric.Counts{},
		coverage:     map[string]qualitymetric.Counts{},
		accuracy:     map[string]qualitymetric.Counts{},
	}
	calculator := newTestCalculator(store)

	snapshot, err := calculator.Calculate(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot, 3)
	for _, m := range snapshot {
		assert.Zero(t, m.Value)
		assert.Zero(t, m.Denominator)
		assert.Nil(t, m.Source)
		assert.False(t, m.CalculatedAt.IsZero())
	}
}
