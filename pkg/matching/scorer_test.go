package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sellerdesk/peony/pkg/normalizer"
)

func TestNameSimilarity(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{
			name: "identical names",
			a:    "Кетчуп Heinz Томатный 570г",
			b:    "Кетчуп Heinz Томатный 570г",
			min:  1.0,
			max:  1.0,
		},
		{
			name: "case difference only",
			a:    "Кетчуп Heinz Томатный 570г",
			b:    "кетчуп heinz томатный 570г",
			min:  1.0,
			max:  1.0,
		},
		{
			name: "token reorder stays high",
			a:    "Heinz Кетчуп Томатный 570г",
			b:    "Кетчуп Heinz Томатный 570г",
			min:  0.9,
			max:  1.0,
		},
		{
			name: "unrelated products stay low",
			a:    "Кетчуп Heinz Томатный 570г",
			b:    "Шампунь Детский 250мл",
			min:  0.0,
			max:  0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.NameSimilarity(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestTokenSetRatio(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 1.0, scorer.TokenSetRatio("кетчуп томатный", "томатный кетчуп"))
	assert.Equal(t, 0.0, scorer.TokenSetRatio("кетчуп", "шампунь"))
	assert.Equal(t, 0.0, scorer.TokenSetRatio("", "кетчуп"))
}

func TestScoreBrandSignals(t *testing.T) {
	scorer := NewScorer()
	record := normalizer.Normalized{
		Name:     "Кетчуп Томатный 570г",
		Brand:    "Heinz",
		Category: normalizer.UnknownCategory,
	}

	equalBrand := scorer.Score(record, "Кетчуп Томатный 570г", "Heinz", normalizer.UnknownCategory)
	sentinelBrand := scorer.Score(normalizer.Normalized{
		Name:     record.Name,
		Brand:    normalizer.UnknownBrand,
		Category: record.Category,
	}, "Кетчуп Томатный 570г", "Heinz", normalizer.UnknownCategory)
	wrongBrand := scorer.Score(record, "Кетчуп Томатный 570г", "Barilla", normalizer.UnknownCategory)

	// same name: equal brand must not score below the sentinel case, and a
	// conflicting brand must be penalized hard
	assert.GreaterOrEqual(t, equalBrand, sentinelBrand)
	assert.GreaterOrEqual(t, equalBrand, 0.95)
	assert.GreaterOrEqual(t, sentinelBrand, 0.95)
	assert.LessOrEqual(t, wrongBrand, 0.55)
}

func TestScoreCategorySignals(t *testing.T) {
	scorer := NewScorer()
	record := normalizer.Normalized{
		Name:     "Кетчуп Томатный 570г",
		Brand:    normalizer.UnknownBrand,
		Category: "Соусы",
	}

	sameCategory := scorer.Score(record, "Кетчуп Острый 570г", normalizer.UnknownBrand, "Соусы")
	otherCategory := scorer.Score(record, "Кетчуп Острый 570г", normalizer.UnknownBrand, "Напитки")
	noCategory := scorer.Score(record, "Кетчуп Острый 570г", normalizer.UnknownBrand, normalizer.UnknownCategory)

	assert.Greater(t, sameCategory, noCategory)
	assert.Less(t, otherCategory, noCategory)
}

func TestScoreBounds(t *testing.T) {
	scorer := NewScorer()

	score := scorer.Score(normalizer.Normalized{
		Name:     "Кетчуп Heinz Томатный 570г",
		Brand:    "Heinz",
		Category: "Соусы",
	}, "Кетчуп Heinz Томатный 570г", "Heinz", "Соусы")

	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.99)
}

func TestClassifyThresholdBoundaries(t *testing.T) {
	config := DefaultConfig()

	tests := []struct {
		name          string
		score         float64
		hasCandidates bool
		expected      string
	}{
		{name: "exactly at auto threshold", score: 0.95, hasCandidates: true, expected: "auto_matched"},
		{name: "just below auto threshold", score: 0.9499, hasCandidates: true, expected: "manual_pending"},
		{name: "exactly at review threshold", score: 0.60, hasCandidates: true, expected: "manual_pending"},
		{name: "just below review threshold", score: 0.5999, hasCandidates: true, expected: "new_master"},
		{name: "perfect score", score: 1.0, hasCandidates: true, expected: "auto_matched"},
		{name: "no candidates", score: 0.0, hasCandidates: false, expected: "new_master"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, config.Classify(tt.score, tt.hasCandidates))
		})
	}
}
