package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "collapses internal whitespace",
			input:    "Кетчуп   Томатный\t570г",
			expected: "Кетчуп Томатный 570г",
		},
		{
			name:     "title cases lowercase input",
			input:    "кетчуп томатный",
			expected: "Кетчуп Томатный",
		},
		{
			name:     "fixes stray unit capitalization",
			input:    "Кетчуп Томатный 570Г",
			expected: "Кетчуп Томатный 570г",
		},
		{
			name:     "fixes decimal quantity units",
			input:    "вода минеральная 1.5Л",
			expected: "Вода Минеральная 1.5л",
		},
		{
			name:     "rewrites transliterated brand token",
			input:    "кетчуп хайнц томатный 570г",
			expected: "Кетчуп Heinz Томатный 570г",
		},
		{
			name:     "empty input stays empty",
			input:    "   ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Name(tt.input))
		})
	}
}

func TestBrand(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "known variant maps to canonical", input: "хайнц", expected: "Heinz"},
		{name: "canonical spelling unchanged", input: "Heinz", expected: "Heinz"},
		{name: "case insensitive lookup", input: "HEINZ", expected: "Heinz"},
		{name: "unknown brand title cased", input: "noSuchBrand", expected: "Nosuchbrand"},
		{name: "empty becomes sentinel", input: "", expected: UnknownBrand},
		{name: "whitespace only becomes sentinel", input: "  \t ", expected: UnknownBrand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Brand(tt.input))
		})
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "variant maps to canonical", input: "кетчупы и соусы", expected: "Соусы"},
		{name: "singular variant", input: "соус", expected: "Соусы"},
		{name: "empty becomes sentinel", input: "", expected: UnknownCategory},
		{name: "unknown category title cased", input: "консервы", expected: "Консервы"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Category(tt.input))
		})
	}
}

func TestNormalizationIdempotence(t *testing.T) {
	inputs := []string{
		"кетчуп хайнц томатный 570Г",
		"Макароны BARILLA  Спагетти 450г",
		"вода   минеральная 1,5л",
		"Уникальный товар XYZ123",
		"",
	}

	for _, input := range inputs {
		once := Record(input, input, input)
		twice := Record(once.Name, once.Brand, once.Category)
		assert.Equal(t, once, twice, "normalize(normalize(x)) must equal normalize(x) for %q", input)
	}
}

func TestSentinelChecks(t *testing.T) {
	assert.False(t, HasBrand(UnknownBrand))
	assert.False(t, HasBrand(""))
	assert.True(t, HasBrand("Heinz"))

	assert.False(t, HasCategory(UnknownCategory))
	assert.True(t, HasCategory("Соусы"))
}
