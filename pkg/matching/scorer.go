package matching

import (
	"strings"

	"github.com/sellerdesk/peony/pkg/normalizer"
)

// Scorer provides the string comparison algorithms used for confidence
// scoring. All comparisons are rune-based since product names mix Cyrillic
// and Latin scripts.
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

// NameSimilarity returns the similarity of two normalized product names in
// [0,1]. It takes the best of edit-distance, Jaro-Winkler and token-set
// signals so word reordering and small typos both stay recoverable.
func (s *Scorer) NameSimilarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1.0
	}

	best := s.Levenshtein(a, b)
	if jw := s.JaroWinkler(a, b); jw > best {
		best = jw
	}
	if ts := s.TokenSetRatio(a, b); ts > best {
		best = ts
	}
	return best
}

// TokenSetRatio is the Dice coefficient over the unique whitespace tokens of
// both strings.
func (s *Scorer) TokenSetRatio(a, b string) float64 {
	aTokens := tokenSet(a)
	bTokens := tokenSet(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0.0
	}

	common := 0
	for tok := range aTokens {
		if _, ok := bTokens[tok]; ok {
			common++
		}
	}
	return 2.0 * float64(common) / float64(len(aTokens)+len(bTokens))
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings.
func (s *Scorer) JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	ar := []rune(a)
	br := []rune(b)
	jaro := s.jaro(ar, br)

	// Winkler modification: boost for common prefix
	prefixLen := 0
	maxPrefix := 4
	for i := 0; i < len(ar) && i < len(br) && i < maxPrefix; i++ {
		if ar[i] == br[i] {
			prefixLen++
		} else {
			break
		}
	}

	scalingFactor := 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1.0-jaro)
}

func (s *Scorer) jaro(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Levenshtein returns an edit-distance similarity between 0.0 and 1.0.
func (s *Scorer) Levenshtein(a, b string) float64 {
	ar := []rune(a)
	br := []rune(b)
	maxLen := max(len(ar), len(br))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(s.levenshteinDistance(ar, br))/float64(maxLen)
}

func (s *Scorer) levenshteinDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// Score combines the similarity signals for one candidate into a single
// confidence value in [0,1]. Name similarity dominates; brand equality is a
// sharp boost when both sides carry a real brand and a sharp penalty when
// they disagree; category equality is a minor adjustment. Sentinel brand or
// category values contribute nothing either way.
func (s *Scorer) Score(record normalizer.Normalized, candidateName, candidateBrand, candidateCategory string) float64 {
	score := s.NameSimilarity(record.Name, candidateName)

	if normalizer.HasBrand(record.Brand) && normalizer.HasBrand(candidateBrand) {
		if strings.EqualFold(record.Brand, candidateBrand) {
			score += (1.0 - score) * 0.5
		} else {
			score *= 0.5
		}
	}

	if normalizer.HasCategory(record.Category) && normalizer.HasCategory(candidateCategory) {
		if strings.EqualFold(record.Category, candidateCategory) {
			score += (1.0 - score) * 0.1
		} else {
			score -= 0.05
		}
	}

	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range strings.Fields(s) {
		out[tok] = struct{}{}
	}
	return out
}
