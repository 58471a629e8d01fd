package matching

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/sellerdesk/peony/internal/repositories/masterproduct"
	"github.com/sellerdesk/peony/pkg/models"
	"github.com/sellerdesk/peony/pkg/normalizer"
	"github.com/sellerdesk/peony/pkg/tracing"
)

// MasterStore is the slice of the master product repository the matching
// engine needs.
type MasterStore interface {
	GetByNameBrand(ctx context.Context, name, brand string) (*models.MasterProduct, error)
	SearchSimilar(ctx context.Context, name string, minSimilarity float64, limit int) ([]masterproduct.SimilarMaster, error)
	InsertOrGet(ctx context.Context, master *models.MasterProduct) (*models.MasterProduct, bool, error)
	Enrich(ctx context.Context, id string, attributes models.AttributeSet, barcode *string, description string) (*models.MasterProduct, error)
}

// Candidate is one existing master product that might represent the same
// physical product as the incoming record, with its similarity signals.
type Candidate struct {
	Master         models.MasterProduct
	NameSimilarity float64
	Score          float64
	Exact          bool
}

// Generator finds candidate master products for a normalized record.
type Generator struct {
	logger        ectologger.Logger
	masters       MasterStore
	scorer        *Scorer
	maxCandidates int
	minSimilarity float64
}

func NewGenerator(logger ectologger.Logger, masters MasterStore, maxCandidates int, minSimilarity float64) *Generator {
	if maxCandidates < 1 {
		maxCandidates = 5
	}
	if minSimilarity <= 0 {
		minSimilarity = 0.3
	}
	return &Generator{
		logger:        logger,
		masters:       masters,
		scorer:        NewScorer(),
		maxCandidates: maxCandidates,
		minSimilarity: minSimilarity,
	}
}

// Generate returns up to K candidates ranked by confidence score. Stage 1
// looks for an exact (canonical_name, canonical_brand) hit and short-circuits
// to a single maximal candidate; stage 2 falls back to the trigram relevance
// search. An empty list means no plausible candidate exists.
func (g *Generator) Generate(ctx context.Context, record normalizer.Normalized) ([]Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Generator.Generate")
	defer span.End()

	exact, err := g.masters.GetByNameBrand(ctx, record.Name, record.Brand)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		return []Candidate{{
			Master:         *exact,
			NameSimilarity: 1.0,
			Score:          g.scorer.Score(record, exact.CanonicalName, exact.CanonicalBrand, exact.CanonicalCategory),
			Exact:          true,
		}}, nil
	}

	similar, err := g.masters.SearchSimilar(ctx, record.Name, g.minSimilarity, g.maxCandidates)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(similar))
	for _, s := range similar {
		// the trigram relevance only ranks retrieval; the confidence score is
		// recomputed in-process so identical inputs always score identically
		candidates = append(candidates, Candidate{
			Master:         s.MasterProduct,
			NameSimilarity: g.scorer.NameSimilarity(record.Name, s.CanonicalName),
			Score:          g.scorer.Score(record, s.CanonicalName, s.CanonicalBrand, s.CanonicalCategory),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > g.maxCandidates {
		candidates = candidates[:g.maxCandidates]
	}

	g.logger.WithContext(ctx).WithFields(map[string]any{
		"name":            record.Name,
		"candidate_count": len(candidates),
	}).Debug("Generated match candidates")

	return candidates, nil
}

// CandidateScores converts candidates into the shape recorded on a matching
// history row.
func CandidateScores(candidates []Candidate) []models.CandidateScore {
	out := make([]models.CandidateScore, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, models.CandidateScore{
			MasterID:       c.Master.ID,
			CanonicalName:  c.Master.CanonicalName,
			CanonicalBrand: c.Master.CanonicalBrand,
			NameSimilarity: c.NameSimilarity,
			Score:          c.Score,
			ExactMatch:     c.Exact,
		})
	}
	return out
}
