package matching

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerdesk/peony/internal/repositories/masterproduct"
	"github.com/sellerdesk/peony/pkg/models"
)

type fakeMasterStore struct {
	byPair   map[string]*models.MasterProduct
	similar  []masterproduct.SimilarMaster
	inserted []*models.MasterProduct
	enriched []string
}

func pairKey(name, brand string) string {
	return name + "|" + brand
}

func (f *fakeMasterStore) GetByNameBrand(_ context.Context, name, brand string) (*models.MasterProduct, error) {
	if m, ok := f.byPair[pairKey(name, brand)]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeMasterStore) SearchSimilar(_ context.Context, _ string, _ float64, _ int) ([]masterproduct.SimilarMaster, error) {
	return f.similar, nil
}

func (f *fakeMasterStore) InsertOrGet(_ context.Context, master *models.MasterProduct) (*models.MasterProduct, bool, error) {
	if existing, ok := f.byPair[pairKey(master.CanonicalName, master.CanonicalBrand)]; ok {
		copied := *existing
		return &copied, false, nil
	}
	master.ID = "master-" + master.CanonicalName
	f.inserted = append(f.inserted, master)
	return master, true, nil
}

func (f *fakeMasterStore) Enrich(_ context.Context, id string, _ models.AttributeSet, _ *string, _ string) (*models.MasterProduct, error) {
	f.enriched = append(f.enriched, id)
	return &models.MasterProduct{ID: id}, nil
}

type fakeMappingStore struct {
	existing    *models.SkuMapping
	created     []*models.SkuMapping
	createErr   error
	afterCreate *models.SkuMapping
	createCalls int
}

func (f *fakeMappingStore) Create(_ context.Context, mapping *models.SkuMapping) (*models.SkuMapping, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	mapping.ID = "mapping-1"
	f.created = append(f.created, mapping)
	return mapping, nil
}

func (f *fakeMappingStore) GetBySourceSKU(_ context.Context, _, _ string) (*models.SkuMapping, error) {
	if f.existing != nil {
		return f.existing, nil
	}
	// afterCreate models the winning row another worker committed while this
	// worker's insert was in flight
	if f.createCalls > 0 {
		return f.afterCreate, nil
	}
	return nil, nil
}

type fakeHistoryStore struct {
	entries []*models.MatchingHistory
}

func (f *fakeHistoryStore) Create(_ context.Context, history *models.MatchingHistory) (*models.MatchingHistory, error) {
	f.entries = append(f.entries, history)
	return history, nil
}

func newTestEngine(masters *fakeMasterStore, mappings *fakeMappingStore, history *fakeHistoryStore) *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewEngine(logger, nil, masters, mappings, history, DefaultConfig())
}

func TestResolveAutoMatchesSentinelBrandAgainstBrandedMaster(t *testing.T) {
	master := models.MasterProduct{
		ID:                "master-1",
		CanonicalName:     "Кетчуп Heinz Томатный 570г",
		CanonicalBrand:    "Heinz",
		CanonicalCategory: "Соусы",
		Status:            models.MasterProductStatusActive,
	}
	masters := &fakeMasterStore{
		byPair:  map[string]*models.MasterProduct{},
		similar: []masterproduct.SimilarMaster{{MasterProduct: master, Relevance: 0.8}},
	}
	mappings := &fakeMappingStore{}
	history := &fakeHistoryStore{}
	engine := newTestEngine(masters, mappings, history)

	resolution, err := engine.Resolve(context.Background(), models.SourceRecord{
		Source:      "ozon",
		ExternalSKU: "X1",
		Name:        "кетчуп хайнц томатный 570г",
	})

	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoMatched, resolution.Decision)
	assert.Equal(t, models.MatchMethodFuzzy, resolution.MatchMethod)
	assert.GreaterOrEqual(t, resolution.Score, 0.95)

	require.Len(t, mappings.created, 1)
	assert.Equal(t, "master-1", mappings.created[0].MasterID)
	assert.Equal(t, models.VerificationStatusAuto, mappings.created[0].VerificationStatus)
	assert.Equal(t, []string{"master-1"}, masters.enriched)

	require.Len(t, history.entries, 1)
	assert.Equal(t, models.DecisionAutoMatched, history.entries[0].Decision)
	assert.Equal(t, "Кетчуп Heinz Томатный 570г", history.entries[0].InputName)
}

func TestResolveExactPairHitShortCircuits(t *testing.T) {
	master := models.MasterProduct{
		ID:             "master-1",
		CanonicalName:  "Макароны Barilla Спагетти 450г",
		CanonicalBrand: "Barilla",
		Status:         models.MasterProductStatusActive,
	}
	masters := &fakeMasterStore{
		byPair: map[string]*models.MasterProduct{
			pairKey("Макароны Barilla Спагетти 450г", "Barilla"): &master,
		},
	}
	mappings := &fakeMappingStore{}
	history := &fakeHistoryStore{}
	engine := newTestEngine(masters, mappings, history)

	resolution, err := engine.Resolve(context.Background(), models.SourceRecord{
		Source:      "wb",
		ExternalSKU: "W7",
		Name:        "макароны барилла спагетти 450г",
		Brand:       "барилла",
	})

	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoMatched, resolution.Decision)
	assert.Equal(t, models.MatchMethodExact, resolution.MatchMethod)
	require.Len(t, resolution.Candidates, 1)
	assert.True(t, resolution.Candidates[0].ExactMatch)
}

func TestResolveCreatesNewMasterWhenNoCandidates(t *testing.T) {
	masters := &fakeMasterStore{byPair: map[string]*models.MasterProduct{}}
	mappings := &fakeMappingStore{}
	history := &fakeHistoryStore{}
	engine := newTestEngine(masters, mappings, history)

	resolution, err := engine.Resolve(context.Background(), models.SourceRecord{
		Source:      "wb",
		ExternalSKU: "Y9",
		Name:        "Уникальный товар XYZ123",
		Brand:       "NoSuchBrand",
	})

	require.NoError(t, err)
	assert.Equal(t, models.DecisionNewMaster, resolution.Decision)
	assert.True(t, resolution.CreatedMaster)

	require.Len(t, masters.inserted, 1)
	assert.Equal(t, "Уникальный Товар Xyz123", masters.inserted[0].CanonicalName)

	require.Len(t, mappings.created, 1)
	assert.Equal(t, models.VerificationStatusAuto, mappings.created[0].VerificationStatus)
	assert.Equal(t, masters.inserted[0].ID, mappings.created[0].MasterID)
}

func TestResolveQueuesMidConfidenceMatchForReview(t *testing.T) {
	master := models.MasterProduct{
		ID:            "master-2",
		CanonicalName: "Макароны Перья 450г",
		Status:        models.MasterProductStatusActive,
	}
	masters := &fakeMasterStore{
		byPair:  map[string]*models.MasterProduct{},
		similar: []masterproduct.SimilarMaster{{MasterProduct: master, Relevance: 0.5}},
	}
	mappings := &fakeMappingStore{}
	history := &fakeHistoryStore{}
	engine := newTestEngine(masters, mappings, history)

	resolution, err := engine.Resolve(context.Background(), models.SourceRecord{
		Source:      "ozon",
		ExternalSKU: "Z3",
		Name:        "Макароны Спагетти 450г",
	})

	require.NoError(t, err)
	assert.Equal(t, models.DecisionManualPending, resolution.Decision)
	assert.GreaterOrEqual(t, resolution.Score, 0.60)
	assert.Less(t, resolution.Score, 0.95)

	require.Len(t, mappings.created, 1)
	created := mappings.created[0]
	assert.Equal(t, models.VerificationStatusPending, created.VerificationStatus)
	require.NotNil(t, created.ConfidenceScore)
	assert.InDelta(t, resolution.Score, *created.ConfidenceScore, 0.0001)
}

func TestResolveIsIdempotentForResolvedRecords(t *testing.T) {
	score := 0.97
	masters := &fakeMasterStore{byPair: map[string]*models.MasterProduct{}}
	mappings := &fakeMappingStore{
		existing: &models.SkuMapping{
			ID:                 "mapping-1",
			MasterID:           "master-1",
			Source:             "ozon",
			ExternalSKU:        "X1",
			ConfidenceScore:    &score,
			VerificationStatus: models.VerificationStatusAuto,
			MatchMethod:        models.MatchMethodFuzzy,
		},
	}
	history := &fakeHistoryStore{}
	engine := newTestEngine(masters, mappings, history)

	resolution, err := engine.Resolve(context.Background(), models.SourceRecord{
		Source:      "ozon",
		ExternalSKU: "X1",
		Name:        "кетчуп хайнц томатный 570г",
	})

	require.NoError(t, err)
	assert.True(t, resolution.AlreadyResolved)
	assert.Equal(t, models.DecisionAutoMatched, resolution.Decision)
	assert.Empty(t, mappings.created, "a second live mapping must not be created")
	assert.Empty(t, masters.inserted, "a second master must not be created")
	require.Len(t, history.entries, 1)
	require.NotNil(t, history.entries[0].Reason)
	assert.Equal(t, "already resolved", *history.entries[0].Reason)
}

func TestResolveLinksToWinnerOnMappingRace(t *testing.T) {
	winner := &models.SkuMapping{
		ID:                 "mapping-winner",
		MasterID:           "master-9",
		Source:             "wb",
		ExternalSKU:        "R2",
		VerificationStatus: models.VerificationStatusAuto,
		MatchMethod:        models.MatchMethodExact,
	}
	masters := &fakeMasterStore{byPair: map[string]*models.MasterProduct{}}
	mappings := &fakeMappingStore{
		createErr:   httperror.NewHTTPError(http.StatusConflict, "mapping already exists for wb/R2"),
		afterCreate: winner,
	}
	history := &fakeHistoryStore{}
	engine := newTestEngine(masters, mappings, history)

	resolution, err := engine.Resolve(context.Background(), models.SourceRecord{
		Source:      "wb",
		ExternalSKU: "R2",
		Name:        "Сок Яблочный 1л",
	})

	require.NoError(t, err)
	assert.True(t, resolution.AlreadyResolved)
	assert.Equal(t, "master-9", resolution.Mapping.MasterID)

	// the losing attempt is still audited
	require.Len(t, history.entries, 1)
	assert.Equal(t, models.DecisionAutoMatched, history.entries[0].Decision)
	require.NotNil(t, history.entries[0].Reason)
	assert.Equal(t, "lost mapping race", *history.entries[0].Reason)
	require.NotNil(t, history.entries[0].MasterID)
	assert.Equal(t, "master-9", *history.entries[0].MasterID)
}

func TestResolveRejectsInvalidRecord(t *testing.T) {
	masters := &fakeMasterStore{byPair: map[string]*models.MasterProduct{}}
	mappings := &fakeMappingStore{}
	history := &fakeHistoryStore{}
	engine := newTestEngine(masters, mappings, history)

	_, err := engine.Resolve(context.Background(), models.SourceRecord{
		Source:      "ozon",
		ExternalSKU: "X1",
	})

	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}
