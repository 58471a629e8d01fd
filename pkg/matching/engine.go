// Package matching implements product entity resolution: candidate search,
// confidence scoring and the resolution decision.
package matching

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/sellerdesk/peony/internal/repositories/skumapping"
	"github.com/sellerdesk/peony/pkg/database"
	"github.com/sellerdesk/peony/pkg/metrics"
	"github.com/sellerdesk/peony/pkg/models"
	"github.com/sellerdesk/peony/pkg/normalizer"
	"github.com/sellerdesk/peony/pkg/tracing"
)

// MappingStore is the slice of the SKU mapping repository the engine needs.
type MappingStore interface {
	Create(ctx context.Context, mapping *models.SkuMapping) (*models.SkuMapping, error)
	GetBySourceSKU(ctx context.Context, source, externalSKU string) (*models.SkuMapping, error)
}

// HistoryStore appends resolution attempts to the audit log.
type HistoryStore interface {
	Create(ctx context.Context, history *models.MatchingHistory) (*models.MatchingHistory, error)
}

// EngineConfig contains the decision thresholds for the resolution engine.
type EngineConfig struct {
	AutoMatchThreshold float64 // score at or above which to auto-match (default: 0.95)
	ReviewThreshold    float64 // score at or above which to queue for review (default: 0.60)
	MaxCandidates      int     // maximum candidates per record (default: 5)
	MinSimilarity      float64 // trigram retrieval floor (default: 0.3)
}

// DefaultConfig returns default engine configuration
func DefaultConfig() EngineConfig {
	return EngineConfig{
		AutoMatchThreshold: 0.95,
		ReviewThreshold:    0.60,
		MaxCandidates:      5,
		MinSimilarity:      0.3,
	}
}

// Classify turns a best-candidate score into a resolution decision. Both
// thresholds are inclusive: exactly 0.95 auto-matches, exactly 0.60 queues
// for review.
func (c EngineConfig) Classify(score float64, hasCandidates bool) string {
	if !hasCandidates {
		return models.DecisionNewMaster
	}
	if score >= c.AutoMatchThreshold {
		return models.DecisionAutoMatched
	}
	if score >= c.ReviewThreshold {
		return models.DecisionManualPending
	}
	return models.DecisionNewMaster
}

// Engine resolves source records against the master catalog.
type Engine struct {
	logger    ectologger.Logger
	db        database.DB
	masters   MasterStore
	mappings  MappingStore
	history   HistoryStore
	generator *Generator
	config    EngineConfig
}

// NewEngine creates a new resolution engine. db may be nil in tests; each
// record then resolves without its own transaction.
func NewEngine(
	logger ectologger.Logger,
	db database.DB,
	masters MasterStore,
	mappings MappingStore,
	history HistoryStore,
	config EngineConfig,
) *Engine {
	return &Engine{
		logger:    logger,
		db:        db,
		masters:   masters,
		mappings:  mappings,
		history:   history,
		generator: NewGenerator(logger, masters, config.MaxCandidates, config.MinSimilarity),
		config:    config,
	}
}

// Resolve runs one source record through normalization, candidate search,
// scoring and the store writes, inside one short transaction. Re-running an
// already-resolved record is a no-op apart from the history row.
func (e *Engine) Resolve(ctx context.Context, record models.SourceRecord) (*models.Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Resolve")
	defer span.End()

	start := time.Now()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"source":       record.Source,
		"external_sku": record.ExternalSKU,
	})

	if err := record.Validate(); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid source record: %v", err))
	}

	norm := normalizer.Record(record.Name, record.Brand, record.Category)

	baseCtx := ctx
	ctx, tx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer e.rollback(baseCtx, tx)

	existing, err := e.mappings.GetBySourceSKU(ctx, record.Source, record.ExternalSKU)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		resolution, err := e.recordAlreadyResolved(ctx, record, norm, existing, start)
		if err != nil {
			return nil, err
		}
		if err := e.commit(ctx, tx); err != nil {
			return nil, err
		}
		return resolution, nil
	}

	candidates, err := e.generator.Generate(ctx, norm)
	if err != nil {
		return nil, err
	}

	var best Candidate
	if len(candidates) > 0 {
		best = candidates[0]
	}
	decision := e.config.Classify(best.Score, len(candidates) > 0)

	resolution := &models.Resolution{
		Decision:   decision,
		Score:      best.Score,
		Candidates: CandidateScores(candidates),
	}

	switch decision {
	case models.DecisionAutoMatched:
		err = e.applyAutoMatch(ctx, record, norm, best, resolution)
	case models.DecisionManualPending:
		err = e.applyManualPending(ctx, record, norm, best, resolution)
	case models.DecisionNewMaster:
		err = e.applyNewMaster(ctx, record, norm, resolution)
	}
	if err != nil {
		if skumapping.IsConflict(err) {
			// lost the race on (source, external_sku): the transaction is
			// aborted, so re-read the winner outside it
			e.rollback(baseCtx, tx)
			return e.readRaceWinner(baseCtx, record, norm, start, log)
		}
		return nil, err
	}

	if _, err := e.history.Create(ctx, e.historyRow(record, norm, resolution, start, nil)); err != nil {
		return nil, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return nil, err
	}

	metrics.ResolutionsTotal.WithLabelValues(record.Source, decision).Inc()
	metrics.ResolutionDuration.WithLabelValues(record.Source).Observe(time.Since(start).Seconds())
	if len(candidates) > 0 {
		metrics.ConfidenceScore.WithLabelValues(record.Source).Observe(best.Score)
	}

	log.WithFields(map[string]any{
		"decision": decision,
		"score":    best.Score,
	}).Info("Resolved source record")

	return resolution, nil
}

func (e *Engine) applyAutoMatch(ctx context.Context, record models.SourceRecord, norm normalizer.Normalized, best Candidate, resolution *models.Resolution) error {
	method := models.MatchMethodFuzzy
	if best.Exact {
		method = models.MatchMethodExact
	}

	score := best.Score
	mapping, err := e.mappings.Create(ctx, &models.SkuMapping{
		MasterID:           best.Master.ID,
		Source:             record.Source,
		ExternalSKU:        record.ExternalSKU,
		SourceName:         record.Name,
		SourceBrand:        record.Brand,
		SourceCategory:     record.Category,
		ConfidenceScore:    &score,
		VerificationStatus: models.VerificationStatusAuto,
		MatchMethod:        method,
	})
	if err != nil {
		return err
	}

	master, err := e.masters.Enrich(ctx, best.Master.ID, models.AttributeSetFromRaw(record.RawAttributes), barcodeFromRaw(record.RawAttributes), "")
	if err != nil {
		return err
	}

	resolution.MatchMethod = method
	resolution.Mapping = mapping
	resolution.Master = master
	return nil
}

func (e *Engine) applyManualPending(ctx context.Context, record models.SourceRecord, norm normalizer.Normalized, best Candidate, resolution *models.Resolution) error {
	score := best.Score
	mapping, err := e.mappings.Create(ctx, &models.SkuMapping{
		MasterID:           best.Master.ID,
		Source:             record.Source,
		ExternalSKU:        record.ExternalSKU,
		SourceName:         record.Name,
		SourceBrand:        record.Brand,
		SourceCategory:     record.Category,
		ConfidenceScore:    &score,
		VerificationStatus: models.VerificationStatusPending,
		MatchMethod:        models.MatchMethodFuzzy,
	})
	if err != nil {
		return err
	}

	resolution.MatchMethod = models.MatchMethodFuzzy
	resolution.Mapping = mapping
	master := best.Master
	resolution.Master = &master
	return nil
}

func (e *Engine) applyNewMaster(ctx context.Context, record models.SourceRecord, norm normalizer.Normalized, resolution *models.Resolution) error {
	master, created, err := e.masters.InsertOrGet(ctx, &models.MasterProduct{
		CanonicalName:     norm.Name,
		CanonicalBrand:    norm.Brand,
		CanonicalCategory: norm.Category,
		Attributes:        models.AttributeSetFromRaw(record.RawAttributes),
		Barcode:           barcodeFromRaw(record.RawAttributes),
		Status:            models.MasterProductStatusActive,
	})
	if err != nil {
		return err
	}

	// creating a master is itself an automatic, unambiguous decision
	mapping, err := e.mappings.Create(ctx, &models.SkuMapping{
		MasterID:           master.ID,
		Source:             record.Source,
		ExternalSKU:        record.ExternalSKU,
		SourceName:         record.Name,
		SourceBrand:        record.Brand,
		SourceCategory:     record.Category,
		VerificationStatus: models.VerificationStatusAuto,
		MatchMethod:        models.MatchMethodExact,
	})
	if err != nil {
		return err
	}

	resolution.MatchMethod = models.MatchMethodExact
	resolution.Mapping = mapping
	resolution.Master = master
	resolution.CreatedMaster = created
	return nil
}

// recordAlreadyResolved writes the history row for an idempotent re-run of a
// record whose mapping already exists, without touching the mapping.
func (e *Engine) recordAlreadyResolved(ctx context.Context, record models.SourceRecord, norm normalizer.Normalized, existing *models.SkuMapping, start time.Time) (*models.Resolution, error) {
	resolution := &models.Resolution{
		Decision:        decisionForStatus(existing.VerificationStatus),
		MatchMethod:     existing.MatchMethod,
		Mapping:         existing,
		AlreadyResolved: true,
	}
	if existing.ConfidenceScore != nil {
		resolution.Score = *existing.ConfidenceScore
	}

	reason := "already resolved"
	if _, err := e.history.Create(ctx, e.historyRow(record, norm, resolution, start, &reason)); err != nil {
		return nil, err
	}

	metrics.ResolutionsTotal.WithLabelValues(record.Source, resolution.Decision).Inc()
	return resolution, nil
}

// readRaceWinner handles the worker that lost a duplicate-mapping race: the
// winning mapping is re-read and the record is treated as already processed.
// The attempt still gets its history row, in a fresh transaction since the
// losing one is already aborted.
func (e *Engine) readRaceWinner(ctx context.Context, record models.SourceRecord, norm normalizer.Normalized, start time.Time, log ectologger.Logger) (*models.Resolution, error) {
	baseCtx := ctx
	ctx, tx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer e.rollback(baseCtx, tx)

	winner, err := e.mappings.GetBySourceSKU(ctx, record.Source, record.ExternalSKU)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "duplicate mapping conflict but winning row not found")
	}

	resolution := &models.Resolution{
		Decision:        decisionForStatus(winner.VerificationStatus),
		MatchMethod:     winner.MatchMethod,
		Mapping:         winner,
		AlreadyResolved: true,
	}
	if winner.ConfidenceScore != nil {
		resolution.Score = *winner.ConfidenceScore
	}

	reason := "lost mapping race"
	if _, err := e.history.Create(ctx, e.historyRow(record, norm, resolution, start, &reason)); err != nil {
		return nil, err
	}
	if err := e.commit(ctx, tx); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{"master_id": winner.MasterID}).Info("Lost mapping race, linked to winning mapping")
	metrics.ResolutionsTotal.WithLabelValues(record.Source, decisionForStatus(winner.VerificationStatus)).Inc()

	return resolution, nil
}

func (e *Engine) historyRow(record models.SourceRecord, norm normalizer.Normalized, resolution *models.Resolution, start time.Time, reason *string) *models.MatchingHistory {
	history := &models.MatchingHistory{
		Source:        record.Source,
		ExternalSKU:   record.ExternalSKU,
		InputName:     norm.Name,
		InputBrand:    norm.Brand,
		InputCategory: norm.Category,
		Candidates:    database.JSONB[[]models.CandidateScore]{Data: resolution.Candidates},
		Decision:      resolution.Decision,
		Reason:        reason,
		DurationMs:    time.Since(start).Milliseconds(),
	}
	if resolution.MatchMethod != "" {
		method := resolution.MatchMethod
		history.MatchMethod = &method
	}
	if len(resolution.Candidates) > 0 || resolution.AlreadyResolved {
		score := resolution.Score
		history.Score = &score
	}
	if resolution.Mapping != nil {
		history.MasterID = &resolution.Mapping.MasterID
	} else if resolution.Master != nil {
		history.MasterID = &resolution.Master.ID
	}
	return history
}

func decisionForStatus(status string) string {
	switch status {
	case models.VerificationStatusPending:
		return models.DecisionManualPending
	case models.VerificationStatusRejected:
		return models.DecisionRejected
	default:
		return models.DecisionAutoMatched
	}
}

func barcodeFromRaw(raw map[string]any) *string {
	if raw == nil {
		return nil
	}
	v, ok := raw["barcode"]
	if !ok {
		return nil
	}
	s := fmt.Sprint(v)
	if s == "" {
		return nil
	}
	return &s
}

func (e *Engine) begin(ctx context.Context) (context.Context, database.Tx, error) {
	if e.db == nil {
		return ctx, nil, nil
	}
	return e.db.GetTx(ctx, nil)
}

func (e *Engine) commit(ctx context.Context, tx database.Tx) error {
	if tx == nil {
		return nil
	}
	return tx.Commit(ctx)
}

// rollback uses the pre-transaction context so the rollback actually runs
// instead of deferring to a context transaction owner.
func (e *Engine) rollback(baseCtx context.Context, tx database.Tx) {
	if tx == nil {
		return
	}
	_ = tx.Rollback(baseCtx)
}
