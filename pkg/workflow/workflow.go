// Package workflow implements the verification state machine for SKU
// mappings: pending to manual on reviewer confirmation, pending to rejected
// on reviewer rejection, and the explicit follow-up that re-resolves a
// rejected mapping onto a fresh master product.
package workflow

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/sellerdesk/peony/pkg/database"
	"github.com/sellerdesk/peony/pkg/metrics"
	"github.com/sellerdesk/peony/pkg/models"
	"github.com/sellerdesk/peony/pkg/normalizer"
	"github.com/sellerdesk/peony/pkg/tracing"
)

// MappingStore is the slice of the SKU mapping repository the workflow needs.
type MappingStore interface {
	GetBySourceSKU(ctx context.Context, source, externalSKU string) (*models.SkuMapping, error)
	UpdateVerification(ctx context.Context, source, externalSKU, fromStatus, toStatus string, reviewer *string) error
	Repoint(ctx context.Context, source, externalSKU, newMasterID, status, method string, reviewer *string) error
}

// MasterStore creates masters for rejected-mapping follow-ups.
type MasterStore interface {
	InsertOrGet(ctx context.Context, master *models.MasterProduct) (*models.MasterProduct, bool, error)
}

// HistoryStore appends audit rows for follow-up re-resolutions.
type HistoryStore interface {
	Create(ctx context.Context, history *models.MatchingHistory) (*models.MatchingHistory, error)
}

// Service drives verification status transitions.
type Service struct {
	logger   ectologger.Logger
	db       database.DB
	mappings MappingStore
	masters  MasterStore
	history  HistoryStore
}

// NewService creates a verification workflow service. db may be nil in tests.
func NewService(logger ectologger.Logger, db database.DB, mappings MappingStore, masters MasterStore, history HistoryStore) *Service {
	return &Service{
		logger:   logger,
		db:       db,
		mappings: mappings,
		masters:  masters,
		history:  history,
	}
}

// Confirm transitions a pending mapping to manual. The suggested master is
// kept; only the status and the reviewer audit fields change.
func (s *Service) Confirm(ctx context.Context, source, externalSKU, reviewer string) (*models.SkuMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.Service.Confirm")
	defer span.End()

	if reviewer == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "reviewer identity is required")
	}

	baseCtx := ctx
	ctx, tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.rollback(baseCtx, tx)

	mapping, err := s.requireMapping(ctx, source, externalSKU)
	if err != nil {
		return nil, err
	}
	if !mapping.IsPending() {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("mapping %s/%s is %s, only pending mappings can be confirmed", source, externalSKU, mapping.VerificationStatus))
	}

	if err := s.mappings.UpdateVerification(ctx, source, externalSKU, models.VerificationStatusPending, models.VerificationStatusManual, &reviewer); err != nil {
		return nil, err
	}

	updated, err := s.requireMapping(ctx, source, externalSKU)
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, tx); err != nil {
		return nil, err
	}

	metrics.ReviewActionsTotal.WithLabelValues("confirm").Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"source":       source,
		"external_sku": externalSKU,
		"reviewer":     reviewer,
	}).Info("Mapping confirmed by reviewer")

	return updated, nil
}

// Reject transitions a pending mapping to rejected. Rejected is terminal:
// the master reference is kept for audit but the link is explicitly not
// trusted. Re-resolution is a separate follow-up action.
func (s *Service) Reject(ctx context.Context, source, externalSKU, reviewer string) (*models.SkuMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.Service.Reject")
	defer span.End()

	if reviewer == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "reviewer identity is required")
	}

	baseCtx := ctx
	ctx, tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.rollback(baseCtx, tx)

	mapping, err := s.requireMapping(ctx, source, externalSKU)
	if err != nil {
		return nil, err
	}
	if !mapping.IsPending() {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("mapping %s/%s is %s, only pending mappings can be rejected", source, externalSKU, mapping.VerificationStatus))
	}

	if err := s.mappings.UpdateVerification(ctx, source, externalSKU, models.VerificationStatusPending, models.VerificationStatusRejected, &reviewer); err != nil {
		return nil, err
	}

	updated, err := s.requireMapping(ctx, source, externalSKU)
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, tx); err != nil {
		return nil, err
	}

	metrics.ReviewActionsTotal.WithLabelValues("reject").Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"source":       source,
		"external_sku": externalSKU,
		"reviewer":     reviewer,
	}).Info("Mapping rejected by reviewer")

	return updated, nil
}

// ResolveRejected is the explicit follow-up after a rejection: a new master
// product is created from the mapping's original source fields and the
// mapping is re-pointed at it. The re-mapping is audited with a history row.
func (s *Service) ResolveRejected(ctx context.Context, source, externalSKU, reviewer string) (*models.Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.Service.ResolveRejected")
	defer span.End()

	if reviewer == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "reviewer identity is required")
	}

	start := time.Now()

	baseCtx := ctx
	ctx, tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.rollback(baseCtx, tx)

	mapping, err := s.requireMapping(ctx, source, externalSKU)
	if err != nil {
		return nil, err
	}
	if mapping.VerificationStatus != models.VerificationStatusRejected {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("mapping %s/%s is %s, only rejected mappings can be re-resolved", source, externalSKU, mapping.VerificationStatus))
	}

	norm := normalizer.Record(mapping.SourceName, mapping.SourceBrand, mapping.SourceCategory)
	if norm.Name == "" {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("mapping %s/%s has no source name to build a master from", source, externalSKU))
	}

	master, created, err := s.masters.InsertOrGet(ctx, &models.MasterProduct{
		CanonicalName:     norm.Name,
		CanonicalBrand:    norm.Brand,
		CanonicalCategory: norm.Category,
		Status:            models.MasterProductStatusActive,
	})
	if err != nil {
		return nil, err
	}

	if err := s.mappings.Repoint(ctx, source, externalSKU, master.ID, models.VerificationStatusManual, models.MatchMethodManual, &reviewer); err != nil {
		return nil, err
	}

	updated, err := s.requireMapping(ctx, source, externalSKU)
	if err != nil {
		return nil, err
	}

	method := models.MatchMethodManual
	reason := "re-resolved after rejection"
	if _, err := s.history.Create(ctx, &models.MatchingHistory{
		Source:        source,
		ExternalSKU:   externalSKU,
		InputName:     norm.Name,
		InputBrand:    norm.Brand,
		InputCategory: norm.Category,
		Candidates:    database.JSONB[[]models.CandidateScore]{Data: []models.CandidateScore{}},
		Decision:      models.DecisionNewMaster,
		MatchMethod:   &method,
		MasterID:      &master.ID,
		Reason:        &reason,
		DurationMs:    time.Since(start).Milliseconds(),
	}); err != nil {
		return nil, err
	}

	if err := s.commit(ctx, tx); err != nil {
		return nil, err
	}

	metrics.ReviewActionsTotal.WithLabelValues("resolve_rejected").Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"source":       source,
		"external_sku": externalSKU,
		"master_id":    master.ID,
		"reviewer":     reviewer,
	}).Info("Rejected mapping re-resolved onto new master")

	return &models.Resolution{
		Decision:      models.DecisionNewMaster,
		MatchMethod:   models.MatchMethodManual,
		Master:        master,
		Mapping:       updated,
		CreatedMaster: created,
	}, nil
}

func (s *Service) requireMapping(ctx context.Context, source, externalSKU string) (*models.SkuMapping, error) {
	mapping, err := s.mappings.GetBySourceSKU(ctx, source, externalSKU)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("mapping %s/%s not found", source, externalSKU))
	}
	return mapping, nil
}

func (s *Service) begin(ctx context.Context) (context.Context, database.Tx, error) {
	if s.db == nil {
		return ctx, nil, nil
	}
	return s.db.GetTx(ctx, nil)
}

func (s *Service) commit(ctx context.Context, tx database.Tx) error {
	if tx == nil {
		return nil
	}
	return tx.Commit(ctx)
}

func (s *Service) rollback(baseCtx context.Context, tx database.Tx) {
	if tx == nil {
		return
	}
	_ = tx.Rollback(baseCtx)
}
