package skumapping

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/sellerdesk/peony/pkg/database"
	"github.com/sellerdesk/peony/pkg/models"
	"github.com/sellerdesk/peony/pkg/tracing"
)

const uniqueViolation = "23505"

var columns = []string{
	"id", "master_id", "source", "external_sku", "source_name", "source_brand",
	"source_category", "confidence_score", "verification_status", "match_method",
	"verified_by", "verified_at", "created_at", "updated_at",
}

// Repository handles SKU mapping persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new mapping. A unique violation on (source, external_sku)
// is returned as a conflict so the caller can re-read the winning row.
func (r *Repository) Create(ctx context.Context, mapping *models.SkuMapping) (*models.SkuMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "skumapping.Repository.Create")
	defer span.End()

	if mapping.ID == "" {
		mapping.ID = uuid.New().String()
	}
	mapping.CreatedAt = time.Now().UTC()
	mapping.UpdatedAt = mapping.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("sku_mappings")
	sb.Cols(columns...)
	sb.Values(
		mapping.ID, mapping.MasterID, mapping.Source, mapping.ExternalSKU,
		mapping.SourceName, mapping.SourceBrand, mapping.SourceCategory,
		mapping.ConfidenceScore, mapping.VerificationStatus, mapping.MatchMethod,
		mapping.VerifiedBy, mapping.VerifiedAt, mapping.CreatedAt, mapping.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := database.ActiveQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("mapping already exists for %s/%s", mapping.Source, mapping.ExternalSKU))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source":       mapping.Source,
			"external_sku": mapping.ExternalSKU,
		}).Error("Failed to create sku mapping")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create sku mapping")
	}

	return mapping, nil
}

// GetBySourceSKU returns the live mapping for a (source, external_sku) pair,
// or nil when the pair has never been resolved.
func (r *Repository) GetBySourceSKU(ctx context.Context, source, externalSKU string) (*models.SkuMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "skumapping.Repository.GetBySourceSKU")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("sku_mappings")
	sb.Where(
		sb.Equal("source", source),
		sb.Equal("external_sku", externalSKU),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var mapping models.SkuMapping
	if err := database.ActiveQuerier(ctx, r.db).GetContext(ctx, &mapping, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get sku mapping")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sku mapping")
	}

	return &mapping, nil
}

// ListPending retrieves mappings awaiting manual review, lowest-confidence
// first so reviewers see the least certain suggestions at the top.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]models.SkuMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "skumapping.Repository.ListPending")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("sku_mappings")
	sb.Where(sb.Equal("verification_status", models.VerificationStatusPending))
	sb.OrderBy("confidence_score ASC", "created_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var mappings []models.SkuMapping
	if err := database.ActiveQuerier(ctx, r.db).SelectContext(ctx, &mappings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending sku mappings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending sku mappings")
	}

	return mappings, nil
}

// ListByStatus retrieves mappings with the given verification status,
// optionally filtered by source.
func (r *Repository) ListByStatus(ctx context.Context, status, source string, limit int) ([]models.SkuMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "skumapping.Repository.ListByStatus")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("sku_mappings")

	where := []string{sb.Equal("verification_status", status)}
	if source != "" {
		where = append(where, sb.Equal("source", source))
	}
	sb.Where(where...)
	sb.OrderBy("updated_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var mappings []models.SkuMapping
	if err := database.ActiveQuerier(ctx, r.db).SelectContext(ctx, &mappings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list sku mappings by status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sku mappings")
	}

	return mappings, nil
}

// ListByMaster retrieves all mappings pointing at one master product.
func (r *Repository) ListByMaster(ctx context.Context, masterID string) ([]models.SkuMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "skumapping.Repository.ListByMaster")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("sku_mappings")
	sb.Where(sb.Equal("master_id", masterID))
	sb.OrderBy("source ASC", "external_sku ASC")

	query, args := sb.Build()
	var mappings []models.SkuMapping
	if err := database.ActiveQuerier(ctx, r.db).SelectContext(ctx, &mappings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list sku mappings by master")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sku mappings")
	}

	return mappings, nil
}

// UpdateVerification transitions a mapping from one verification status to
// another, stamping reviewer identity and time. The fromStatus guard makes
// the transition a compare-and-set: a stale reviewer action loses.
func (r *Repository) UpdateVerification(ctx context.Context, source, externalSKU, fromStatus, toStatus string, reviewer *string) error {
	ctx, span := tracing.StartSpan(ctx, "skumapping.Repository.UpdateVerification")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("sku_mappings")
	sb.Set(
		sb.Assign("verification_status", toStatus),
		sb.Assign("verified_by", reviewer),
		sb.Assign("verified_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("source", source),
		sb.Equal("external_sku", externalSKU),
		sb.Equal("verification_status", fromStatus),
	)

	query, args := sb.Build()
	result, err := database.ActiveQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source":       source,
			"external_sku": externalSKU,
			"to_status":    toStatus,
		}).Error("Failed to update sku mapping verification")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update sku mapping verification")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("mapping %s/%s is not in status %s", source, externalSKU, fromStatus))
	}

	return nil
}

// Repoint relinks a mapping to a different master product. Re-mapping is an
// explicit, audited operation; the caller must write the history row.
func (r *Repository) Repoint(ctx context.Context, source, externalSKU, newMasterID, status, method string, reviewer *string) error {
	ctx, span := tracing.StartSpan(ctx, "skumapping.Repository.Repoint")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("sku_mappings")
	sb.Set(
		sb.Assign("master_id", newMasterID),
		sb.Assign("verification_status", status),
		sb.Assign("match_method", method),
		sb.Assign("verified_by", reviewer),
		sb.Assign("verified_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("source", source),
		sb.Equal("external_sku", externalSKU),
	)

	query, args := sb.Build()
	result, err := database.ActiveQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source":        source,
			"external_sku":  externalSKU,
			"new_master_id": newMasterID,
		}).Error("Failed to repoint sku mapping")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint sku mapping")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("mapping %s/%s not found", source, externalSKU))
	}

	return nil
}

// IsConflict reports whether the error is the duplicate-mapping conflict
// raised when two writers race on the same (source, external_sku) pair.
func IsConflict(err error) bool {
	return httperror.GetStatusCode(err) == http.StatusConflict
}
