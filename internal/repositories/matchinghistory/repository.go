package matchinghistory

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/sellerdesk/peony/pkg/database"
	"github.com/sellerdesk/peony/pkg/models"
	"github.com/sellerdesk/peony/pkg/tracing"
)

var columns = []string{
	"id", "source", "external_sku", "input_name", "input_brand", "input_category",
	"candidates", "decision", "match_method", "score", "master_id", "reason",
	"duration_ms", "created_at",
}

// Repository handles the append-only matching history log. Rows are written
// once and never updated or deleted.
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

// Create appends one resolution attempt to the history log.
func (r *Repository) Create(ctx context.Context, history *models.MatchingHistory) (*models.MatchingHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "matchinghistory.Repository.Create")
	defer span.End()

	history.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("matching_history")
	sb.Cols(
		"source", "external_sku", "input_name", "input_brand", "input_category",
		"candidates", "decision", "match_method", "score", "master_id", "reason",
		"duration_ms", "created_at",
	)
	sb.Values(
		history.Source, history.ExternalSKU, history.InputName, history.InputBrand,
		history.InputCategory, history.Candidates, history.Decision, history.MatchMethod,
		history.Score, history.MasterID, history.Reason, history.DurationMs, history.CreatedAt,
	)

	query, args := sb.Build()
	query += " RETURNING id"

	row := database.ActiveQuerier(ctx, r.db).QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&history.ID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source":       history.Source,
			"external_sku": history.ExternalSKU,
		}).Error("Failed to create matching history entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create matching history entry")
	}

	return history, nil
}

// ListBySourceSKU returns the audit trail for one external identifier,
// newest first.
func (r *Repository) ListBySourceSKU(ctx context.Context, source, externalSKU string, limit int) ([]models.MatchingHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "matchinghistory.Repository.ListBySourceSKU")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("matching_history")
	sb.Where(
		sb.Equal("source", source),
		sb.Equal("external_sku", externalSKU),
	)
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var entries []models.MatchingHistory
	if err := database.ActiveQuerier(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list matching history")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list matching history")
	}

	return entries, nil
}

// ListRecent returns the most recent resolution attempts across all sources,
// optionally filtered by decision.
func (r *Repository) ListRecent(ctx context.Context, decision string, limit int) ([]models.MatchingHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "matchinghistory.Repository.ListRecent")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("matching_history")
	if decision != "" {
		sb.Where(sb.Equal("decision", decision))
	}
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var entries []models.MatchingHistory
	if err := database.ActiveQuerier(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list recent matching history")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list matching history")
	}

	return entries, nil
}
