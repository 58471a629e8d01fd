package qualitymetric

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
	"id", "metric_name", "source", "value", "numerator", "denominator", "calculated_at",
}

// Repository handles the data quality metric time series plus the aggregate
// count queries the calculator runs over the store.
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

// InsertBatch appends one calculator run's metric rows. Prior rows are never
// overwritten so the series stays usable for trend charts.
func (r *Repository) InsertBatch(ctx context.Context, metrics []models.DataQualityMetric) error {
	ctx, span := tracing.StartSpan(ctx, "qualitymetric.Repository.InsertBatch")
	defer span.End()

	if len(metrics) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("data_quality_metrics")
	sb.Cols("metric_name", "source", "value", "numerator", "denominator", "calculated_at")
	for _, m := range metrics {
		sb.Values(m.MetricName, m.Source, m.Value, m.Numerator, m.Denominator, m.CalculatedAt)
	}

	query, args := sb.Build()
	if _, err := database.ActiveQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert quality metrics")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert quality metrics")
	}

	return nil
}

// List returns metric rows for trend charts, filtered by name, source and
// date range.
func (r *Repository) List(ctx context.Context, metricName, source string, from, to time.Time, limit int) ([]models.DataQualityMetric, error) {
	ctx, span := tracing.StartSpan(ctx, "qualitymetric.Repository.List")
	defer span.End()

	if limit < 1 || limit > 1000 {
		limit = 500
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("data_quality_metrics")

	where := []string{}
	if metricName != "" {
		where = append(where, sb.Equal("metric_name", metricName))
	}
	if source != "" {
		where = append(where, sb.Equal("source", source))
	}
	if !from.IsZero() {
		where = append(where, sb.GreaterEqualThan("calculated_at", from))
	}
	if !to.IsZero() {
		where = append(where, sb.LessEqualThan("calculated_at", to))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("calculated_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var metrics []models.DataQualityMetric
	if err := database.ActiveQuerier(ctx, r.db).SelectContext(ctx, &metrics, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list quality metrics")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list quality metrics")
	}

	return metrics, nil
}

// Counts holds the numerator and denominator of one quality ratio.
type Counts struct {
	Numerator   int64 `db:"numerator"`
	Denominator int64 `db:"denominator"`
}

// CompletenessCounts counts active master products with a real brand, a real
// category and a non-empty description. When source is non-empty, only
// masters linked from that source are considered.
func (r *Repository) CompletenessCounts(ctx context.Context, source string) (Counts, error) {
	ctx, span := tracing.StartSpan(ctx, "qualitymetric.Repository.CompletenessCounts")
	defer span.End()

	query := `
		SELECT
			COUNT(*) FILTER (
				WHERE canonical_brand NOT IN ('', 'Unknown')
				AND canonical_category NOT IN ('', 'Uncategorized')
				AND description <> ''
			) AS numerator,
			COUNT(*) AS denominator
		FROM master_products mp
		WHERE mp.status = 'active'
	`
	args := []any{}
	if source != "" {
		query += ` AND EXISTS (SELECT 1 FROM sku_mappings sm WHERE sm.master_id = mp.id AND sm.source = $1)`
		args = append(args, source)
	}

	var counts Counts
	if err := database.ActiveQuerier(ctx, r.db).GetContext(ctx, &counts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count master product completeness")
		return Counts{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count completeness")
	}

	return counts, nil
}

// CoverageCounts counts mappings that reached a terminal-success
// verification status over all mappings.
func (r *Repository) CoverageCounts(ctx context.Context, source string) (Counts, error) {
	ctx, span := tracing.StartSpan(ctx, "qualitymetric.Repository.CoverageCounts")
	defer span.End()

	query := `
		SELECT
			COUNT(*) FILTER (WHERE verification_status IN ('auto', 'manual')) AS numerator,
			COUNT(*) AS denominator
		FROM sku_mappings
	`
	args := []any{}
	if source != "" {
		query += ` WHERE source = $1`
		args = append(args, source)
	}

	var counts Counts
	if err := database.ActiveQuerier(ctx, r.db).GetContext(ctx, &counts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count mapping coverage")
		return Counts{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count coverage")
	}

	return counts, nil
}

// AccuracyCounts counts auto-matched mappings with a recorded confidence of
// at least 0.8 over all scored auto-matched mappings.
func (r *Repository) AccuracyCounts(ctx context.Context, source string) (Counts, error) {
	ctx, span := tracing.StartSpan(ctx, "qualitymetric.Repository.AccuracyCounts")
	defer span.End()

	query := `
		SELECT
			COUNT(*) FILTER (WHERE confidence_score >= 0.8) AS numerator,
			COUNT(*) AS denominator
		FROM sku_mappings
		WHERE verification_status = 'auto'
		AND confidence_score IS NOT NULL
	`
	args := []any{}
	if source != "" {
		query += ` AND source = $1`
		args = append(args, source)
	}

	var counts Counts
	if err := database.ActiveQuerier(ctx, r.db).GetContext(ctx, &counts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count auto match accuracy")
		return Counts{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count accuracy")
	}

	return counts, nil
}

// Sources returns the distinct sources present in the mapping table so the
// calculator can emit per-source metric rows.
func (r *Repository) Sources(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "qualitymetric.Repository.Sources")
	defer span.End()

	var sources []string
	if err := database.ActiveQuerier(ctx, r.db).SelectContext(ctx, &sources, `SELECT DISTINCT source FROM sku_mappings ORDER BY source`); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list mapping sources")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list mapping sources")
	}

	return sources, nil
}
