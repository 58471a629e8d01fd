package masterproduct

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/sellerdesk/peony/pkg/database"
	"github.com/sellerdesk/peony/pkg/models"
	"github.com/sellerdesk/peony/pkg/tracing"
)

var columns = []string{
	"id", "canonical_name", "canonical_brand", "canonical_category",
	"description", "attributes", "barcode", "status", "created_at", "updated_at",
}

// Repository handles master product persistence
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

func (r *Repository) DB() database.DB {
	return r.db
}

// SimilarMaster is a master product returned by the trigram search together
// with its relevance signal.
type SimilarMaster struct {
	models.MasterProduct
	Relevance float64 `db:"relevance"`
}

// SearchFilters narrows master product listings.
type SearchFilters struct {
	Query    string
	Brand    string
	Category string
	Barcode  string
	Status   string
	Limit    int
}

// InsertOrGet inserts the master product, or returns the existing row when
// another writer already created the same (canonical_name, canonical_brand)
// pair. The bool reports whether this call created the row.
func (r *Repository) InsertOrGet(ctx context.Context, master *models.MasterProduct) (*models.MasterProduct, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "masterproduct.Repository.InsertOrGet")
	defer span.End()

	if master.ID == "" {
		master.ID = uuid.New().String()
	}
	if master.Status == "" {
		master.Status = models.MasterProductStatusActive
	}
	if master.Attributes == nil {
		master.Attributes = models.AttributeSet{}
	}
	master.CreatedAt = time.Now().UTC()
	master.UpdatedAt = master.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("master_products")
	sb.Cols(columns...)
	sb.Values(
		master.ID, master.CanonicalName, master.CanonicalBrand, master.CanonicalCategory,
		master.Description, master.Attributes, master.Barcode, master.Status,
		master.CreatedAt, master.UpdatedAt,
	)

	query, args := sb.Build()
	// insert-or-reselect instead of check-then-insert so two workers racing to
	// create the same product converge on one row
	query += " ON CONFLICT (canonical_name, canonical_brand) DO NOTHING"

	result, err := database.ActiveQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"canonical_name":  master.CanonicalName,
			"canonical_brand": master.CanonicalBrand,
		}).Error("Failed to insert master product")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert master product")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return master, true, nil
	}

	// re-read without the status guard: the conflicting row wins the race even
	// when it has since been retired
	existing, err := r.getByNameBrand(ctx, master.CanonicalName, master.CanonicalBrand, false)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "master product conflict row disappeared")
	}
	return existing, false, nil
}

// Get retrieves a master product by ID.
func (r *Repository) Get(ctx context.Context, id string) (*models.MasterProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "masterproduct.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("master_products")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var master models.MasterProduct
	if err := database.ActiveQuerier(ctx, r.db).GetContext(ctx, &master, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("master product %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get master product")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get master product")
	}

	return &master, nil
}

// GetByNameBrand looks up the master whose canonical pair exactly equals the
// given normalized name and brand. Merged and inactive masters are excluded,
// same as the trigram search, so retired products never attract new mappings.
// Returns nil when no such master exists.
func (r *Repository) GetByNameBrand(ctx context.Context, name, brand string) (*models.MasterProduct, error) {
	return r.getByNameBrand(ctx, name, brand, true)
}

func (r *Repository) getByNameBrand(ctx context.Context, name, brand string, liveOnly bool) (*models.MasterProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "masterproduct.Repository.GetByNameBrand")
	defer span.End()

	query, args := buildNameBrandQuery(name, brand, liveOnly)
	var master models.MasterProduct
	if err := database.ActiveQuerier(ctx, r.db).GetContext(ctx, &master, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get master product by name and brand")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get master product")
	}

	return &master, nil
}

func buildNameBrandQuery(name, brand string, liveOnly bool) (string, []interface{}) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("master_products")
	sb.Where(
		sb.Equal("canonical_name", name),
		sb.Equal("canonical_brand", brand),
	)
	if liveOnly {
		sb.Where(sb.NotIn("status", models.MasterProductStatusMerged, models.MasterProductStatusInactive))
	}
	sb.Limit(1)
	return sb.Build()
}

// GetByBarcode retrieves a master product by barcode. Returns nil when no
// master carries the barcode.
func (r *Repository) GetByBarcode(ctx context.Context, barcode string) (*models.MasterProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "masterproduct.Repository.GetByBarcode")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("master_products")
	sb.Where(sb.Equal("barcode", barcode))
	sb.Limit(1)

	query, args := sb.Build()
	var master models.MasterProduct
	if err := database.ActiveQuerier(ctx, r.db).GetContext(ctx, &master, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get master product by barcode")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get master product")
	}

	return &master, nil
}

// SearchSimilar runs the trigram relevance search over canonical name, brand
// and description, with a substring fallback, returning the top candidates by
// relevance. Merged masters are excluded since their mappings were moved.
func (r *Repository) SearchSimilar(ctx context.Context, name string, minSimilarity float64, limit int) ([]SimilarMaster, error) {
	ctx, span := tracing.StartSpan(ctx, "masterproduct.Repository.SearchSimilar")
	defer span.End()

	if limit < 1 || limit > 50 {
		limit = 5
	}

	query := `
		SELECT id, canonical_name, canonical_brand, canonical_category, description, attributes, barcode, status, created_at, updated_at,
			GREATEST(
				similarity(canonical_name, $1),
				similarity(canonical_brand, $1) * 0.5,
				similarity(COALESCE(description, ''), $1) * 0.3
			) AS relevance
		FROM master_products
		WHERE status NOT IN ('merged', 'inactive')
		AND (
			similarity(canonical_name, $1) > $2
			OR canonical_name ILIKE '%' || $1 || '%'
			OR similarity(canonical_brand, $1) > $2
			OR similarity(COALESCE(description, ''), $1) > $2
		)
		ORDER BY relevance DESC
		LIMIT $3
	`

	var masters []SimilarMaster
	if err := database.ActiveQuerier(ctx, r.db).SelectContext(ctx, &masters, query, name, minSimilarity, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": name}).Error("Failed to search similar master products")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search master products")
	}

	return masters, nil
}

// Search lists master products matching the given filters.
func (r *Repository) Search(ctx context.Context, filters SearchFilters) ([]models.MasterProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "masterproduct.Repository.Search")
	defer span.End()

	if filters.Limit < 1 || filters.Limit > 500 {
		filters.Limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("master_products")

	where := []string{}
	if filters.Query != "" {
		where = append(where, sb.Like("canonical_name", "%"+filters.Query+"%"))
	}
	if filters.Brand != "" {
		where = append(where, sb.Equal("canonical_brand", filters.Brand))
	}
	if filters.Category != "" {
		where = append(where, sb.Equal("canonical_category", filters.Category))
	}
	if filters.Barcode != "" {
		where = append(where, sb.Equal("barcode", filters.Barcode))
	}
	if filters.Status != "" {
		where = append(where, sb.Equal("status", filters.Status))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("canonical_name ASC")
	sb.Limit(filters.Limit)

	query, args := sb.Build()
	var masters []models.MasterProduct
	if err := database.ActiveQuerier(ctx, r.db).SelectContext(ctx, &masters, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search master products")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search master products")
	}

	return masters, nil
}

// UpdateStatus moves a master product to a new lifecycle status.
func (r *Repository) UpdateStatus(ctx context.Context, id, status string) error {
	ctx, span := tracing.StartSpan(ctx, "masterproduct.Repository.UpdateStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("master_products")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := database.ActiveQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to update master product status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update master product status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("master product %s not found", id))
	}

	return nil
}

// Enrich merges new attributes into a master product without overwriting
// existing values, and fills barcode/description when they are still empty.
func (r *Repository) Enrich(ctx context.Context, id string, attributes models.AttributeSet, barcode *string, description string) (*models.MasterProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "masterproduct.Repository.Enrich")
	defer span.End()

	master, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	master.Attributes = master.Attributes.Merge(attributes)
	if master.Barcode == nil && barcode != nil && *barcode != "" {
		master.Barcode = barcode
	}
	if master.Description == "" && description != "" {
		master.Description = description
	}
	master.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("master_products")
	sb.Set(
		sb.Assign("attributes", master.Attributes),
		sb.Assign("barcode", master.Barcode),
		sb.Assign("description", master.Description),
		sb.Assign("updated_at", master.UpdatedAt),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := database.ActiveQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to enrich master product")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to enrich master product")
	}

	return master, nil
}
