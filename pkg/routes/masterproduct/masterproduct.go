package masterproduct

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/sellerdesk/peony/internal/repositories/masterproduct"
	"github.com/sellerdesk/peony/internal/repositories/skumapping"
)

// Register registers master product routes
func Register(g *echo.Group) {
	g.GET("", SearchMasterProducts)
	g.GET("/:id", GetMasterProduct)
	g.GET("/:id/mappings", GetMasterProductMappings)
	g.PUT("/:id/status", UpdateMasterProductStatus)
}

// SearchMasterProducts searches the master catalog with optional filters
func SearchMasterProducts(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	ctx, repo, err := ectoinject.GetContext[*masterproduct.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	masters, err := repo.Search(ctx, masterproduct.SearchFilters{
		Query:    c.QueryParam("q"),
		Brand:    c.QueryParam("brand"),
		Category: c.QueryParam("category"),
		Barcode:  c.QueryParam("barcode"),
		Status:   c.QueryParam("status"),
		Limit:    limit,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, masters)
}

// GetMasterProduct gets a master product by id
func GetMasterProduct(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*masterproduct.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	master, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if master == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "master product not found")
	}

	return c.JSON(http.StatusOK, master)
}

// GetMasterProductMappings lists the SKU mappings linked to a master product
func GetMasterProductMappings(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*skumapping.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	mappings, err := repo.ListByMaster(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, mappings)
}

// StatusUpdate is the body of a status change request.
type StatusUpdate struct {
	Status string `json:"status"`
}

// UpdateMasterProductStatus retires or reactivates a master product
func UpdateMasterProductStatus(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var update StatusUpdate
	if err := c.Bind(&update); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "request body is not a valid status update")
	}
	if update.Status == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "status is required")
	}

	ctx, repo, err := ectoinject.GetContext[*masterproduct.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.UpdateStatus(ctx, id, update.Status); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": update.Status})
}
