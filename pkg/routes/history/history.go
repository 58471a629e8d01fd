package history

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/sellerdesk/peony/internal/repositories/matchinghistory"
)

// Register registers matching history routes
func Register(g *echo.Group) {
	g.GET("", ListRecent)
	g.GET("/:source/:sku", ListBySourceSKU)
}

func parseLimit(c echo.Context, fallback int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
	}
	return parsed, nil
}

// ListRecent lists recent resolution attempts, optionally filtered by decision
func ListRecent(c echo.Context) error {
	ctx := c.Request().Context()

	limit, err := parseLimit(c, 100)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*matchinghistory.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rows, err := repo.ListRecent(ctx, c.QueryParam("decision"), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rows)
}

// ListBySourceSKU lists the resolution attempts for one (source, sku) pair
func ListBySourceSKU(c echo.Context) error {
	ctx := c.Request().Context()

	limit, err := parseLimit(c, 50)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*matchinghistory.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rows, err := repo.ListBySourceSKU(ctx, c.Param("source"), c.Param("sku"), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rows)
}
