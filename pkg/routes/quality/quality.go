package quality

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/sellerdesk/peony/internal/repositories/qualitymetric"
	"github.com/sellerdesk/peony/pkg/quality"
)

// Register registers data quality routes
func Register(g *echo.Group) {
	g.GET("", ListMetrics)
	g.POST("/recalculate", Recalculate)
}

// ListMetrics lists quality metric snapshots with optional filters
func ListMetrics(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	var from, to time.Time
	if raw := c.QueryParam("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "from must be an RFC3339 timestamp")
		}
		from = parsed
	}
	if raw := c.QueryParam("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "to must be an RFC3339 timestamp")
		}
		to = parsed
	}

	ctx, repo, err := ectoinject.GetContext[*qualitymetric.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	metrics, err := repo.List(ctx, c.QueryParam("metric"), c.QueryParam("source"), from, to, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, metrics)
}

// Recalculate computes and stores a fresh quality snapshot
func Recalculate(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, calculator, err := ectoinject.GetContext[*quality.Calculator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	snapshot, err := calculator.Calculate(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, snapshot)
}
