package reviewqueue

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/sellerdesk/peony/internal/repositories/skumapping"
	"github.com/sellerdesk/peony/pkg/appcontext"
	"github.com/sellerdesk/peony/pkg/workflow"
)

// Register registers review queue routes
func Register(g *echo.Group) {
	g.GET("", ListQueue)
	g.POST("/:source/:sku/confirm", ConfirmMapping)
	g.POST("/:source/:sku/reject", RejectMapping)
	g.POST("/:source/:sku/resolve", ResolveRejectedMapping)
}

// ListQueue lists mappings awaiting review, lowest confidence first
func ListQueue(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	ctx, repo, err := ectoinject.GetContext[*skumapping.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if status := c.QueryParam("status"); status != "" {
		mappings, err := repo.ListByStatus(ctx, status, c.QueryParam("source"), limit)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, mappings)
	}

	mappings, err := repo.ListPending(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, mappings)
}

// ConfirmMapping confirms a pending mapping against its suggested master
func ConfirmMapping(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, service, err := ectoinject.GetContext[*workflow.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	mapping, err := service.Confirm(ctx, c.Param("source"), c.Param("sku"), appcontext.GetReviewer(ctx))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, mapping)
}

// RejectMapping rejects a pending mapping
func RejectMapping(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, service, err := ectoinject.GetContext[*workflow.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	mapping, err := service.Reject(ctx, c.Param("source"), c.Param("sku"), appcontext.GetReviewer(ctx))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, mapping)
}

// ResolveRejectedMapping re-resolves a rejected mapping onto a new master
func ResolveRejectedMapping(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, service, err := ectoinject.GetContext[*workflow.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resolution, err := service.ResolveRejected(ctx, c.Param("source"), c.Param("sku"), appcontext.GetReviewer(ctx))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, resolution)
}
