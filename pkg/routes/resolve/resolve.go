package resolve

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/sellerdesk/peony/pkg/appcontext"
	"github.com/sellerdesk/peony/pkg/matching"
	"github.com/sellerdesk/peony/pkg/models"
	"github.com/sellerdesk/peony/pkg/processor"
)

// Register registers resolution routes
func Register(g *echo.Group) {
	g.POST("", ResolveRecord)
	g.POST("/batch", ResolveBatch)
}

// ResolveRecord resolves a single source record
func ResolveRecord(c echo.Context) error {
	ctx := c.Request().Context()

	var record models.SourceRecord
	if err := c.Bind(&record); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "request body is not a valid source record")
	}

	ctx, engine, err := ectoinject.GetContext[*matching.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resolution, err := engine.Resolve(ctx, record)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if resolution.CreatedMaster {
		status = http.StatusCreated
	}
	return c.JSON(status, resolution)
}

// BatchRequest is a batch of source records from one marketplace.
type BatchRequest struct {
	Source  string                `json:"source"`
	Records []models.SourceRecord `json:"records"`
}

// ResolveBatch resolves a batch of source records through the worker pool
func ResolveBatch(c echo.Context) error {
	ctx := c.Request().Context()

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "request body is not a valid batch")
	}
	if req.Source == "" {
		req.Source = appcontext.GetSource(ctx)
	}
	if req.Source == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "source is required")
	}
	if len(req.Records) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "records must not be empty")
	}

	ctx, batch, err := ectoinject.GetContext[*processor.BatchProcessor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	report, err := batch.ProcessBatch(ctx, req.Source, req.Records)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, report)
}
