package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sellerdesk/peony/pkg/appcontext"
)

const (
	// HeaderReviewer identifies the human reviewer on review queue actions.
	HeaderReviewer = "X-Reviewer"
	// HeaderSource identifies the marketplace source on batch submissions.
	HeaderSource = "X-Source"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := req.Context()
			ctx = appcontext.SetRequestID(ctx, requestID)
			ctx = appcontext.SetMethod(ctx, req.Method)
			ctx = appcontext.SetRoute(ctx, req.URL.Path)
			ctx = appcontext.SetRemoteIP(ctx, c.RealIP())
			ctx = appcontext.SetReviewer(ctx, req.Header.Get(HeaderReviewer))
			ctx = appcontext.SetSource(ctx, req.Header.Get(HeaderSource))

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
