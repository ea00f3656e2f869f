package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. Store calls made
// with that context are abandoned once it passes (or the client goes away),
// and a handler that fails because of the deadline yields 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err == nil || c.Response().Committed {
				return err
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out").SetInternal(err)
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				// Client went away; nobody is left to read the response.
				return echo.NewHTTPError(StatusClientClosedRequest, "client closed request").SetInternal(err)
			}
			return err
		}
	}
}

// StatusClientClosedRequest is the nginx convention for a request abandoned
// by its client.
const StatusClientClosedRequest = 499
