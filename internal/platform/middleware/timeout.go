package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout cancels the request context after d and answers 504 if
// no response has been produced by then. Schedule builds walk every
// protocol row and visit of a study, so a runaway query must not hold
// the connection forever. A non-positive d disables the limit.
func RequestTimeout(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			type outcome struct {
				err      error
				panicked any
			}
			done := make(chan outcome, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- outcome{panicked: r}
					}
				}()
				done <- outcome{err: next(c)}
			}()

			select {
			case out := <-done:
				if out.panicked != nil {
					// Re-panic on the request goroutine so Recovery sees it.
					panic(out.panicked)
				}
				return out.err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
					return echo.NewHTTPError(http.StatusGatewayTimeout,
						"request processing exceeded the allowed time limit")
				}
				return ctx.Err()
			}
		}
	}
}
