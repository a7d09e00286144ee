package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole restricts a route to callers holding at least one of the
// given roles. Requests with no identity at all are refused outright.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusForbidden, "no authenticated identity")
			}
			for _, role := range roles {
				if id.Allows(role) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
