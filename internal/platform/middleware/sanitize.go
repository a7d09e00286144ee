package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// maxHeaderValueBytes caps any single request header value.
const maxHeaderValueBytes = 8192

var (
	// Injection shapes that are rejected outright. Study and site names
	// arrive as free text in query strings, so markup has no business
	// being there.
	scriptShapes = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)

	// Classic SQL injection probes. Queries are parameterized throughout,
	// so these only warrant a warning, not a rejection.
	sqlShapes = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)
)

// Sanitize rejects requests carrying the obvious attack shapes before
// they reach a handler: traversal or null bytes in the path, oversized
// or newline-bearing headers, and markup in query parameters.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			if reason := checkPath(req.URL.Path, req.URL.RawPath); reason != "" {
				return reject(c, reason)
			}

			for name, values := range req.Header {
				for _, v := range values {
					if len(v) > maxHeaderValueBytes {
						return reject(c, "header value exceeds maximum size: "+name)
					}
					if strings.ContainsAny(v, "\r\n") {
						return reject(c, "header injection detected: "+name)
					}
				}
			}

			for key, values := range req.URL.Query() {
				if hasNullByte(key) || scriptShapes.MatchString(key) {
					return reject(c, "malformed query parameter name")
				}
				for _, v := range values {
					if hasNullByte(v) {
						return reject(c, "null byte in query parameter")
					}
					if scriptShapes.MatchString(v) {
						return reject(c, "script injection detected in query parameter")
					}
					if sqlShapes.MatchString(v) {
						logger.Warn().
							Str("param", key).
							Str("path", req.URL.Path).
							Str("remote_ip", c.RealIP()).
							Msg("SQL injection pattern in query parameter")
					}
				}
			}

			return next(c)
		}
	}
}

// checkPath examines both the decoded and the raw request path, since
// traversal sequences often hide behind percent encoding.
func checkPath(path, rawPath string) string {
	if rawPath == "" {
		rawPath = path
	}
	for _, p := range []string{path, rawPath} {
		if hasTraversal(p) {
			return "path traversal detected"
		}
		if hasNullByte(p) {
			return "null byte in path"
		}
	}
	return ""
}

func hasTraversal(s string) bool {
	if strings.Contains(s, "..") {
		return true
	}
	lower := strings.ToLower(s)
	return strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func hasNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

func reject(c echo.Context, reason string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"message": reason})
}
