package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

var errBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")

// BodyLimit caps request body sizes with 413 responses. Bulk imports
// carry every row of a study protocol, so POSTs to /import endpoints get
// their own, higher cap. Sizes are strings like "512K", "2M" or "1G"; a
// bare number is bytes.
func BodyLimit(defaultSize, importSize string) echo.MiddlewareFunc {
	defaultCap := parseSize(defaultSize, 1<<20)
	importCap := parseSize(importSize, 8<<20)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := defaultCap
			if req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/import") {
				limit = importCap
			}

			// Declared lengths are rejected before any byte is read. The
			// capped reader covers chunked uploads that carry no length.
			if req.ContentLength > limit {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
					"message": fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit),
				})
			}
			req.Body = &cappedBody{inner: req.Body, left: limit}

			return next(c)
		}
	}
}

// cappedBody reads at most one byte past its cap, which is how an
// undeclared overrun is detected.
type cappedBody struct {
	inner io.ReadCloser
	left  int64
	hit   bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.hit {
		return 0, errBodyTooLarge
	}
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.inner.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		b.hit = true
		return 0, errBodyTooLarge
	}
	return n, err
}

func (b *cappedBody) Close() error {
	return b.inner.Close()
}

// parseSize converts "512K", "2M", "1G" or a bare byte count into bytes.
// Unparseable or negative input falls back to the given default.
func parseSize(s string, fallback int64) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}

	mult := int64(1)
	units := []struct {
		suffix string
		mult   int64
	}{
		{"KB", 1 << 10}, {"K", 1 << 10},
		{"MB", 1 << 20}, {"M", 1 << 20},
		{"GB", 1 << 30}, {"G", 1 << 30},
	}
	for _, u := range units {
		if rest, ok := strings.CutSuffix(s, u.suffix); ok {
			s, mult = strings.TrimSpace(rest), u.mult
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n * mult
}
