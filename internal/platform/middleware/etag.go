package middleware

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ETagConfig controls response validation. Schedules, calendars and
// reports are recomputed per request, so instead of caching payloads the
// API tags them and lets clients revalidate with If-None-Match.
type ETagConfig struct {
	// MaxAge is the Cache-Control max-age in seconds. Zero forces
	// revalidation on every request, which is right for data that moves
	// whenever a coordinator records a visit.
	MaxAge int

	// VaryHeaders are joined into the Vary header.
	VaryHeaders []string

	// SkipPaths are exact request paths that are never tagged.
	SkipPaths []string
}

// DefaultETagConfig is what the API group registers: private responses,
// revalidate always, vary on the caller's token.
func DefaultETagConfig() ETagConfig {
	return ETagConfig{
		VaryHeaders: []string{"Accept", "Authorization"},
	}
}

// ETag tags successful GET and HEAD responses with a weak validator and
// answers matching If-None-Match revalidations with 304 Not Modified.
// Everything this API serves is patient-level data, so responses are
// never marked shared-cacheable.
func ETag(cfg ETagConfig) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			if skip[req.URL.Path] {
				return next(c)
			}

			res := c.Response()
			buf := &responseBuffer{ResponseWriter: res.Writer, status: http.StatusOK}
			res.Writer = buf

			err := next(c)
			res.Writer = buf.ResponseWriter
			if err != nil {
				return err
			}

			// Failures pass through untagged.
			if buf.status >= 400 {
				return buf.release()
			}

			h := res.Header()
			h.Set("Cache-Control", fmt.Sprintf("private, max-age=%d", cfg.MaxAge))
			if len(cfg.VaryHeaders) > 0 {
				h.Set("Vary", strings.Join(cfg.VaryHeaders, ", "))
			}

			tag := weakTag(buf.body.Bytes())
			h.Set("ETag", tag)

			if clientHas(req.Header.Get("If-None-Match"), tag) {
				res.Status = http.StatusNotModified
				res.Writer.WriteHeader(http.StatusNotModified)
				return nil
			}
			return buf.release()
		}
	}
}

// responseBuffer holds the handler's output back until the validator has
// been computed. Embedding keeps header writes going to the real writer.
type responseBuffer struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (b *responseBuffer) WriteHeader(code int) {
	b.status = code
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	return b.body.Write(p)
}

// Flush is a no-op while buffering.
func (b *responseBuffer) Flush() {}

// release replays the captured status and body onto the real writer.
func (b *responseBuffer) release() error {
	b.ResponseWriter.WriteHeader(b.status)
	if b.body.Len() == 0 {
		return nil
	}
	_, err := b.ResponseWriter.Write(b.body.Bytes())
	return err
}

// weakTag derives a weak validator from the body. Weak because two
// reconciliation runs over the same data serialize identically without
// being byte-for-byte guaranteed across releases.
func weakTag(body []byte) string {
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`
}

// clientHas reports whether an If-None-Match header matches tag. Uses
// weak comparison and honors candidate lists and the * wildcard.
func clientHas(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}
