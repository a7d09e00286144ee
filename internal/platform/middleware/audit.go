package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/trialcal/trialcal/internal/platform/auth"
)

// AuditEntry is one line of the access trail. Trial data feeds sponsor
// invoicing, so every API call is recorded with the acting user attached.
type AuditEntry struct {
	Time      time.Time
	RequestID string
	Actor     string
	ActorSite string
	Roles     []string
	Action    string // read, create, update, delete
	Resource  string
	Study     string
	Method    string
	Path      string
	RemoteIP  string
	UserAgent string
	Status    int
}

// AuditRecorder persists entries to a durable sink. Tests and optional
// database sinks implement it; without one, entries go to the structured
// log only.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc adapts a function to AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit records an audit-trail entry for every request under /api/v1/.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			err := next(c)
			if err != nil {
				// Resolve the error first so the entry carries the final
				// response status.
				c.Error(err)
			}

			entry := newAuditEntry(c, path)
			for _, rec := range recorders {
				if rec == nil {
					continue
				}
				if sinkErr := rec.RecordAccess(entry); sinkErr != nil {
					logger.Error().Err(sinkErr).
						Str("request_id", entry.RequestID).
						Msg("audit sink failed")
				}
			}
			entry.log(logger)

			return err
		}
	}
}

func newAuditEntry(c echo.Context, path string) AuditEntry {
	req := c.Request()
	rid, _ := c.Get("request_id").(string)
	id, _ := auth.IdentityFrom(req.Context())

	return AuditEntry{
		Time:      time.Now().UTC(),
		RequestID: rid,
		Actor:     id.Subject,
		ActorSite: id.Site,
		Roles:     id.Roles,
		Action:    actionFor(req.Method),
		Resource:  resourceFor(path),
		Study:     c.QueryParam("study"),
		Method:    req.Method,
		Path:      path,
		RemoteIP:  c.RealIP(),
		UserAgent: req.UserAgent(),
		Status:    c.Response().Status,
	}
}

// log writes the entry to the structured log. Mutations are logged at
// warn level so they stand out when scanning the trail.
func (e AuditEntry) log(logger zerolog.Logger) {
	evt := logger.Info()
	if e.Action != "read" {
		evt = logger.Warn()
	}
	evt.
		Str("type", "audit").
		Str("request_id", e.RequestID).
		Str("actor", e.Actor).
		Str("actor_site", e.ActorSite).
		Strs("roles", e.Roles).
		Str("action", e.Action).
		Str("resource", e.Resource).
		Str("study", e.Study).
		Str("method", e.Method).
		Str("path", e.Path).
		Str("remote_ip", e.RemoteIP).
		Int("status", e.Status).
		Msg("data_access")
}

// actionFor collapses HTTP methods into the four audit verbs.
func actionFor(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceFor extracts the top-level collection from an API path:
// /api/v1/patients/42 becomes "patients".
func resourceFor(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "unknown"
	}
	return rest
}
