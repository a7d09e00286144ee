package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestIdentityAllows(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		ask   string
		want  bool
	}{
		{"exact match", []string{RoleFinance}, RoleFinance, true},
		{"one of several", []string{RoleViewer, RoleFinance}, RoleFinance, true},
		{"admin passes any check", []string{RoleAdmin}, RoleFinance, true},
		{"missing role", []string{RoleViewer}, RoleCoordinator, false},
		{"no roles at all", nil, RoleViewer, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Identity{Subject: "u", Roles: tt.roles}
			if got := id.Allows(tt.ask); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.ask, got, tt.want)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		identity   *Identity
		required   []string
		wantStatus int // 0 means the handler should run
	}{
		{
			name:     "holder of required role",
			identity: &Identity{Subject: "c1", Roles: []string{RoleCoordinator}},
			required: []string{RoleCoordinator},
		},
		{
			name:     "any of the listed roles suffices",
			identity: &Identity{Subject: "f1", Roles: []string{RoleFinance}},
			required: []string{RoleCoordinator, RoleFinance},
		},
		{
			name:     "admin bypass",
			identity: &Identity{Subject: "a1", Roles: []string{RoleAdmin}},
			required: []string{RoleFinance},
		},
		{
			name:       "wrong role",
			identity:   &Identity{Subject: "v1", Roles: []string{RoleViewer}},
			required:   []string{RoleCoordinator},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "no identity on context",
			identity:   nil,
			required:   []string{RoleViewer},
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/income", nil)
			if tt.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), *tt.identity))
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			called := false
			h := RequireRole(tt.required...)(func(c echo.Context) error {
				called = true
				return c.NoContent(http.StatusOK)
			})
			err := h(c)

			if tt.wantStatus == 0 {
				if err != nil || !called {
					t.Fatalf("want handler to run, got err=%v called=%v", err, called)
				}
				return
			}
			if called {
				t.Fatal("handler ran despite missing role")
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("want *echo.HTTPError, got %T", err)
			}
			if httpErr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", httpErr.Code, tt.wantStatus)
			}
		})
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	id := Identity{Subject: "u-9", Site: "hillcrest", Roles: []string{RoleViewer}}
	ctx := WithIdentity(context.Background(), id)

	got, ok := IdentityFrom(ctx)
	if !ok {
		t.Fatal("identity not found on context")
	}
	if got.Subject != id.Subject || got.Site != id.Site {
		t.Errorf("got %+v, want %+v", got, id)
	}

	if _, ok := IdentityFrom(context.Background()); ok {
		t.Error("empty context reported an identity")
	}
}
