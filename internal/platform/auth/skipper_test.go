package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/", false},
		{"/health/extra", false},
		{"/api/v1/patients", false},
		{"/api/v1/reports/income", false},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath(tt.path)

			if got := AuthSkipper(c); got != tt.want {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
