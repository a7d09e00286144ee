package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestTimeout_FastHandlerUnaffected(t *testing.T) {
	e := echo.New()
	e.Use(RequestTimeout(time.Second))
	e.GET("/quick", func(c echo.Context) error {
		return c.String(http.StatusOK, "done")
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/quick", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "done" {
		t.Errorf("got %d %q, want 200 done", rec.Code, rec.Body.String())
	}
}

func TestRequestTimeout_SlowHandlerGets504(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	e := echo.New()
	e.Use(RequestTimeout(20 * time.Millisecond))
	e.GET("/slow", func(c echo.Context) error {
		select {
		case <-c.Request().Context().Done():
		case <-release:
		}
		return nil
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/slow", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestRequestTimeout_HandlerSeesDeadline(t *testing.T) {
	e := echo.New()
	e.Use(RequestTimeout(time.Second))

	var hasDeadline bool
	e.GET("/d", func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return c.NoContent(http.StatusOK)
	})

	serve(e, httptest.NewRequest(http.MethodGet, "/d", nil))
	if !hasDeadline {
		t.Error("request context has no deadline")
	}
}

func TestRequestTimeout_ErrorsPropagate(t *testing.T) {
	e := echo.New()
	e.Use(RequestTimeout(time.Second))
	e.GET("/err", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "already recorded")
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/err", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestRequestTimeout_PanicsReachRecovery(t *testing.T) {
	// The handler runs on a worker goroutine; its panic must surface on
	// the request goroutine where Recovery can turn it into a 500.
	e := echo.New()
	e.Use(Recovery(zerolog.Nop()))
	e.Use(RequestTimeout(time.Second))
	e.GET("/panic", func(c echo.Context) error {
		panic(errors.New("bad row"))
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRequestTimeout_DisabledWhenNonPositive(t *testing.T) {
	e := echo.New()
	e.Use(RequestTimeout(0))

	var hasDeadline bool
	e.GET("/free", func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return c.NoContent(http.StatusOK)
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/free", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if hasDeadline {
		t.Error("deadline set despite zero timeout")
	}
}
