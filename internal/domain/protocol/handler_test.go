package protocol

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(newTestService())
	e := echo.New()
	return h, e
}

func TestHandler_CreateVisit(t *testing.T) {
	h, e := newTestHandler()

	body := `{"study":"S1","day":1,"visit_name":"Baseline","payment":"100"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/protocols", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateVisit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var v Visit
	json.Unmarshal(rec.Body.Bytes(), &v)
	if v.VisitName != "Baseline" || v.Pathway != "standard" {
		t.Errorf("created visit = %+v", v)
	}
}

func TestHandler_CreateVisit_BadRequest(t *testing.T) {
	h, e := newTestHandler()

	body := `{"day":1,"visit_name":"Baseline"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/protocols", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateVisit(c); err == nil {
		t.Error("expected error for missing study")
	}
}

func TestHandler_GetVisit(t *testing.T) {
	h, e := newTestHandler()

	v := &Visit{Study: "S1", Day: 1, VisitName: "Baseline"}
	h.svc.CreateVisit(nil, v)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(v.ID.String())

	if err := h.GetVisit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetVisit_NotFound(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetVisit(c); err == nil {
		t.Error("expected error for not found")
	}
}

func TestHandler_ListVisits_ByStudy(t *testing.T) {
	h, e := newTestHandler()

	h.svc.CreateVisit(nil, &Visit{Study: "S1", Day: 1, VisitName: "Baseline"})
	h.svc.CreateVisit(nil, &Visit{Study: "S2", Day: 1, VisitName: "Enrolment"})

	req := httptest.NewRequest(http.MethodGet, "/?study=S1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListVisits(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Data  []Visit `json:"data"`
		Total int     `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].Study != "S1" {
		t.Errorf("response = %+v, want only S1 rows", resp)
	}
}

func TestHandler_ValidateStudy(t *testing.T) {
	h, e := newTestHandler()

	h.svc.CreateVisit(nil, &Visit{Study: "S1", Day: 29, VisitName: "V2"})

	req := httptest.NewRequest(http.MethodGet, "/?study=S1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ValidateStudy(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Valid    bool      `json:"valid"`
		Problems []Problem `json:"problems"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Valid || len(resp.Problems) != 1 {
		t.Errorf("response = %+v, want the missing baseline flagged", resp)
	}
}

func TestHandler_ValidateStudy_RequiresStudy(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ValidateStudy(c); err == nil {
		t.Error("expected error for missing study parameter")
	}
}

func TestHandler_Import(t *testing.T) {
	h, e := newTestHandler()

	body := `{"rows":[
		{"study":"S1","day":1,"visit_name":"Baseline","payment":"£100"},
		{"study":"S1","day":29,"visit_name":"V2","tolerance_before":"junk"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/protocols/import", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Import(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var sum ImportSummary
	json.Unmarshal(rec.Body.Bytes(), &sum)
	if sum.Created != 2 || sum.DefaultedTolerances != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestHandler_Import_EmptyBody(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/protocols/import", strings.NewReader(`{"rows":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Import(c); err == nil {
		t.Error("expected error for empty rows")
	}
}

func TestHandler_DeleteVisit(t *testing.T) {
	h, e := newTestHandler()

	v := &Visit{Study: "S1", Day: 1, VisitName: "Baseline"}
	h.svc.CreateVisit(nil, v)

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(v.ID.String())

	if err := h.DeleteVisit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
