package scheduling

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trialcal/trialcal/internal/platform/auth"
	"github.com/trialcal/trialcal/internal/schedule"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleCoordinator, auth.RoleFinance, auth.RoleViewer))
	read.GET("/schedule", h.BuildSchedule)
	read.GET("/calendar", h.BuildCalendar)

	// Money reports are for the finance role only.
	finance := api.Group("", auth.RequireRole(auth.RoleFinance))
	finance.GET("/reports/income", h.IncomeReport)
	finance.GET("/reports/profit-share", h.ProfitShareReport)
}

func (h *Handler) BuildSchedule(c echo.Context) error {
	resp, err := h.svc.BuildSchedule(c.Request().Context(), c.QueryParam("study"), c.QueryParam("patient_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) BuildCalendar(c echo.Context) error {
	grid, err := h.svc.BuildCalendar(c.Request().Context(), c.QueryParam("study"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, grid)
}

func (h *Handler) IncomeReport(c echo.Context) error {
	period := schedule.PeriodKind(c.QueryParam("period"))
	if period != "" && !validPeriods[period] {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid period; want month, quarter or financial_year")
	}
	groupBy := schedule.GroupBy(c.QueryParam("group_by"))
	if groupBy != "" && !validGroups[groupBy] {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid group_by; want site or study")
	}

	resp, err := h.svc.IncomeReport(c.Request().Context(), c.QueryParam("study"), period, groupBy)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ProfitShareReport(c echo.Context) error {
	var overrides ProfitShareOverrides
	overrides.SiteA = c.QueryParam("site_a")
	overrides.SiteB = c.QueryParam("site_b")

	// An absent parameter stays nil so it cannot clobber a configured value;
	// an explicit 0 is a real override.
	for param, dst := range map[string]**int{
		"list_size_a":        &overrides.ListSizeA,
		"list_size_b":        &overrides.ListSizeB,
		"list_size_weight":   &overrides.ListSizeWeight,
		"work_done_weight":   &overrides.WorkDoneWeight,
		"recruitment_weight": &overrides.RecruitmentWeight,
	} {
		raw := c.QueryParam(param)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, param+" must be a non-negative integer")
		}
		*dst = &n
	}

	share, err := h.svc.ProfitShareReport(c.Request().Context(), overrides)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, share)
}

// httpError maps service failures: protocol data problems are the caller's
// to fix, a missing report configuration is a bad request, anything else is
// a server fault.
func httpError(err error) error {
	switch {
	case errors.Is(err, schedule.ErrNoBaselineVisit), errors.Is(err, schedule.ErrDuplicateBaselineVisit):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrProfitShareUnconfigured):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
