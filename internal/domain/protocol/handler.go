package protocol

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/trialcal/trialcal/internal/platform/auth"
	"github.com/trialcal/trialcal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleCoordinator, auth.RoleFinance, auth.RoleViewer))
	read.GET("/protocols", h.ListVisits)
	read.GET("/protocols/studies", h.Studies)
	read.GET("/protocols/validate", h.ValidateStudy)
	read.GET("/protocols/:id", h.GetVisit)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleCoordinator))
	write.POST("/protocols", h.CreateVisit)
	write.POST("/protocols/import", h.Import)
	write.PUT("/protocols/:id", h.UpdateVisit)
	write.DELETE("/protocols/:id", h.DeleteVisit)
}

func (h *Handler) CreateVisit(c echo.Context) error {
	var v Visit
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateVisit(c.Request().Context(), &v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.GetVisit(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "protocol visit not found")
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVisits(c echo.Context) error {
	if study := c.QueryParam("study"); study != "" {
		visits, err := h.svc.ListByStudy(c.Request().Context(), study)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(visits, len(visits), len(visits), 0))
	}

	pg := pagination.FromContext(c)
	visits, total, err := h.svc.ListVisits(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(visits, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var v Visit
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v.ID = id
	if err := h.svc.UpdateVisit(c.Request().Context(), &v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) DeleteVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteVisit(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Studies(c echo.Context) error {
	studies, err := h.svc.Studies(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"studies": studies})
}

func (h *Handler) ValidateStudy(c echo.Context) error {
	study := c.QueryParam("study")
	if study == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "study query parameter is required")
	}
	problems, err := h.svc.ValidateStudy(c.Request().Context(), study)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"study":    study,
		"valid":    len(problems) == 0,
		"problems": problems,
	})
}

func (h *Handler) Import(c echo.Context) error {
	var body struct {
		Rows []ImportRow `json:"rows"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(body.Rows) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "rows is required")
	}
	sum, err := h.svc.Import(c.Request().Context(), body.Rows)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, sum)
}
