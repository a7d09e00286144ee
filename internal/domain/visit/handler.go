package visit

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
	read.GET("/visits", h.ListVisits)
	read.GET("/visits/:id", h.GetVisit)
	read.GET("/study-events", h.ListEvents)
	read.GET("/study-events/:id", h.GetEvent)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleCoordinator))
	write.POST("/visits", h.CreateVisit)
	write.PATCH("/visits/:id/type", h.Reclassify)
	write.DELETE("/visits/:id", h.DeleteVisit)
	write.POST("/study-events", h.CreateEvent)
	write.PUT("/study-events/:id", h.UpdateEvent)
	write.DELETE("/study-events/:id", h.DeleteEvent)
}

func (h *Handler) CreateVisit(c echo.Context) error {
	var v ActualVisit
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
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVisits(c echo.Context) error {
	ctx := c.Request().Context()
	if study := c.QueryParam("study"); study != "" {
		if patientID := c.QueryParam("patient_id"); patientID != "" {
			visits, err := h.svc.ListVisitsByPatient(ctx, study, patientID)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			return c.JSON(http.StatusOK, pagination.NewResponse(visits, len(visits), len(visits), 0))
		}
		visits, err := h.svc.ListVisitsByStudy(ctx, study)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(visits, len(visits), len(visits), 0))
	}

	pg := pagination.FromContext(c)
	visits, total, err := h.svc.ListVisits(ctx, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(visits, total, pg.Limit, pg.Offset))
}

func (h *Handler) Reclassify(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		VisitType string `json:"visit_type"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.Reclassify(c.Request().Context(), id, body.VisitType)
	if err != nil {
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

func (h *Handler) CreateEvent(c echo.Context) error {
	var e StudyEvent
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateEvent(c.Request().Context(), &e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.GetEvent(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "study event not found")
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListEvents(c echo.Context) error {
	ctx := c.Request().Context()
	if study := c.QueryParam("study"); study != "" {
		events, err := h.svc.ListEventsByStudy(ctx, study)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(events, len(events), len(events), 0))
	}

	pg := pagination.FromContext(c)
	events, total, err := h.svc.ListEvents(ctx, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var e StudyEvent
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.UpdateEvent(c.Request().Context(), id, &e)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteEvent(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
