package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler serves the audit trail query endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers audit routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/audit")
	g.GET("", h.Query)
	g.GET("/statistics", h.Statistics)
}

// Query handles GET /api/v1/audit?actor=...&action=...&resource_type=...&limit=...
func (h *Handler) Query(c echo.Context) error {
	f := Filter{
		Actor:        c.QueryParam("actor"),
		Action:       c.QueryParam("action"),
		ResourceType: c.QueryParam("resource_type"),
		ResourceID:   c.QueryParam("resource_id"),
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		f.Limit = v
	}

	records, err := h.svc.Query(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if records == nil {
		records = []*Record{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":   len(records),
		"records": records,
	})
}

// Statistics handles GET /api/v1/audit/statistics
func (h *Handler) Statistics(c echo.Context) error {
	stats, err := h.svc.Statistics(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
