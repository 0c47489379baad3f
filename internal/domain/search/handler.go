package search

import (
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/labstack/echo/v4"

	"github.com/termbridge/termbridge/internal/domain/audit"
	"github.com/termbridge/termbridge/internal/domain/concept"
	"github.com/termbridge/termbridge/internal/platform/auth"
)

// Handler serves the lookup endpoints.
type Handler struct {
	svc          *Service
	audits       *audit.Service
	defaultLimit int
	maxLimit     int
}

// NewHandler creates the lookup handler. Non-positive limits fall back to
// 10 results by default, capped at 100.
func NewHandler(svc *Service, audits *audit.Service, defaultLimit, maxLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Handler{svc: svc, audits: audits, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// RegisterRoutes registers lookup routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/lookup")
	g.GET("/terms", h.SearchTerms)
	g.GET("/autocomplete", h.Autocomplete)
	g.GET("/suggestions", h.Suggestions)
}

func validQuery(q string) error {
	return validation.Validate(q, validation.Required, validation.Length(1, 200))
}

// SearchTerms handles GET /api/v1/lookup/terms?q=...&system=...&limit=...
func (h *Handler) SearchTerms(c echo.Context) error {
	query := c.QueryParam("q")
	if err := validQuery(query); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'q': "+err.Error())
	}

	system := c.QueryParam("system")
	switch system {
	case "", concept.SystemNAMASTE, concept.SystemICD11:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown system "+strconv.Quote(system))
	}

	limit := h.defaultLimit
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}

	ctx := c.Request().Context()
	results, err := h.svc.Search(ctx, query, system, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if results == nil {
		results = []*Result{}
	}

	h.audits.TryRecord(ctx, auth.ActorFromContext(ctx), audit.ActionSearch,
		audit.ResourceConcept, "", audit.Detail{"query": query, "system": system, "results": len(results)})

	return c.JSON(http.StatusOK, map[string]interface{}{
		"query":   query,
		"total":   len(results),
		"results": results,
	})
}

// Autocomplete handles GET /api/v1/lookup/autocomplete?q=...&limit=...
func (h *Handler) Autocomplete(c echo.Context) error {
	query := c.QueryParam("q")
	if err := validQuery(query); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'q': "+err.Error())
	}

	limit := 5
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > 20 {
		limit = 20
	}

	suggestions, err := h.svc.Autocomplete(c.Request().Context(), query, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if suggestions == nil {
		suggestions = []*Suggestion{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

// Suggestions handles GET /api/v1/lookup/suggestions?q=...
func (h *Handler) Suggestions(c echo.Context) error {
	query := c.QueryParam("q")
	if err := validQuery(query); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'q': "+err.Error())
	}

	suggestions, err := h.svc.Suggest(c.Request().Context(), query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"query":       query,
		"suggestions": suggestions,
	})
}
