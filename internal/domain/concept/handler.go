package concept

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/termbridge/termbridge/internal/platform/fhir"
	"github.com/termbridge/termbridge/pkg/pagination"
)

// Handler serves the CodeSystem endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers CodeSystem routes on the API and FHIR groups.
func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	fhirGroup.GET("/CodeSystem/namaste", h.GetCodeSystem)
	fhirGroup.GET("/CodeSystem/namaste/:code", h.GetConcept)
	api.GET("/codesystems", h.ListSystems)
}

// GetCodeSystem handles GET /fhir/CodeSystem/namaste?_count=...&_offset=...
func (h *Handler) GetCodeSystem(c echo.Context) error {
	p := pagination.FromContext(c)
	cs, err := h.svc.CodeSystem(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, cs)
}

// GetConcept handles GET /fhir/CodeSystem/namaste/:code
func (h *Handler) GetConcept(c echo.Context) error {
	code := c.Param("code")
	concept, err := h.svc.GetByCode(c.Request().Context(), SystemNAMASTE, code)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	if concept == nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("CodeSystem concept", code))
	}
	return c.JSON(http.StatusOK, concept)
}

// ListSystems handles GET /api/v1/codesystems
func (h *Handler) ListSystems(c echo.Context) error {
	systems, err := h.svc.Systems(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if systems == nil {
		systems = []*SystemSummary{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"systems": systems})
}
