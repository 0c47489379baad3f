package mapping

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/labstack/echo/v4"

	"github.com/termbridge/termbridge/internal/domain/audit"
	"github.com/termbridge/termbridge/internal/platform/auth"
	"github.com/termbridge/termbridge/internal/platform/fhir"
	"github.com/termbridge/termbridge/pkg/pagination"
)

// Handler serves the translate and mapping-curation endpoints.
type Handler struct {
	svc    *Service
	audits *audit.Service
}

func NewHandler(svc *Service, audits *audit.Service) *Handler {
	return &Handler{svc: svc, audits: audits}
}

// RegisterRoutes registers mapping routes on the API and FHIR groups.
func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	fhirGroup.POST("/ConceptMap/$translate", h.Translate)
	fhirGroup.GET("/ConceptMap/$translate", h.Translate)
	fhirGroup.GET("/ConceptMap", h.ConceptMaps)

	g := api.Group("/mappings")
	g.POST("", h.AddMapping)
	g.GET("", h.List)
	g.GET("/statistics", h.Statistics)
}

// Translate handles GET/POST /fhir/ConceptMap/$translate. GET reads system
// and code from the query string, POST from the JSON body.
func (h *Handler) Translate(c echo.Context) error {
	req := TranslateRequest{
		System: c.QueryParam("system"),
		Code:   c.QueryParam("code"),
	}
	if c.Request().Method == http.MethodPost {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
		}
	}
	if err := req.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome(err.Error()))
	}

	ctx := c.Request().Context()
	candidates, err := h.svc.Translate(ctx, req.System, req.Code)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	h.audits.TryRecord(ctx, auth.ActorFromContext(ctx), audit.ActionTranslate,
		audit.ResourceConceptMap, req.System+"|"+req.Code,
		audit.Detail{"candidates": len(candidates)})

	return c.JSON(http.StatusOK, translateParameters(candidates))
}

// translateParameters renders candidates as a FHIR $translate Parameters
// response. No candidates is result=false, not an error.
func translateParameters(candidates []*TranslationCandidate) *fhir.Parameters {
	result := len(candidates) > 0
	params := []fhir.Parameter{{Name: "result", ValueBoolean: &result}}

	for _, cand := range candidates {
		confidence := cand.Confidence
		parts := []fhir.Parameter{
			{Name: "equivalence", ValueCode: cand.Equivalence},
			{Name: "concept", ValueCoding: &fhir.Coding{
				System:  SystemURI(cand.TargetSystem),
				Code:    cand.TargetCode,
				Display: cand.TargetDisplay,
			}},
			{Name: "confidence", ValueDecimal: &confidence},
		}
		if cand.Method != "" {
			parts = append(parts, fhir.Parameter{Name: "method", ValueString: cand.Method})
		}
		params = append(params, fhir.Parameter{Name: "match", Part: parts})
	}
	return fhir.NewParameters(params)
}

// ConceptMaps handles GET /fhir/ConceptMap
func (h *Handler) ConceptMaps(c echo.Context) error {
	p := pagination.FromContext(c)
	bundle, err := h.svc.ConceptMapBundle(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}

// AddMapping handles POST /api/v1/mappings
func (h *Handler) AddMapping(c echo.Context) error {
	var req AddMappingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	if req.Curator == "" {
		req.Curator = auth.ActorFromContext(ctx)
	}

	added, err := h.svc.AddMapping(ctx, &req)
	if err != nil {
		var vErrs validation.Errors
		if errors.As(err, &vErrs) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if !added {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"added":   false,
			"message": "mapping already exists",
		})
	}

	h.audits.TryRecord(ctx, auth.ActorFromContext(ctx), audit.ActionCreate,
		audit.ResourceMapping, req.SourceSystem+"|"+req.SourceCode,
		audit.Detail{"target": req.TargetSystem + "|" + req.TargetCode})

	return c.JSON(http.StatusCreated, map[string]interface{}{"added": true})
}

// List handles GET /api/v1/mappings?source_system=...&target_system=...
func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	f := ListFilter{
		SourceSystem: c.QueryParam("source_system"),
		TargetSystem: c.QueryParam("target_system"),
		Limit:        p.Limit,
		Offset:       p.Offset,
	}
	mappings, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":    total,
		"mappings": mappings,
	})
}

// Statistics handles GET /api/v1/mappings/statistics
func (h *Handler) Statistics(c echo.Context) error {
	stats, err := h.svc.Statistics(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
