package bundle

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/termbridge/termbridge/internal/platform/auth"
	"github.com/termbridge/termbridge/internal/platform/fhir"
)

// Handler serves the bundle upload endpoint.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the bundle route on the FHIR group.
func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.POST("/Bundle", h.Upload)
}

// Upload handles POST /fhir/Bundle
func (h *Handler) Upload(c echo.Context) error {
	var raw map[string]interface{}
	if err := c.Bind(&raw); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}

	ctx := c.Request().Context()
	result, err := h.svc.Process(ctx, raw, auth.ActorFromContext(ctx))
	if err != nil {
		if errors.Is(err, ErrNotBundle) {
			return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome(err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, result)
}
