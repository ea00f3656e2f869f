package patient

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/wellness/portal/internal/platform/auth"
	"github.com/wellness/portal/internal/platform/middleware"
	"github.com/wellness/portal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the patient routes on api. Roles are checked per
// route so sibling groups under the same prefix do not interfere.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := auth.RequireRole(auth.RoleProvider, auth.RolePatient)
	write := auth.RequireRole(auth.RoleProvider)

	api.GET("/patients", h.ListPatients, read)
	api.GET("/patients/:id", h.GetPatient, read)
	api.POST("/patients/:id/compliance-notes", h.AddComplianceNote, write)
	api.POST("/compliance-notes", h.AddComplianceNoteByBody, write)
}

type noteRequest struct {
	Note      string `json:"note" validate:"notblank,max=5000"`
	CreatedBy string `json:"createdBy,omitempty" validate:"omitempty,max=200"`
}

type noteByBodyRequest struct {
	PatientID string `json:"patientId" validate:"notblank"`
	Note      string `json:"note" validate:"notblank,max=5000"`
	CreatedBy string `json:"createdBy,omitempty" validate:"omitempty,max=200"`
}

func (h *Handler) ListPatients(c echo.Context) error {
	compliance, err := ParseComplianceFilter(c.QueryParam("compliance"))
	if err != nil {
		return httpError(err)
	}
	pg, err := pagination.FromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	patients, err := h.svc.ListPatients(c.Request().Context(), ListFilter{
		Search:     c.QueryParam("search"),
		Compliance: compliance,
		Limit:      pg.Limit,
		Offset:     pg.Offset,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SerializeAll(patients))
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, Serialize(p))
}

func (h *Handler) AddComplianceNote(c echo.Context) error {
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	return h.appendNote(c, c.Param("id"), req.Note, req.CreatedBy)
}

func (h *Handler) AddComplianceNoteByBody(c echo.Context) error {
	var req noteByBodyRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	c.Set(middleware.AuditPatientKey, req.PatientID)
	return h.appendNote(c, req.PatientID, req.Note, req.CreatedBy)
}

func (h *Handler) appendNote(c echo.Context, patientID, note, createdBy string) error {
	stored, err := h.svc.AddComplianceNote(c.Request().Context(), patientID, note, createdBy)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, SerializeNote(strings.TrimSpace(patientID), stored))
}

// httpError maps domain errors to responses. Anything unrecognised is a
// server fault whose detail stays in the log.
func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrInvalidID):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Message)
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, "Patient email already exists")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
