package account

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wellness/portal/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the auth routes on g. requireToken guards /me.
func (h *Handler) RegisterRoutes(g *echo.Group, requireToken echo.MiddlewareFunc) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.GET("/me", h.Me, requireToken)
}

type registerRequest struct {
	FullName         string `json:"fullName" validate:"notblank,min=3,max=100"`
	Email            string `json:"email" validate:"required,email,max=254"`
	Password         string `json:"password" validate:"required,min=6,max=72"`
	MobileNumber     string `json:"mobileNumber,omitempty" validate:"omitempty,numeric,len=10"`
	DOB              string `json:"dob,omitempty"`
	Gender           string `json:"gender,omitempty" validate:"omitempty,oneof=Male Female Other"`
	Address          string `json:"address,omitempty" validate:"max=500"`
	BloodGroup       string `json:"bloodGroup,omitempty" validate:"max=10"`
	MaritalStatus    string `json:"maritalStatus,omitempty" validate:"max=50"`
	EmergencyContact string `json:"emergencyContact,omitempty" validate:"omitempty,numeric,len=10"`
	Consent          bool   `json:"consent"`
	Role             string `json:"role,omitempty" validate:"omitempty,oneof=patient provider"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerResponse struct {
	Message string     `json:"message"`
	User    PublicUser `json:"user"`
}

type loginResponse struct {
	Message string     `json:"message"`
	Token   string     `json:"token"`
	User    PublicUser `json:"user"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	dob, err := parseDOB(req.DOB)
	if err != nil {
		return httpError(err)
	}

	u, err := h.svc.Register(c.Request().Context(), Registration{
		FullName:         req.FullName,
		Email:            req.Email,
		Password:         req.Password,
		MobileNumber:     req.MobileNumber,
		DOB:              dob,
		Gender:           req.Gender,
		Address:          req.Address,
		BloodGroup:       req.BloodGroup,
		MaritalStatus:    req.MaritalStatus,
		EmergencyContact: req.EmergencyContact,
		Consent:          req.Consent,
		Role:             req.Role,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, registerResponse{Message: "User registered", User: u.Public()})
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	token, u, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loginResponse{Message: "Login successful", Token: token, User: u.Public()})
}

func (h *Handler) Me(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	u, err := h.svc.Me(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u.Public())
}

// parseDOB accepts a calendar date or an RFC 3339 timestamp.
func parseDOB(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, invalid("dob", "dob must be a date (YYYY-MM-DD)")
}

func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Message)
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, "Email already registered")
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
