package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/talentbridge/hrplatform/internal/apperror"
)

// Handler handles the /auth HTTP endpoints. Handlers are thin: they bind and
// validate the body, call the service, and render JSON.
type Handler struct {
	service AuthService
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService) *Handler {
	return &Handler{service: service}
}

// validatable is implemented by every request DTO.
type validatable interface {
	Validate() error
}

// bind decodes the JSON body into req and validates it.
func bind(c echo.Context, req validatable) error {
	if err := c.Bind(req); err != nil {
		return apperror.NewBadRequest("Invalid request body").WithReason(apperror.ReasonValidationFailed)
	}
	return req.Validate()
}

func requestMeta(c echo.Context) RequestMeta {
	return RequestMeta{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

// Register creates an account on behalf of an admin (POST /auth/register).
func (h *Handler) Register(c echo.Context) error {
	claims := GetClaims(c)
	if claims == nil {
		return apperror.NewMissingContext()
	}

	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.service.Register(c.Request().Context(), req, claims.UserID(), requestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// Signup is public self-registration (POST /auth/signup).
func (h *Handler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.service.Signup(c.Request().Context(), req, requestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// VerifyEmail consumes a verification token (POST /auth/verify-email).
func (h *Handler) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.service.VerifyEmail(c.Request().Context(), req.Token, requestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// ResendVerification re-sends the verification link (POST /auth/resend-verification).
func (h *Handler) ResendVerification(c echo.Context) error {
	var req ResendVerificationRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.service.ResendVerification(c.Request().Context(), req.Email, requestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Login authenticates with email and password (POST /auth/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.service.Login(c.Request().Context(), req, requestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Refresh exchanges a refresh token for an access token (POST /auth/refresh).
func (h *Handler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.service.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Logout revokes all of the caller's refresh tokens (POST /auth/logout).
func (h *Handler) Logout(c echo.Context) error {
	claims := GetClaims(c)
	if claims == nil {
		return apperror.NewMissingContext()
	}

	result, err := h.service.Logout(c.Request().Context(), claims.UserID(), requestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Me returns the caller's account (GET /auth/me).
func (h *Handler) Me(c echo.Context) error {
	claims := GetClaims(c)
	if claims == nil {
		return apperror.NewMissingContext()
	}

	me, err := h.service.GetCurrentUser(c.Request().Context(), claims.UserID())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, me)
}
