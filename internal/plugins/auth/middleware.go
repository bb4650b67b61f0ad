package auth

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/talentbridge/hrplatform/internal/apperror"
)

// contextKeyClaims stores verified access token claims in the Echo context.
const contextKeyClaims = "auth_claims"

// RequireAuth returns middleware that verifies the bearer access token and
// stores its claims for downstream handlers. Missing, malformed, or expired
// tokens get a 401.
func RequireAuth(service AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return unauthorized("Unauthorized")
			}

			claims, err := service.ParseAccessToken(token)
			if err != nil {
				if errors.Is(err, ErrExpiredAccessToken) {
					return unauthorized("Access token expired")
				}
				return unauthorized("Unauthorized")
			}

			c.Set(contextKeyClaims, claims)
			return next(c)
		}
	}
}

// RequireRole returns middleware that admits only the given roles. It must
// run after RequireAuth.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := GetClaims(c)
			if claims == nil {
				return unauthorized("Unauthorized")
			}
			for _, r := range roles {
				if claims.Role == r {
					return next(c)
				}
			}
			return apperror.NewForbidden("Insufficient permissions").WithReason(apperror.ReasonForbidden)
		}
	}
}

// GetClaims returns the verified access token claims, or nil when the route
// is not behind RequireAuth.
func GetClaims(c echo.Context) *Claims {
	claims, ok := c.Get(contextKeyClaims).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(message string) error {
	return apperror.NewUnauthorized(message).WithReason(apperror.ReasonUnauthorized)
}
