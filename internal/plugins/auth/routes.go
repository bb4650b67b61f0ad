package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/talentbridge/hrplatform/internal/middleware"
)

// Access describes who may call a route.
type Access struct {
	Authenticated bool
	Roles         []Role
}

var (
	// Public routes need no access token.
	Public = Access{}
	// Authenticated routes need a valid access token of any role.
	Authenticated = Access{Authenticated: true}
)

// Roles restricts a route to callers holding one of the given roles.
func Roles(roles ...Role) Access {
	return Access{Authenticated: true, Roles: roles}
}

// Per-IP rate limits for the unauthenticated write endpoints.
var (
	SignupLimit = middleware.RateRule{Name: "signup", Limit: 5, Window: time.Minute}
	ResendLimit = middleware.RateRule{Name: "resend_verification", Limit: 3, Window: 5 * time.Minute}
	LoginLimit  = middleware.RateRule{Name: "login", Limit: 10, Window: time.Minute}
)

// Route is one entry of the auth route table.
type Route struct {
	Method  string
	Path    string
	Handler echo.HandlerFunc
	Access  Access
	Limit   *middleware.RateRule
}

// Routes returns the auth route table. Paths are relative to the group the
// table is mounted on.
func Routes(h *Handler) []Route {
	return []Route{
		{Method: echo.POST, Path: "/register", Handler: h.Register, Access: Roles(RoleAdmin)},
		{Method: echo.POST, Path: "/signup", Handler: h.Signup, Access: Public, Limit: &SignupLimit},
		{Method: echo.POST, Path: "/verify-email", Handler: h.VerifyEmail, Access: Public},
		{Method: echo.POST, Path: "/resend-verification", Handler: h.ResendVerification, Access: Public, Limit: &ResendLimit},
		{Method: echo.POST, Path: "/login", Handler: h.Login, Access: Public, Limit: &LoginLimit},
		{Method: echo.POST, Path: "/refresh", Handler: h.Refresh, Access: Public},
		{Method: echo.POST, Path: "/logout", Handler: h.Logout, Access: Authenticated},
		{Method: echo.GET, Path: "/me", Handler: h.Me, Access: Authenticated},
	}
}

// RegisterRoutes mounts the auth route table on g. Rate limiting runs before
// authentication so rejected floods never reach token parsing. A nil limiter
// disables rate limiting.
func RegisterRoutes(g *echo.Group, h *Handler, service AuthService, limiter *middleware.RateLimiter) {
	for _, r := range Routes(h) {
		var mw []echo.MiddlewareFunc
		if r.Limit != nil && limiter != nil {
			mw = append(mw, limiter.Middleware(*r.Limit))
		}
		if r.Access.Authenticated {
			mw = append(mw, RequireAuth(service))
		}
		if len(r.Access.Roles) > 0 {
			mw = append(mw, RequireRole(r.Access.Roles...))
		}
		g.Add(r.Method, r.Path, r.Handler, mw...)
	}
}
