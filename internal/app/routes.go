package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/talentbridge/hrplatform/internal/metrics"
	"github.com/talentbridge/hrplatform/internal/middleware"
	"github.com/talentbridge/hrplatform/internal/plugins/audit"
	"github.com/talentbridge/hrplatform/internal/plugins/auth"
	"github.com/talentbridge/hrplatform/internal/plugins/smtp"
)

// healthTimeout bounds each dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes wires the plugins and sets up all application routes.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// --- Operational Routes (no auth, outside the API prefix) ---
	e.GET("/healthz", a.healthz)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// --- Plugins ---

	// audit plugin: append-only security log.
	recorder := audit.NewRecorder(audit.NewAuditRepository(a.DB))

	// smtp plugin: verification emails.
	a.mailer = smtp.NewVerificationSender(
		smtp.NewMailService(a.Config.SMTP),
		a.Config.FrontendURL,
		a.Config.IsProduction(),
	)

	// auth plugin (core).
	authCfg := a.Config.Auth
	store := auth.NewCredentialStore(a.DB)
	secrets := auth.NewSecretGenerator(authCfg.BcryptCost, authCfg.VerificationTokenTTL, authCfg.RefreshTokenTTL)
	tokens := auth.NewTokenIssuer(authCfg.JWTSecret, authCfg.AccessTokenTTL, store, secrets)
	lockout := auth.NewLockoutPolicy(authCfg.MaxFailedAttempts, authCfg.LockoutDuration)
	authService := auth.NewAuthService(
		store,
		auth.NewClientFinder(a.DB),
		secrets,
		tokens,
		lockout,
		recorder,
		a.mailer,
	)

	api := e.Group("/" + a.Config.APIPrefix)
	auth.RegisterRoutes(api.Group("/auth"), auth.NewHandler(authService), authService, middleware.NewRateLimiter(a.Redis))
}

// healthz reports whether MariaDB and Redis are reachable.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	checks := map[string]string{"database": "ok", "redis": "ok"}
	healthy := true

	if err := a.DB.PingContext(ctx); err != nil {
		checks["database"] = "unavailable"
		healthy = false
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unavailable"
		healthy = false
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{"status": status, "checks": checks})
}
