package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unifra/unifra-auth/internal/http/features/guest"
	"github.com/unifra/unifra-auth/internal/http/features/me"
	"github.com/unifra/unifra-auth/internal/http/features/oauth"
	"github.com/unifra/unifra-auth/internal/http/features/password"
	"github.com/unifra/unifra-auth/internal/http/features/session"
	"github.com/unifra/unifra-auth/internal/http/features/username"
	"github.com/unifra/unifra-auth/internal/http/middleware"
	"github.com/unifra/unifra-auth/internal/httputil"
	"github.com/unifra/unifra-auth/pkg/auth"
)

// maxRequestBodySize caps request bodies; every endpoint takes small JSON.
const maxRequestBodySize = 1 << 20 // 1 MB

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger            *slog.Logger
	AuthService       *auth.AuthService
	ResetService      *auth.ResetService
	SessionService    *auth.SessionService
	Registry          *auth.UsernameRegistry
	Accounts          me.AccountStore
	SecurityHeaders   middleware.SecurityHeadersConfig
	DisableRateLimits bool
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(maxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limit := func(requests int, window time.Duration) func(http.Handler) http.Handler {
		if cfg.DisableRateLimits {
			return middleware.NoRateLimit()
		}
		return middleware.RateLimit(middleware.RateLimitConfig{
			Requests: requests,
			Window:   window,
			Logger:   cfg.Logger,
		})
	}
	authLimit := limit(10, time.Minute)
	resetLimit := limit(5, 15*time.Minute)
	refreshLimit := limit(60, time.Minute)
	checkLimit := limit(30, time.Minute)
	profileLimit := limit(60, time.Minute)

	requireAuth := middleware.Auth(cfg.SessionService)

	passwordHandler := password.NewHandler(cfg.Logger, cfg.AuthService, cfg.ResetService, cfg.SessionService)
	r.Group(func(r chi.Router) {
		r.Use(authLimit)
		r.Post("/auth/register", passwordHandler.Register)
		r.Post("/auth/login", passwordHandler.Login)
	})
	r.Group(func(r chi.Router) {
		r.Use(resetLimit)
		r.Post("/auth/forgot-password", passwordHandler.ForgotPassword)
		r.Post("/auth/verify-otp", passwordHandler.VerifyOTP)
		r.Post("/auth/reset-password", passwordHandler.ResetPassword)
	})

	guestHandler := guest.NewHandler(cfg.Logger, cfg.AuthService, cfg.SessionService)
	r.With(authLimit).Post("/auth/guest", guestHandler.Create)
	r.With(requireAuth, authLimit).Post("/auth/convert-guest", guestHandler.Convert)

	usernameHandler := username.NewHandler(cfg.Logger, cfg.Registry)
	r.With(checkLimit).Get("/auth/check-username", usernameHandler.Check)

	oauthHandler := oauth.NewHandler(cfg.Logger, cfg.AuthService, cfg.SessionService)
	r.With(authLimit).Post("/auth/oauth/{provider}", oauthHandler.Exchange)

	sessionHandler := session.NewHandler(cfg.Logger, cfg.SessionService)
	r.With(refreshLimit).Post("/auth/refresh", sessionHandler.Refresh)
	r.Post("/auth/logout", sessionHandler.Logout)
	r.With(requireAuth).Post("/auth/logout/all", sessionHandler.LogoutAll)

	meHandler := me.NewHandler(cfg.Logger, cfg.Accounts)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(profileLimit)
		r.Get("/auth/me", meHandler.GetMe)
		r.Patch("/auth/me", meHandler.UpdateMe)
	})

	return r
}
