package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-restaurant-api/internal/config"
	"github.com/go-restaurant-api/internal/domain"
	"github.com/go-restaurant-api/internal/transport/http/handler"
	appmiddleware "github.com/go-restaurant-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// router's background work (rate limiter cleanup).
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10, on the public account endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	var connections func() int
	if deps.Realtime != nil {
		connections = deps.Realtime.Len
	}
	healthH := handler.NewHealthHandler(connections)
	authH := handler.NewAuthHandler(deps.Auth)
	approvalH := handler.NewApprovalHandler(deps.Approvals)
	dashboardH := handler.NewDashboardHandler(deps.Dashboard)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes ────────────────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		if deps.Realtime != nil {
			r.Get("/ws", deps.Realtime.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)

			r.Post("/signup", authH.Signup)
			r.Post("/send-verification-code", authH.SendVerificationCode)
			r.Post("/verify-code", authH.VerifyCode)
			r.Post("/login", authH.Login)
			r.Post("/send-password-reset-code", authH.SendPasswordResetCode)
			r.Post("/verify-reset-code", authH.VerifyResetCode)
			r.Post("/reset-password", authH.ResetPassword)
		})

		// ── Admin routes ─────────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

			r.Post("/approve-login", approvalH.Decide)
			r.Post("/admin/dashboard/seen", dashboardH.MarkSeen)
			r.Get("/admin/dashboard/unseen", dashboardH.Unseen)
		})
	})

	return r
}
