package routes

import (
	"net/http"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/handlers"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes. Per-endpoint-class rate
// limits and lockout are enforced by the auth service, not here.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *auth.TokenManager,
	metricsHandler http.Handler,
) {
	router.Get("/health", healthHandler.Health)
	if metricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	router.Route("/auth", func(r chi.Router) {
		// Public routes - no authentication required
		r.Post("/strength", authHandler.Strength)
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		// Protected routes - authentication required
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware(tokenManager))
			r.Post("/password", authHandler.ChangePassword)
		})
	})
}
