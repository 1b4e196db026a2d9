package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/seopulse/seopulse/internal/config"
	"github.com/seopulse/seopulse/internal/credentials"
	"github.com/seopulse/seopulse/internal/database"
	"github.com/seopulse/seopulse/internal/events"
	"github.com/seopulse/seopulse/internal/metrics"
	"github.com/seopulse/seopulse/internal/notification"
	"github.com/seopulse/seopulse/internal/oauth"
	appsync "github.com/seopulse/seopulse/internal/sync"
)

// NewRouter creates a new HTTP router
func NewRouter(cfg *config.Config, db *gorm.DB, store *database.Store, creds credentials.Store, registry *oauth.Registry, orch *appsync.Orchestrator, hub *events.Hub, dispatcher *notification.Dispatcher) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(SecurityHeadersMiddleware(cfg))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limit, with a tighter budget on auth endpoints
	limiter := NewRateLimiter(rate.Limit(20), 40)
	limiter.CleanupOldLimiters()
	authLimiter := NewRateLimiter(rate.Limit(1), 5)
	authLimiter.CleanupOldLimiters()
	r.Use(RateLimitMiddleware(limiter))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Auth routes
		r.Group(func(r chi.Router) {
			r.Use(StrictRateLimitMiddleware(authLimiter))
			r.Post("/auth/login", HandleLogin(db, cfg))
			r.Post("/auth/setup", HandleSetup(db, cfg))
		})
		r.Post("/auth/logout", HandleLogout())
		r.Get("/auth/setup-status", HandleGetSetupStatus(db))

		// OAuth callback arrives from the provider without our JWT
		r.Get("/integrations/{provider}/callback", HandleIntegrationCallback(store, creds, registry, cfg))

		// Sync trigger for external schedulers and CLI tooling
		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuthMiddleware(db))
			r.Post("/sync/{provider}", HandleTriggerSync(orch))
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret, db))

			// User routes
			r.Get("/user/me", HandleGetCurrentUser(db))

			// Integration routes
			r.Get("/integrations/status", HandleIntegrationStatus(store, creds, registry))
			r.Get("/integrations/{provider}/authorize", HandleAuthorizeIntegration(store, registry, cfg))
			r.Post("/integrations/{provider}/sync", HandleTriggerSync(orch))
			r.Put("/integrations/gsc/site", HandleSetGscSite(store))
			r.Put("/integrations/ga4/property", HandleSetGa4Property(store))

			// Notification routes
			r.Get("/notifications", HandleGetNotifications(db))
			r.Post("/notifications", HandleCreateNotification(db))
			r.Get("/notifications/providers", HandleGetAvailableProviders())
			r.Get("/notifications/{id}", HandleGetNotification(db))
			r.Put("/notifications/{id}", HandleUpdateNotification(db))
			r.Delete("/notifications/{id}", HandleDeleteNotification(db))
			r.Post("/notifications/{id}/test", HandleTestNotification(db, dispatcher))

			// API Key routes
			r.Get("/api-keys", HandleGetAPIKeys(db))
			r.Post("/api-keys", HandleCreateAPIKey(db))
			r.Delete("/api-keys/{id}", HandleDeleteAPIKey(db))
		})
	})

	// Prometheus metrics endpoint (no auth required)
	r.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint
	r.Get("/ws", hub.HandleWebSocket)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
