package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pushgateway/internal/handler"
	"pushgateway/internal/httputil"
	authmw "pushgateway/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	FeatureFlagHandler *handler.FeatureFlagHandler
	DeviceTokenHandler *handler.DeviceTokenHandler
	JWTSecret          string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Operator endpoints - authenticated per request by token allow-list
	r.Route("/v1/featureflag", func(r chi.Router) {
		r.Put("/{flag}", cfg.FeatureFlagHandler.Set)
		r.Delete("/{flag}", cfg.FeatureFlagHandler.Delete)
	})

	// Device endpoints - require device authentication
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

		r.Put("/v1/accounts/apn", cfg.DeviceTokenHandler.SetApnTokens)
		r.Delete("/v1/accounts/apn", cfg.DeviceTokenHandler.DeleteApnTokens)
		r.Put("/v1/accounts/gcm", cfg.DeviceTokenHandler.SetGcmToken)
		r.Delete("/v1/accounts/gcm", cfg.DeviceTokenHandler.DeleteGcmToken)

		r.Put("/v1/messages/retrieved", cfg.DeviceTokenHandler.MessagesRetrieved)
	})

	return r
}
