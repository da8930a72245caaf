package handler

import (
	"encoding/json"
	"net/http"

	"github.com/closemarketing/go-checkout-links/pkg/config"
	"github.com/closemarketing/go-checkout-links/pkg/ports"
)

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, links ports.LinkService, resolve ports.ResolveService, conversions ports.ConversionService, jwtSecret []byte) http.Handler {
	isProduction := cfg.AppEnv == "production"

	h := NewHTTPHandler(links, conversions, jwtSecret, isProduction)
	rh := NewResolveHandler(resolve, jwtSecret, isProduction)

	mw := NewMiddleware(cfg)
	authHandler := NewAuthHandler(cfg)

	mux := http.NewServeMux()

	// Public Routes
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		res := map[string]string{
			"message": "ok",
		}
		_ = json.NewEncoder(w).Encode(&res)
	})
	mux.HandleFunc("GET /"+cfg.LinkPrefix+"/{token}", rh.Jump)
	mux.HandleFunc("GET /auth/google/login", authHandler.Login)
	mux.HandleFunc("GET /auth/google/callback", authHandler.Callback)
	mux.HandleFunc("GET /auth/logout", authHandler.Logout)

	// Order-lifecycle hooks fired by the storefront during the shopper's
	// request cycle; they need the shopper's cookies, so no admin auth.
	mux.HandleFunc("POST /orders/{orderID}/placed", h.OrderPlaced)
	mux.HandleFunc("POST /orders/{orderID}/events/{event}", h.OrderEvent)

	// Protected Routes (admin API)
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /api/v1/links", h.Create)
	protectedMux.HandleFunc("GET /api/v1/links", h.List)
	protectedMux.HandleFunc("GET /api/v1/links/{id}", h.Get)
	protectedMux.HandleFunc("POST /api/v1/links/{id}/toggle", h.Toggle)
	protectedMux.HandleFunc("DELETE /api/v1/links/{id}", h.Delete)
	protectedMux.HandleFunc("GET /api/v1/stats", h.Stats)

	mux.Handle("/api/v1/", mw.AuthMiddleware(protectedMux))

	return mux
}
