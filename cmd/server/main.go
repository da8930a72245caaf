package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/closemarketing/go-checkout-links/pkg/adapters/cart"
	"github.com/closemarketing/go-checkout-links/pkg/adapters/handler"
	"github.com/closemarketing/go-checkout-links/pkg/adapters/repository/sqlite"
	"github.com/closemarketing/go-checkout-links/pkg/adapters/session"
	"github.com/closemarketing/go-checkout-links/pkg/config"
	"github.com/closemarketing/go-checkout-links/pkg/core/services"
	"github.com/closemarketing/go-checkout-links/pkg/core/token"
	"github.com/closemarketing/go-checkout-links/pkg/ports"
)

func main() {
	cfg := config.Load()

	// Initialize Repository
	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// The signing secret is generated once and persisted; it backs legacy
	// token verification and the attribution cookie.
	secret, err := repo.SecretKey(context.Background())
	if err != nil {
		log.Fatalf("Failed to load secret key: %v", err)
	}

	codec := token.NewCodec(secret)
	cartClient := cart.NewClient(cfg.CartServiceURL, cfg.CheckoutURL)
	sessions := session.NewStore(48 * time.Hour)

	tier := services.NewTierPolicy(cfg.Elevated, cfg.MaxActiveLinks, cfg.MaxItemsPerLink)
	var expiry ports.ExpiryPolicy = services.BaseExpiry{}
	if cfg.Elevated {
		expiry = services.TimedExpiry{}
	}

	// Initialize Services
	linkService := services.NewLinkService(repo, tier, expiry, cfg.BaseURL, cfg.LinkPrefix)
	resolveService := services.NewResolveService(repo, codec, cartClient, cartClient, expiry, sessions)
	conversionService := services.NewConversionService(repo, sessions)

	// Initialize Router
	mux := handler.NewRouter(cfg, linkService, resolveService, conversionService, secret)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
