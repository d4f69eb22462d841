// Package server assembles the HTTP router of the progress service
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/finquiz/backend/internal/auth"
	"github.com/finquiz/backend/internal/config"
	"github.com/finquiz/backend/internal/handlers"
	"github.com/finquiz/backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// NewRouter builds the router with the shared middleware chain and all /api/v1 routes
func NewRouter(cfg *config.Config, progressService handlers.ProgressService, pinger handlers.Pinger, logger *zap.Logger) (chi.Router, error) {
	identity, err := identityMiddleware(cfg.Auth)
	if err != nil {
		return nil, err
	}

	progressHandler := handlers.NewProgressHandler(progressService, logger)
	healthHandler := handlers.NewHealthHandler(pinger, cfg.Storage.Timeout, logger)

	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(httprate.LimitByIP(cfg.RateLimit.RequestsPerMinute, time.Minute))
	r.Use(middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize))

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", cfg.Server.Port)),
	))

	// Scope router to /api/v1
	r.Route("/api/v1", func(r chi.Router) {
		healthHandler.RegisterRoutes(r)
		progressHandler.RegisterRoutes(r, identity, middleware.APIKeyMiddleware(cfg.Auth.APIKey))
	})

	return r, nil
}

// identityMiddleware picks how the trusted user key is resolved
func identityMiddleware(cfg config.AuthConfig) (func(http.Handler) http.Handler, error) {
	switch cfg.Mode {
	case config.AuthModeJWT:
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required for auth mode %q", cfg.Mode)
		}
		return middleware.JWTUserKeyMiddleware(auth.NewTokenValidator(cfg.JWTSecret)), nil
	case config.AuthModeHeader:
		return middleware.HeaderUserKeyMiddleware, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %q", cfg.Mode)
	}
}
