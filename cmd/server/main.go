package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/finquiz/backend/docs"
	"github.com/finquiz/backend/internal/config"
	"github.com/finquiz/backend/internal/database"
	"github.com/finquiz/backend/internal/logger"
	"github.com/finquiz/backend/internal/repositories"
	"github.com/finquiz/backend/internal/server"
	"github.com/finquiz/backend/internal/services"
	"go.uber.org/zap"
)

// @title FinQuiz Progress API
// @version 1.0
// @description API for syncing quiz progress (XP, level, completed levels and exams) per user

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting FinQuiz Progress Service",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("auth_mode", cfg.Auth.Mode),
	)

	// Connect to database
	db, dialect, err := database.Open(cfg)
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db, dialect); err != nil {
		logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize repositories and services
	progressRepo := repositories.NewProgressRepository(db, dialect, logger.Logger)
	progressService := services.NewProgressService(progressRepo, cfg.Storage.Timeout, logger.Logger)

	// Setup router
	r, err := server.NewRouter(cfg, progressService, progressRepo, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to build router", zap.Error(err))
	}

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Logger.Info("Server exited")
}
