package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"worldbuilder/infrastructure/config"
	"worldbuilder/infrastructure/di"
	"worldbuilder/interfaces/http/rest/middleware"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger := container.Logger

	srv, err := newServer(cfg, container)
	if err != nil {
		logger.Fatal("Failed to configure server", zap.Error(err))
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("store", cfg.StoreDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	_ = logger.Sync()
}

// newServer builds the HTTP server. Gateway auth trusts headers only API
// Gateway can vouch for, so a directly exposed server refuses it.
func newServer(cfg *config.Config, container *di.Container) (*http.Server, error) {
	if cfg.AuthMode == config.AuthModeGateway {
		return nil, fmt.Errorf("AUTH_MODE=%s is only supported by the Lambda entrypoint", config.AuthModeGateway)
	}
	return &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      middleware.StripAuthorizerHeaders(container.Router().Setup()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}
