// Command tuna-router is the compiled meta-load-balancer binary the
// orchestrator copies to a deployment's VM over SSH and runs there,
// fronting the serverless and spot backends for a single service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/config"
	"github.com/crosslogic/tuna-orchestrator/internal/router"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting tuna router")

	cfg := config.Load()

	serviceName := os.Getenv("TUNA_SERVICE_NAME")
	if serviceName == "" {
		logger.Fatal("TUNA_SERVICE_NAME is required")
	}

	rt := router.New(cfg.Router, serviceName, logger)
	logger.Info("router configured",
		zap.String("service_name", serviceName),
		zap.String("serverless_base_url", cfg.Router.ServerlessBaseURL),
		zap.String("skyserve_base_url", cfg.Router.SkyserveBaseURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Router.Port),
		Handler:      rt,
		ReadTimeout:  cfg.Router.UpstreamTimeout,
		WriteTimeout: cfg.Router.UpstreamTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()

	logger.Info("shutting down router...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("router forced to shutdown", zap.Error(err))
	}
	logger.Info("router exited")
}
