package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crowdcompute/crowdcompute/internal/artifact"
	"github.com/crowdcompute/crowdcompute/internal/coordinator/api/rest"
	"github.com/crowdcompute/crowdcompute/internal/coordinator/registry"
	"github.com/crowdcompute/crowdcompute/internal/coordinator/storage"
	"github.com/crowdcompute/crowdcompute/internal/shared/config"
	"github.com/crowdcompute/crowdcompute/internal/shared/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadCoordinator(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	logger := logging.NewSlogLogger(slog.LevelInfo)

	artifacts, err := artifact.NewFileStore(cfg.Storage.Root)
	if err != nil {
		logger.Fatal("failed to open artifact store", "error", err)
	}

	reg := registry.New(
		storage.NewInMemoryJobStore(),
		storage.NewInMemoryWorkerStore(),
		artifacts,
		registry.Config{
			MaxRetries: cfg.Registry.MaxRetries,
			LeaseTTL:   cfg.Registry.LeaseTTL,
			WorkerTTL:  cfg.Registry.WorkerTTL,
		},
		logger,
	)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	go reg.RunSweeper(sweepCtx)

	server := rest.NewServer(cfg.REST.Addr, reg, logger)
	server.ReadTimeout = cfg.REST.ReadTimeout
	server.WriteTimeout = cfg.REST.WriteTimeout
	server.IdleTimeout = cfg.REST.IdleTimeout

	go func() {
		logger.Info("coordinator listening", "addr", cfg.REST.Addr, "base_url", cfg.REST.BaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down coordinator")
	sweepCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	logger.Info("coordinator stopped")
}
