package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crowdcompute/crowdcompute/internal/shared/config"
	"github.com/crowdcompute/crowdcompute/internal/shared/logging"
	"github.com/crowdcompute/crowdcompute/internal/worker/agent"
	"github.com/crowdcompute/crowdcompute/internal/worker/client"
	workerruntime "github.com/crowdcompute/crowdcompute/internal/worker/runtime"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadWorker(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	logger := logging.NewSlogLogger(slog.LevelInfo)

	rt, err := workerruntime.NewDocker()
	if err != nil {
		logger.Fatal("failed to attach to container runtime", "error", err)
	}
	if n, err := rt.ReapOrphans(context.Background()); err != nil {
		logger.Warn("failed to reap orphaned containers", "error", err)
	} else if n > 0 {
		logger.Info("reaped orphaned containers", "count", n)
	}

	coordinator := client.New(cfg.Coordinator.URL, 30*time.Second)

	a := agent.New(agent.Config{
		WorkerID:          cfg.Agent.WorkerID,
		BasePollInterval:  cfg.Agent.PollInterval,
		MaxPollInterval:   cfg.Agent.MaxPollInterval,
		LeaseTTL:          cfg.Agent.LeaseTTL,
		ScratchRoot:       cfg.Agent.ScratchRoot,
		MaxConcurrentRuns: cfg.Agent.Concurrency,
	}, coordinator, rt, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	logger.Info("worker started",
		"worker_id", cfg.Agent.WorkerID,
		"coordinator_url", cfg.Coordinator.URL,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker", "worker_id", cfg.Agent.WorkerID)
	cancel()
	<-done

	logger.Info("worker stopped", "worker_id", cfg.Agent.WorkerID)
}
