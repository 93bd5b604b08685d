package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/session-booking/internal/app"
	"github.com/hackgods/session-booking/internal/appointment"
	"github.com/hackgods/session-booking/internal/config"
	"github.com/hackgods/session-booking/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Sweep.Grace <= 0 {
		logger.Info("SWEEP_GRACE is not positive; attendance sweeper disabled")
		return
	}

	logger.Info("attendance-sweeper starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.Sweep.Interval),
		zap.Duration("grace", cfg.Sweep.Grace),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		rt.Close(ctx)
	}()

	// Run once at startup
	runOnce(rootCtx, rt.Service, cfg.Sweep.Grace, logger)

	ticker := time.NewTicker(cfg.Sweep.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping attendance sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, rt.Service, cfg.Sweep.Grace, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, grace time.Duration, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	start := time.Now()
	marked, err := svc.SweepMissed(runCtx, grace)
	if err != nil {
		logger.Error("sweep run error", zap.Int("marked", marked), zap.Error(err))
		return
	}
	logger.Info("sweep run complete", zap.Int("marked", marked), zap.Duration("took", time.Since(start)))
}
