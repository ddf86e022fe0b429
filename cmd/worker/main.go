package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadpilot_backend/internal/marketplace"
	"leadpilot_backend/internal/responder"
	"leadpilot_backend/internal/scheduler"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/db"
	"leadpilot_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env)
	log.Info("starting follow-up worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.IsSchedulerEnabled() {
		log.Error("REDIS_URL is required for the follow-up worker")
		os.Exit(1)
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var source marketplace.Client
	if cfg.IsMarketplaceLive() {
		source = marketplace.NewHTTPClient(cfg, cfg.GetExternalCallTimeout(), log)
	} else {
		source = marketplace.NewFileFeed(cfg.GetLeadsFile(), cfg.GetMessagesFile(), log)
	}

	tmpl, err := responder.LoadTemplates(cfg.GetTemplatesFile())
	if err != nil {
		log.Error("failed to load reply templates", "error", err)
		os.Exit(1)
	}

	worker, err := scheduler.NewWorker(cfg, cfg, pool, source, tmpl, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		os.Exit(1)
	}

	worker.Run(ctx)
	log.Info("follow-up worker stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
