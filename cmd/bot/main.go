package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadpilot_backend/internal/alert"
	"leadpilot_backend/internal/calendar"
	"leadpilot_backend/internal/dedup"
	"leadpilot_backend/internal/engine"
	"leadpilot_backend/internal/events"
	"leadpilot_backend/internal/httpapi"
	"leadpilot_backend/internal/marketplace"
	"leadpilot_backend/internal/responder"
	"leadpilot_backend/internal/scheduler"
	"leadpilot_backend/platform/ai/openai"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/clock"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/db"
	"leadpilot_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env)
	log.Info("starting lead bot", "env", cfg.Env, "once", *once)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *once); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("lead bot exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("lead bot stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, once bool) error {
	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		return fmt.Errorf("run database migrations: %w", err)
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)

	alert.NewMailer(cfg, log).Subscribe(eventBus)

	// ========================================================================
	// External Clients
	// ========================================================================

	var source marketplace.Client
	if cfg.IsMarketplaceLive() {
		source = marketplace.NewHTTPClient(cfg, cfg.GetExternalCallTimeout(), log)
		log.Info("using live marketplace API", "base_url", cfg.GetMarketplaceBaseURL())
	} else {
		source = marketplace.NewFileFeed(cfg.GetLeadsFile(), cfg.GetMessagesFile(), log)
		log.Info("using mock file feed", "leads_file", cfg.GetLeadsFile())
	}

	llm := openai.New(openai.Config{
		APIKey:  cfg.GetOpenAIAPIKey(),
		BaseURL: cfg.GetOpenAIBaseURL(),
		Model:   cfg.GetOpenAIModel(),
		Timeout: cfg.GetExternalCallTimeout(),
	})

	clk := clock.New()

	generator, err := responder.New(llm, cfg, clk, log)
	if err != nil {
		return fmt.Errorf("initialize responder: %w", err)
	}

	var cal engine.Calendar
	if cfg.IsCalendarEnabled() {
		c, err := calendar.NewClient(ctx, cfg, cfg.GetTimezone(), cfg.GetExternalCallTimeout(), log)
		if err != nil {
			// Missing or stale credentials disable booking but never block
			// reply sending.
			log.AuthEvent("calendar", false, err.Error())
			if !apperr.Is(err, apperr.KindAuthExpired) {
				return fmt.Errorf("initialize calendar: %w", err)
			}
		} else {
			cal = c
			log.Info("calendar client initialized", "calendar_id", cfg.GetCalendarID())
		}
	}

	var followUps engine.FollowUpScheduler
	if cfg.IsSchedulerEnabled() {
		client, err := scheduler.NewClient(cfg)
		if err != nil {
			return fmt.Errorf("initialize follow-up scheduler: %w", err)
		}
		defer client.Close()
		followUps = client
		log.Info("follow-up scheduler initialized", "queue", cfg.GetAsynqQueueName())
	}

	// ========================================================================
	// Engine (Composition Root)
	// ========================================================================

	eng := engine.New(engine.Config{
		Source:        source,
		Store:         dedup.New(pool),
		Generator:     generator,
		Calendar:      cal,
		FollowUps:     followUps,
		Bus:           eventBus,
		Clock:         clk,
		Engine:        cfg,
		Business:      cfg,
		FollowUpDelay: cfg.GetFollowUpDelay(),
		Logger:        log,
	})

	if once {
		_, err := eng.RunCycle(ctx)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	g.Go(func() error {
		return httpapi.New(cfg, pool, log).Run(gctx)
	})
	return g.Wait()
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
