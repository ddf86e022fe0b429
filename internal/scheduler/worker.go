package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadpilot_backend/internal/dedup"
	"leadpilot_backend/internal/marketplace"
	"leadpilot_backend/internal/responder"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	repo     *dedup.Repository
	source   marketplace.Client
	tmpl     responder.Templates
	business config.BusinessConfig
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, business config.BusinessConfig, pool *pgxpool.Pool, source marketplace.Client, tmpl responder.Templates, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		repo:     dedup.New(pool),
		source:   source,
		tmpl:     tmpl,
		business: business,
		log:      log,
	}

	mux.HandleFunc(TaskLeadFollowUp, w.handleLeadFollowUp)

	return w, nil
}

// handleLeadFollowUp sends the nudge message for a quoted lead that never
// replied. The check is repeated at execution time so a lead that converted
// or already got its follow-up is left alone.
func (w *Worker) handleLeadFollowUp(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadFollowUpPayload(task)
	if err != nil {
		return err
	}

	due, err := w.repo.NeedsFollowUp(ctx, payload.LeadID, time.Now())
	if err != nil {
		return err
	}
	if !due {
		w.log.WithLeadID(payload.LeadID).Debug("follow-up no longer needed")
		return nil
	}

	text := w.tmpl.RenderFollowUp(w.business)
	if err := w.source.SendMessage(ctx, payload.LeadID, text); err != nil {
		return err
	}

	if err := w.repo.MarkFollowUpSent(ctx, payload.LeadID); err != nil {
		return err
	}

	w.log.WithLeadID(payload.LeadID).Info("follow-up sent")
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("follow-up worker stopped", "error", err)
	}
}
