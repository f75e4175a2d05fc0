package environment

import (
	"context"
	"log/slog"
	"time"

	"subtracker/internal/api"
	"subtracker/internal/config"
	"subtracker/internal/mail"
	"subtracker/internal/reminder"
	"subtracker/internal/storage"
	"subtracker/internal/stories/subs"
	"subtracker/internal/stories/subs/createsubs"
	"subtracker/internal/stories/users"
	"subtracker/internal/workers"
	"subtracker/internal/workers/expiration"
	"subtracker/internal/workers/retrytrigger"
	"subtracker/internal/workers/workflowresume"
	"subtracker/internal/workflow"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type Services struct {
	Engine    *workflow.Engine
	Scheduler *reminder.Scheduler
	Router    *chi.Mux
	Protector *api.Protector
	Workers   *workers.Manager
}

func newServices(_ context.Context, clients *Clients, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	var s Services

	now := func() time.Time { return time.Now().UTC() }
	reg := prometheus.DefaultRegisterer

	loc, err := cfg.Reminder.Location()
	if err != nil {
		return nil, err
	}

	storageImpl := storage.New(clients.SQLiteDB.DB)

	userService := users.NewService(storageImpl)
	subsService := subs.NewService(storageImpl, now)

	// Durable step runner
	s.Engine = workflow.NewEngine(storageImpl, logger.With("component", "workflow"),
		workflow.WithClock(now),
		workflow.WithMaxAttempts(cfg.Workflow.MaxAttempts),
		workflow.WithRetryBackoff(cfg.Workflow.RetryBase, cfg.Workflow.RetryMax),
		workflow.WithLease(cfg.Workflow.Lease),
		workflow.WithBatch(cfg.Workflow.BatchSize, cfg.Workflow.Concurrency),
		workflow.WithMetrics(workflow.NewMetrics(reg)),
	)

	catalogue, err := mail.LoadCatalogue()
	if err != nil {
		return nil, errors.Wrap(err, "load mail templates")
	}
	mailService := mail.NewService(
		clients.Mailer,
		catalogue,
		mail.Links{
			AccountSettings: cfg.Reminder.AccountSettingsURL,
			Support:         cfg.Reminder.SupportURL,
		},
		loc,
		now,
		mail.NewMetrics(reg),
		logger.With("component", "mail"),
	)

	s.Scheduler = reminder.NewScheduler(
		storageImpl,
		storageImpl,
		mailService,
		s.Engine,
		now,
		logger.With("component", "reminder"),
		reminder.WithLocation(loc),
		reminder.WithStatusRecheck(cfg.Reminder.RecheckStatus),
	)
	s.Engine.Register(reminder.WorkflowName, s.Scheduler.Handle)

	createSubService := createsubs.NewService(storageImpl, s.Scheduler, now, logger)

	// HTTP API
	tokens := api.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, now)
	handler := api.NewHandler(userService, subsService, createSubService, s.Engine, tokens, logger)
	s.Protector = api.NewProtector(api.ProtectOptions{
		Capacity:       cfg.Protect.Capacity,
		RefillTokens:   cfg.Protect.RefillTokens,
		RefillInterval: cfg.Protect.RefillInterval,
		BotMode:        cfg.Protect.BotMode,
		BotAllow:       cfg.Protect.BotAllow,
	}, reg, logger.With("component", "protect"))
	s.Router = api.NewRouter(handler, s.Protector, api.RouterOptions{
		AllowedOrigins:    cfg.API.AllowedOrigins,
		RequestTimeout:    cfg.API.RequestTimeout,
		TrustProxyHeaders: cfg.API.TrustProxy,
	}, logger)

	// Background workers
	s.Workers = workers.NewManager(logger,
		workflowresume.NewWorker(s.Engine, cfg.Workflow.PollInterval, logger.With("worker", "workflow-resume")),
		expiration.NewWorker(subsService, cfg.Workers.ExpirationSchedule, logger.With("worker", "expiration")),
		retrytrigger.NewWorker(subsService, createSubService, cfg.Workers.RetryTriggerSchedule, cfg.Workers.RetryTriggerBatch, logger.With("worker", "retry-trigger")),
	)

	return &s, nil
}
