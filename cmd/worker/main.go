// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudtrim/cloudtrim/internal/approval"
	"github.com/cloudtrim/cloudtrim/internal/checkpoint"
	"github.com/cloudtrim/cloudtrim/internal/config"
	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/graph"
	"github.com/cloudtrim/cloudtrim/internal/learning"
	"github.com/cloudtrim/cloudtrim/internal/logging"
	"github.com/cloudtrim/cloudtrim/internal/nodes"
	"github.com/cloudtrim/cloudtrim/internal/notify"
	"github.com/cloudtrim/cloudtrim/internal/persistence/postgres"
	"github.com/cloudtrim/cloudtrim/internal/provider"
	"github.com/cloudtrim/cloudtrim/internal/repository"
	"github.com/cloudtrim/cloudtrim/internal/rollout"
	"github.com/cloudtrim/cloudtrim/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env, "worker")

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema migration failed: %v", err)
		}
	}

	store, closeStore, err := openStore(cfg, pool, logger)
	if err != nil {
		log.Fatalf("open checkpoint store failed: %v", err)
	}
	defer closeStore()

	workflowRepo := repository.NewWorkflowRepository(pool, logger)
	eventRepo := repository.NewEventRepository(pool, logger)
	outcomeRepo := repository.NewOutcomeRepository(pool, logger)
	weightsRepo := repository.NewWeightsRepository(pool, logger)

	var sink notify.Sink = eventRepo
	if cfg.WebhookURL != "" {
		sink = notify.Multi(eventRepo, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, logger))
	}

	gateway, err := approval.NewGateway(approval.Policy{
		SavingsThreshold:    cfg.Approval.SavingsThreshold,
		ConfidenceThreshold: cfg.Approval.ConfidenceThreshold,
		MaxAutoRisk:         parseRisk(cfg.Approval.MaxAutoRisk),
		Timeout:             cfg.Approval.Timeout,
	}, nil)
	if err != nil {
		log.Fatalf("build approval gateway failed: %v", err)
	}

	library, err := nodes.NewLibrary(nodes.Deps{
		Collector: &provider.FakeCollector{},
		Applier:   &provider.FakeApplier{},
		Metrics:   &provider.FakeMetrics{},
		Approvals: workflowRepo,

		Gateway: gateway,
		Weights: weightsRepo,
		Tracker: learning.NewTracker(outcomeRepo, learning.NoopSimilarityIndex{}, logger),

		Rollout: rollout.Config{
			Phases:               cfg.Rollout.Phases,
			WarmupWindow:         cfg.Rollout.WarmupWindow,
			MonitorWindow:        cfg.Rollout.MonitorWindow,
			PollInterval:         cfg.Rollout.PollInterval,
			SampleTimeout:        cfg.Rollout.SampleTimeout,
			DegradationThreshold: cfg.Rollout.DegradationThreshold,
		},
		Checkpoint: graph.Saver(store),

		Events: sink,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("build node library failed: %v", err)
	}

	g, err := library.BuildGraph()
	if err != nil {
		log.Fatalf("build graph failed: %v", err)
	}

	w := worker.New(worker.Deps{
		Pool:         pool,
		Store:        store,
		Executor:     graph.NewExecutor(g, store, logger),
		Logger:       logger,
		ReclaimAfter: cfg.Worker.ReclaimAfter,
		RepollAfter:  cfg.Worker.RepollAfter,
		MaxAttempts:  cfg.Worker.MaxAttempts,
	})

	logger.Info("worker started",
		"poll_interval", cfg.Worker.PollInterval,
		"store_backend", cfg.StoreBackend,
	)

	w.Run(ctx, cfg.Worker.PollInterval)

	logger.Info("worker stopped")
}

// openStore builds the checkpoint store named by STORE_BACKEND. The
// queue itself always lives in Postgres; only workflow state snapshots
// move between backends.
func openStore(cfg config.Config, pool *pgxpool.Pool, logger *slog.Logger) (checkpoint.Store, func(), error) {
	switch cfg.StoreBackend {
	case "badger":
		store, err := checkpoint.OpenBadgerStore(cfg.BadgerPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("badger close failed", "error", err)
			}
		}, nil
	case "memory":
		return checkpoint.NewMemoryStore(), func() {}, nil
	default:
		return checkpoint.NewPostgresStore(pool, logger), func() {}, nil
	}
}

func parseRisk(raw string) domain.RiskLevel {
	switch raw {
	case string(domain.RiskMedium):
		return domain.RiskMedium
	case string(domain.RiskHigh):
		return domain.RiskHigh
	default:
		return domain.RiskLow
	}
}
