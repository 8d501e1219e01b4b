// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/checkpoint"
	"github.com/cloudtrim/cloudtrim/internal/config"
	"github.com/cloudtrim/cloudtrim/internal/learning"
	"github.com/cloudtrim/cloudtrim/internal/logging"
	"github.com/cloudtrim/cloudtrim/internal/persistence/postgres"
	"github.com/cloudtrim/cloudtrim/internal/repository"
	httptransport "github.com/cloudtrim/cloudtrim/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env, "api")

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

	workflowRepo := repository.NewWorkflowRepository(pool, logger)
	eventRepo := repository.NewEventRepository(pool, logger)
	outcomeRepo := repository.NewOutcomeRepository(pool, logger)
	weightsRepo := repository.NewWeightsRepository(pool, logger)
	store := checkpoint.NewPostgresStore(pool, logger)
	improver := learning.NewImprover(outcomeRepo, weightsRepo, logger)

	handler := httptransport.NewRouter(httptransport.Deps{
		Workflows:        workflowRepo,
		Events:           eventRepo,
		Checkpoints:      store,
		Learning:         improver,
		Weights:          weightsRepo,
		Health:           postgres.NewSchemaHealthChecker(pool),
		Logger:           logger,
		OperatorToken:    cfg.OperatorToken,
		SubmitRatePerMin: cfg.SubmitRatePerMin,
		Version:          Version,
		Commit:           Commit,
		BuildDate:        BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
