// SPDX-License-Identifier: Apache-2.0

// Command cli is the local toolbox: `dryrun` executes one optimization
// workflow end to end against fake providers and an in-process
// checkpoint store, `validate` runs the repo checks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/cloudtrim/cloudtrim/internal/approval"
	"github.com/cloudtrim/cloudtrim/internal/checkpoint"
	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/graph"
	"github.com/cloudtrim/cloudtrim/internal/learning"
	"github.com/cloudtrim/cloudtrim/internal/logging"
	"github.com/cloudtrim/cloudtrim/internal/nodes"
	"github.com/cloudtrim/cloudtrim/internal/provider"
	"github.com/cloudtrim/cloudtrim/internal/rollout"
)

func main() {
	logger := logging.NewLogger(os.Getenv("ENV"), "cli")

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "dryrun":
		if err := runDryRun(ctx, logger, os.Args[2:]); err != nil {
			logger.Error("dryrun failed", "error", err)
			os.Exit(1)
		}
	case "validate":
		if err := runValidate(ctx, logger); err != nil {
			logger.Error("validation failed", "error", err)
			os.Exit(1)
		}
		logger.Info("validation passed")
	default:
		printUsage(os.Stderr)
		os.Exit(2)
	}
}

func runDryRun(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("dryrun", flag.ExitOnError)
	workflowType := fs.String("type", string(domain.TypeCostOptimization), "workflow type")
	customerID := fs.String("customer", "local-dev", "customer identifier")
	storeBackend := fs.String("store", "memory", "checkpoint store: memory or badger")
	badgerPath := fs.String("badger-path", "./data/dryrun", "badger store directory")
	degrade := fs.Bool("degrade", false, "force quality degradation to exercise rollback")
	printState := fs.Bool("print-state", false, "dump the final workflow state as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, closeStore, err := openDryRunStore(*storeBackend, *badgerPath, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	metrics := &provider.FakeMetrics{}
	if *degrade {
		metrics.DegradeAfter = 1
		metrics.DegradeBy = 0.5
	}

	// Local runs never wait on a human: every gated recommendation is
	// approved immediately.
	gateway, err := approval.NewGateway(approval.DefaultPolicy(), nil)
	if err != nil {
		return err
	}

	library, err := nodes.NewLibrary(nodes.Deps{
		Collector: &provider.FakeCollector{},
		Applier:   &provider.FakeApplier{},
		Metrics:   metrics,
		Approvals: &provider.AutoApprovalService{},

		Gateway: gateway,
		Weights: learning.NewMemoryWeightsStore(),
		Tracker: learning.NewTracker(learning.NewMemoryOutcomeStore(), learning.NoopSimilarityIndex{}, logger),

		Rollout: rollout.Config{
			WarmupWindow:  50 * time.Millisecond,
			MonitorWindow: 100 * time.Millisecond,
			PollInterval:  20 * time.Millisecond,
			SampleTimeout: time.Second,
		},
		Checkpoint: graph.Saver(store),

		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("build node library: %w", err)
	}

	g, err := library.BuildGraph()
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	executor := graph.NewExecutor(g, store, logger)
	state := domain.NewWorkflowState(domain.WorkflowType(*workflowType), *customerID)

	started := time.Now()
	final, err := executor.Start(ctx, state)

	// A suspended run means the auto-approval had not landed yet; resume
	// until the workflow reaches a terminal status.
	for resumes := 0; err == nil && !final.Status.Terminal(); resumes++ {
		if resumes >= 50 {
			return fmt.Errorf("workflow stuck in status %s after %d resumes", final.Status, resumes)
		}
		time.Sleep(20 * time.Millisecond)
		final, err = executor.ResumeState(ctx, final)
	}
	if err != nil {
		return fmt.Errorf("execute workflow: %w", err)
	}

	logger.Info("dryrun complete",
		"workflow_id", final.WorkflowID,
		"status", final.Status,
		"approval_status", final.ApprovalStatus,
		"recommendations", len(final.Recommendations),
		"phases", len(final.PhaseResults),
		"actual_savings", final.ActualSavings,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if *printState {
		blob, err := json.MarshalIndent(final, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
	}
	return nil
}

func openDryRunStore(backend, path string, logger *slog.Logger) (checkpoint.Store, func(), error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "badger":
		store, err := checkpoint.OpenBadgerStore(path, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("badger close failed", "error", err)
			}
		}, nil
	case "", "memory":
		return checkpoint.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func runValidate(ctx context.Context, logger *slog.Logger) error {
	started := time.Now()

	if err := runCommand(ctx, logger, "go vet", "go", "vet", "./..."); err != nil {
		return err
	}

	if err := runCommand(ctx, logger, "go test unit", "go", "test", "./..."); err != nil {
		return err
	}

	if strings.TrimSpace(os.Getenv("DATABASE_URL")) == "" {
		logger.Info("skipping integration tests", "reason", "DATABASE_URL is not set")
	} else {
		if err := runCommand(
			ctx,
			logger,
			"go test integration",
			"go",
			"test",
			"-count=1",
			"-tags=integration",
			"./internal/repository",
			"./internal/worker",
			"./internal/persistence/postgres",
		); err != nil {
			return err
		}
	}

	logger.Info("validation complete", "duration_ms", time.Since(started).Milliseconds())
	return nil
}

func runCommand(ctx context.Context, logger *slog.Logger, step string, name string, args ...string) error {
	logger.Info("running step", "step", step, "command", strings.Join(append([]string{name}, args...), " "))
	started := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	err := cmd.Run()
	duration := time.Since(started)
	if err != nil {
		exitCode := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		logger.Error("step failed", "step", step, "duration_ms", duration.Milliseconds(), "exit_code", exitCode)
		return err
	}

	logger.Info("step completed", "step", step, "duration_ms", duration.Milliseconds())
	return nil
}

func printUsage(w *os.File) {
	_, _ = fmt.Fprintln(w, "usage: go run ./cmd/cli <dryrun|validate> [flags]")
}
