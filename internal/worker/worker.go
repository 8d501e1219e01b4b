// SPDX-License-Identifier: Apache-2.0

// Package worker claims due workflows from the queue and advances them
// through the optimization graph. Workers are stateless; any worker can
// pick up any workflow from its latest checkpoint.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudtrim/cloudtrim/internal/checkpoint"
	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/graph"
)

type Deps struct {
	Pool         *pgxpool.Pool
	Store        checkpoint.Store
	Executor     *graph.Executor
	Logger       *slog.Logger
	ReclaimAfter time.Duration
	// RepollAfter is how long a workflow awaiting approval rests before
	// a worker re-polls its decision (and maps deadline expiry to a
	// rejection).
	RepollAfter time.Duration
	MaxAttempts int
}

type Worker struct {
	pool         *pgxpool.Pool
	store        checkpoint.Store
	executor     *graph.Executor
	logger       *slog.Logger
	reclaimAfter time.Duration
	repollAfter  time.Duration
	maxAttempts  int
}

func New(deps Deps) *Worker {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	reclaim := deps.ReclaimAfter
	if reclaim <= 0 {
		reclaim = 10 * time.Minute
	}

	repoll := deps.RepollAfter
	if repoll <= 0 {
		repoll = 30 * time.Second
	}

	maxAtt := deps.MaxAttempts
	if maxAtt <= 0 {
		maxAtt = 3
	}

	return &Worker{
		pool:         deps.Pool,
		store:        deps.Store,
		executor:     deps.Executor,
		logger:       l,
		reclaimAfter: reclaim,
		repollAfter:  repoll,
		maxAttempts:  maxAtt,
	}
}

type claimedWorkflow struct {
	WorkflowID   uuid.UUID
	WorkflowType domain.WorkflowType
	CustomerID   string
	PrevStatus   domain.WorkflowStatus
	Attempts     int
}

// Run polls for work until the context is canceled.
func (w *Worker) Run(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				w.logger.Error("process cycle failed", "error", err)
			}
		}
	}
}

func (w *Worker) ProcessOnce(ctx context.Context) error {
	claimed, err := w.claimOneWorkflow(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		w.logger.Error("claim workflow failed", "error", err)
		return err
	}

	w.logger.Info("workflow claimed",
		"workflow_id", claimed.WorkflowID,
		"workflow_type", claimed.WorkflowType,
		"prev_status", claimed.PrevStatus,
		"attempt", claimed.Attempts,
	)

	state, runErr := w.advance(ctx, claimed)
	if runErr != nil {
		return w.settleFailure(ctx, claimed, state, runErr)
	}

	return w.syncRow(ctx, state)
}

// claimOneWorkflow claims one due workflow. Stuck RUNNING rows older
// than reclaimAfter are claimable again, so a crashed worker's runs are
// picked up from their last checkpoint. WAITING_APPROVAL rows rest for
// repollAfter and then become due again, so an undecided approval is
// re-polled and eventually times out to a rejection.
func (w *Worker) claimOneWorkflow(ctx context.Context) (claimedWorkflow, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return claimedWorkflow{}, err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	reclaimBefore := now.Add(-w.reclaimAfter)
	repollBefore := now.Add(-w.repollAfter)

	var c claimedWorkflow
	err = tx.QueryRow(ctx, `
		SELECT id, workflow_type, customer_id, status, attempts
		FROM workflows
		WHERE status = $1
		   OR (status = $2 AND claimed_at IS NOT NULL AND claimed_at < $3)
		   OR (status = $4 AND updated_at < $5)
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`,
		domain.WorkflowPending,
		domain.WorkflowRunning,
		reclaimBefore,
		domain.WorkflowWaiting,
		repollBefore,
	).Scan(&c.WorkflowID, &c.WorkflowType, &c.CustomerID, &c.PrevStatus, &c.Attempts)
	if err != nil {
		return claimedWorkflow{}, err
	}

	// Every claim counts as an attempt, except approval re-polls: a run
	// may wait on a decision far longer than any retry budget.
	attemptStep := 1
	if c.PrevStatus == domain.WorkflowWaiting {
		attemptStep = 0
	}

	_, err = tx.Exec(ctx, `
		UPDATE workflows
		SET status=$2,
		    claimed_at=NOW(),
		    attempts=attempts + $3,
		    updated_at=NOW()
		WHERE id=$1
	`,
		c.WorkflowID,
		domain.WorkflowRunning,
		attemptStep,
	)
	if err != nil {
		return claimedWorkflow{}, err
	}
	c.Attempts += attemptStep

	return c, tx.Commit(ctx)
}

// advance runs the claimed workflow from scratch or from its latest
// checkpoint.
func (w *Worker) advance(ctx context.Context, c claimedWorkflow) (*domain.WorkflowState, error) {
	state, _, err := w.store.Latest(ctx, c.WorkflowID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		fresh := domain.NewWorkflowState(c.WorkflowType, c.CustomerID)
		fresh.WorkflowID = c.WorkflowID
		return w.executor.Start(ctx, fresh)
	}
	if err != nil {
		return nil, err
	}

	// A requeued failure carries the failure marker from its last
	// checkpoint; clear it so the resume re-enters the failed node.
	if state.Status == domain.WorkflowFailed && retryableFailure(state.FailureKind) {
		state.Status = domain.WorkflowRunning
		state.FailureKind = domain.FailureNone
		state.FailureReason = ""
	}

	return w.executor.ResumeState(ctx, state)
}

func retryableFailure(kind domain.FailureKind) bool {
	switch kind {
	case domain.FailureProvider, domain.FailurePersistence, domain.FailureInternal:
		return true
	}
	return false
}

// syncRow mirrors the checkpointed state onto the queue row so listings
// and approval endpoints see current status without decoding state.
func (w *Worker) syncRow(ctx context.Context, state *domain.WorkflowState) error {
	if state == nil {
		return nil
	}

	status := state.Status
	if !status.Terminal() && status != domain.WorkflowWaiting {
		// Suspended mid-run without a terminal status; leave it claimable.
		status = domain.WorkflowPending
	}

	_, err := w.pool.Exec(ctx, `
		UPDATE workflows
		SET status=$2, approval_status=$3, updated_at=NOW()
		WHERE id=$1
	`,
		state.WorkflowID,
		status,
		state.ApprovalStatus,
	)
	if err != nil {
		w.logger.Error("sync workflow row failed",
			"workflow_id", state.WorkflowID,
			"status", status,
			"error", err,
		)
		return err
	}

	w.logger.Info("workflow advanced",
		"workflow_id", state.WorkflowID,
		"status", status,
		"completed_nodes", len(state.ExecutionLog),
	)
	return nil
}

// settleFailure retries retryable failures up to maxAttempts, then
// fails the workflow permanently.
func (w *Worker) settleFailure(ctx context.Context, c claimedWorkflow, state *domain.WorkflowState, runErr error) error {
	kind := domain.ClassifyFailure(runErr)
	if state != nil && state.FailureKind != domain.FailureNone {
		kind = state.FailureKind
	}

	if retryableFailure(kind) && c.Attempts < w.maxAttempts {
		w.logger.Warn("workflow failed - retrying",
			"workflow_id", c.WorkflowID,
			"failure_kind", kind,
			"attempt", c.Attempts,
			"max_attempts", w.maxAttempts,
			"error", runErr,
		)

		_, err := w.pool.Exec(ctx, `
			UPDATE workflows
			SET status=$2, updated_at=NOW()
			WHERE id=$1
		`,
			c.WorkflowID,
			domain.WorkflowPending,
		)
		return err
	}

	w.logger.Error("workflow permanently failed",
		"workflow_id", c.WorkflowID,
		"failure_kind", kind,
		"attempts", c.Attempts,
		"error", runErr,
	)

	approval := domain.ApprovalNotRequired
	if state != nil {
		approval = state.ApprovalStatus
	}

	_, err := w.pool.Exec(ctx, `
		UPDATE workflows
		SET status=$2, approval_status=$3, updated_at=NOW()
		WHERE id=$1
	`,
		c.WorkflowID,
		domain.WorkflowFailed,
		approval,
	)
	return err
}
