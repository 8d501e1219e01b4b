// SPDX-License-Identifier: Apache-2.0

// Package repository is the Postgres access layer: workflow queue rows,
// the per-workflow event log, recorded outcomes and scoring weights.
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/provider"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// WorkflowSummary is the queue-level view of a run. The full state lives
// in checkpoints; this row exists for claiming, listing and approval
// bookkeeping.
type WorkflowSummary struct {
	ID             uuid.UUID             `json:"id"`
	WorkflowType   domain.WorkflowType   `json:"workflow_type"`
	CustomerID     string                `json:"customer_id"`
	Status         domain.WorkflowStatus `json:"status"`
	ApprovalStatus domain.ApprovalStatus `json:"approval_status"`
	Attempts       int                   `json:"attempts"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

type WorkflowRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewWorkflowRepository(pool *pgxpool.Pool, logger *slog.Logger) *WorkflowRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *WorkflowRepository) CreateWorkflow(ctx context.Context, workflowType domain.WorkflowType, customerID string) (uuid.UUID, error) {
	workflowID := uuid.New()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO workflows (id, workflow_type, customer_id, status, approval_status)
		VALUES ($1, $2, $3, $4, $5)
	`,
		workflowID,
		workflowType,
		customerID,
		domain.WorkflowPending,
		domain.ApprovalNotRequired,
	)
	if err != nil {
		r.logger.Error("insert workflow failed", "workflow_id", workflowID, "error", err)
		return uuid.Nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO events (id, workflow_id, type, payload)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), workflowID, domain.EventWorkflowSubmitted,
		`{"workflow_type":"`+string(workflowType)+`"}`,
	)
	if err != nil {
		r.logger.Error("insert submit event failed", "workflow_id", workflowID, "error", err)
		return uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit failed", "workflow_id", workflowID, "error", err)
		return uuid.Nil, err
	}

	r.logger.Info("workflow created",
		"workflow_id", workflowID,
		"workflow_type", workflowType,
		"customer_id", customerID,
	)
	return workflowID, nil
}

func (r *WorkflowRepository) GetWorkflow(ctx context.Context, id uuid.UUID) (WorkflowSummary, error) {
	var s WorkflowSummary

	err := r.pool.QueryRow(ctx, `
		SELECT id, workflow_type, customer_id, status, approval_status,
		       attempts, created_at, updated_at
		FROM workflows
		WHERE id=$1
	`, id).Scan(
		&s.ID,
		&s.WorkflowType,
		&s.CustomerID,
		&s.Status,
		&s.ApprovalStatus,
		&s.Attempts,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkflowSummary{}, ErrWorkflowNotFound
	}
	if err != nil {
		r.logger.Error("get workflow failed", "workflow_id", id, "error", err)
		return WorkflowSummary{}, err
	}

	return s, nil
}

func (r *WorkflowRepository) ListWorkflows(ctx context.Context, customerID string, limit int) ([]WorkflowSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, workflow_type, customer_id, status, approval_status,
		       attempts, created_at, updated_at
		FROM workflows
		WHERE ($1 = '' OR customer_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		r.logger.Error("list workflows failed", "customer_id", customerID, "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]WorkflowSummary, 0, limit)
	for rows.Next() {
		var s WorkflowSummary
		if err := rows.Scan(
			&s.ID,
			&s.WorkflowType,
			&s.CustomerID,
			&s.Status,
			&s.ApprovalStatus,
			&s.Attempts,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			r.logger.Error("scan workflow row failed", "error", err)
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *WorkflowRepository) CancelWorkflow(ctx context.Context, workflowID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	var status domain.WorkflowStatus
	if err := tx.QueryRow(ctx,
		`SELECT status FROM workflows WHERE id=$1`,
		workflowID,
	).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWorkflowNotFound
		}
		r.logger.Error("read workflow status failed", "workflow_id", workflowID, "error", err)
		return err
	}

	if status.Terminal() {
		r.logger.Info("cancel skipped (terminal)",
			"workflow_id", workflowID,
			"status", status,
		)
		return tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx,
		`UPDATE workflows SET status=$2, updated_at=NOW() WHERE id=$1`,
		workflowID, domain.WorkflowCanceled,
	)
	if err != nil {
		r.logger.Error("update workflow cancel failed", "workflow_id", workflowID, "error", err)
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO events (id, workflow_id, type, payload)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), workflowID, domain.EventWorkflowCanceled, `{"reason":"operator_request"}`,
	)
	if err != nil {
		r.logger.Error("insert cancel event failed", "workflow_id", workflowID, "error", err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit cancel failed", "workflow_id", workflowID, "error", err)
		return err
	}

	r.logger.Info("workflow canceled", "workflow_id", workflowID)
	return nil
}

// Decide records an operator approval decision. The workflow must be
// waiting on approval; deciding makes it claimable again so the worker
// resumes it from its checkpoint. Repeats of the same decision are
// idempotent.
func (r *WorkflowRepository) Decide(ctx context.Context, workflowID uuid.UUID, approve bool, decidedBy string) error {
	decision := domain.ApprovalRejected
	if approve {
		decision = domain.ApprovalApproved
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	var (
		status   domain.WorkflowStatus
		approval domain.ApprovalStatus
	)
	if err := tx.QueryRow(ctx,
		`SELECT status, approval_status FROM workflows WHERE id=$1`,
		workflowID,
	).Scan(&status, &approval); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWorkflowNotFound
		}
		r.logger.Error("read workflow failed", "workflow_id", workflowID, "error", err)
		return err
	}

	if approval == decision {
		r.logger.Info("decision idempotent", "workflow_id", workflowID, "decision", decision)
		return tx.Commit(ctx)
	}

	if status.Terminal() {
		r.logger.Info("decision skipped (terminal)",
			"workflow_id", workflowID,
			"status", status,
		)
		return tx.Commit(ctx)
	}

	if approval != domain.ApprovalPending {
		return errors.New("workflow is not awaiting approval")
	}

	// Back to PENDING so the claim loop picks the run up and the wait
	// node observes the decision.
	_, err = tx.Exec(ctx, `
		UPDATE workflows
		SET approval_status=$2, status=$3, updated_at=NOW()
		WHERE id=$1
	`,
		workflowID, decision, domain.WorkflowPending,
	)
	if err != nil {
		r.logger.Error("update decision failed", "workflow_id", workflowID, "error", err)
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO events (id, workflow_id, type, payload)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), workflowID, domain.EventApprovalDecided,
		`{"decision":"`+string(decision)+`","decided_by":"`+decidedBy+`"}`,
	)
	if err != nil {
		r.logger.Error("insert decision event failed", "workflow_id", workflowID, "error", err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit decision failed", "workflow_id", workflowID, "error", err)
		return err
	}

	r.logger.Info("approval decided",
		"workflow_id", workflowID,
		"decision", decision,
		"decided_by", decidedBy,
	)
	return nil
}

// Request and Poll let the workflows table itself serve as the approval
// backend: the gate node files the ticket here and operators decide over
// the HTTP surface.
func (r *WorkflowRepository) Request(ctx context.Context, workflowID uuid.UUID, summary string) (string, error) {
	_, err := r.pool.Exec(ctx, `
		UPDATE workflows
		SET approval_status=$2, updated_at=NOW()
		WHERE id=$1
	`,
		workflowID, domain.ApprovalPending,
	)
	if err != nil {
		r.logger.Error("request approval failed", "workflow_id", workflowID, "error", err)
		return "", err
	}
	return workflowID.String(), nil
}

func (r *WorkflowRepository) Poll(ctx context.Context, ticketID string) (provider.Decision, error) {
	workflowID, err := uuid.Parse(ticketID)
	if err != nil {
		return "", err
	}

	var approval domain.ApprovalStatus
	if err := r.pool.QueryRow(ctx,
		`SELECT approval_status FROM workflows WHERE id=$1`,
		workflowID,
	).Scan(&approval); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrWorkflowNotFound
		}
		return "", err
	}

	switch approval {
	case domain.ApprovalApproved:
		return provider.DecisionApproved, nil
	case domain.ApprovalRejected:
		return provider.DecisionRejected, nil
	default:
		return provider.DecisionPending, nil
	}
}
