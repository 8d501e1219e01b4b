// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/google/uuid"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/repository"
)

type WorkflowManager interface {
	CreateWorkflow(ctx context.Context, workflowType domain.WorkflowType, customerID string) (uuid.UUID, error)
	GetWorkflow(ctx context.Context, id uuid.UUID) (repository.WorkflowSummary, error)
	ListWorkflows(ctx context.Context, customerID string, limit int) ([]repository.WorkflowSummary, error)
	CancelWorkflow(ctx context.Context, id uuid.UUID) error
	Decide(ctx context.Context, id uuid.UUID, approve bool, decidedBy string) error
}

type EventStreamer interface {
	ListEventsAfter(ctx context.Context, workflowID uuid.UUID, afterSeq int64) ([]domain.EventRecord, error)
	ResolveCursorByEventID(ctx context.Context, workflowID uuid.UUID, eventID uuid.UUID) (int64, error)
}

// CheckpointReader exposes the stored snapshots of a run for inspection.
type CheckpointReader interface {
	Versions(ctx context.Context, workflowID uuid.UUID) ([]int64, error)
	At(ctx context.Context, workflowID uuid.UUID, version int64) (*domain.WorkflowState, error)
	Latest(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowState, int64, error)
}

// LearningAdmin covers the operator surface of the feedback loop.
type LearningAdmin interface {
	RunCycle(ctx context.Context) (domain.LearningReport, error)
}

type WeightsReader interface {
	Current(ctx context.Context) (domain.ScoringWeights, error)
	History(ctx context.Context) ([]domain.ScoringWeights, error)
	Revert(ctx context.Context, version int64) (domain.ScoringWeights, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
