// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("checkpoint not found")

// Record is the persisted checkpoint layout. The state blob round-trips
// domain.WorkflowState exactly.
type Record struct {
	WorkflowID   uuid.UUID           `json:"workflow_id"`
	Version      int64               `json:"version"`
	State        []byte              `json:"state"`
	WorkflowType domain.WorkflowType `json:"workflow_type"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Store is versioned persistence for workflow state. Versions increment
// monotonically per workflow; writes are atomic per workflow_id. A failed
// Put is fatal for the run that attempted it.
type Store interface {
	// Put snapshots state and returns the new version.
	Put(ctx context.Context, state *domain.WorkflowState) (int64, error)
	// Latest returns the newest snapshot and its version.
	Latest(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowState, int64, error)
	// At returns the snapshot stored at an exact version.
	At(ctx context.Context, workflowID uuid.UUID, version int64) (*domain.WorkflowState, error)
	// Versions lists all stored versions in ascending order.
	Versions(ctx context.Context, workflowID uuid.UUID) ([]int64, error)
	// Delete removes every version for the workflow.
	Delete(ctx context.Context, workflowID uuid.UUID) error
}

func encodeState(state *domain.WorkflowState) ([]byte, error) {
	return json.Marshal(state)
}

func decodeState(blob []byte) (*domain.WorkflowState, error) {
	var state domain.WorkflowState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
