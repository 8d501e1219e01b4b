// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventRecord struct {
	ID         uuid.UUID       `json:"id"`
	Seq        int64           `json:"seq"`
	WorkflowID uuid.UUID       `json:"workflow_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Event types emitted over the notification sink and appended to the
// per-workflow event log.
const (
	EventWorkflowSubmitted     = "workflow.submitted"
	EventWorkflowCanceled      = "workflow.canceled"
	EventRecommendationCreated = "recommendation.created"
	EventApprovalRequested     = "approval.requested"
	EventApprovalDecided       = "approval.decided"
	EventPhaseCompleted        = "phase.completed"
	EventExecutionCompleted    = "execution.completed"
	EventRollbackTriggered     = "rollback.triggered"
	EventOutcomeRecorded       = "outcome.recorded"
)
