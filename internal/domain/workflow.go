// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type WorkflowType string

const (
	TypeCostOptimization WorkflowType = "COST_OPTIMIZATION"
	TypeSpotMigration    WorkflowType = "SPOT_MIGRATION"
	TypeReservedInstance WorkflowType = "RESERVED_INSTANCE"
	TypeRightSizing      WorkflowType = "RIGHT_SIZING"
)

func (t WorkflowType) Valid() bool {
	switch t {
	case TypeCostOptimization, TypeSpotMigration, TypeReservedInstance, TypeRightSizing:
		return true
	}
	return false
}

type WorkflowStatus string

const (
	WorkflowPending  WorkflowStatus = "PENDING"
	WorkflowRunning  WorkflowStatus = "RUNNING"
	WorkflowWaiting  WorkflowStatus = "WAITING_APPROVAL"
	WorkflowSuccess  WorkflowStatus = "SUCCEEDED"
	WorkflowFailed   WorkflowStatus = "FAILED"
	WorkflowCanceled WorkflowStatus = "CANCELED"
)

func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowSuccess || s == WorkflowFailed || s == WorkflowCanceled
}

type ApprovalStatus string

const (
	ApprovalPending     ApprovalStatus = "PENDING"
	ApprovalApproved    ApprovalStatus = "APPROVED"
	ApprovalRejected    ApprovalStatus = "REJECTED"
	ApprovalNotRequired ApprovalStatus = "NOT_REQUIRED"
)

// WorkflowState is the full record of one optimization run. Nodes are the
// only writers: each node receives a copy, mutates its own fields and the
// result is checkpointed before the next node sees it.
type WorkflowState struct {
	WorkflowID   uuid.UUID    `json:"workflow_id"`
	WorkflowType WorkflowType `json:"workflow_type"`
	CustomerID   string       `json:"customer_id"`

	Status WorkflowStatus `json:"status"`

	Resources       []Resource       `json:"resources,omitempty"`
	Analysis        *Analysis        `json:"analysis,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`

	ApprovalStatus      ApprovalStatus `json:"approval_status"`
	ApprovalTicketID    string         `json:"approval_ticket_id,omitempty"`
	ApprovalRequestedAt *time.Time     `json:"approval_requested_at,omitempty"`

	// ExecutionLog records node names in completion order, for audit and
	// deterministic resume.
	ExecutionLog []string       `json:"execution_log"`
	PhaseResults []RolloutPhase `json:"phase_results,omitempty"`

	Success       bool    `json:"success"`
	ActualSavings float64 `json:"actual_savings"`
	Learned       bool    `json:"learned"`

	// WeightsVersion pins the scoring-weights version this run started
	// with; in-flight runs never pick up newer weights.
	WeightsVersion int64 `json:"weights_version,omitempty"`

	FailureKind   FailureKind `json:"failure_kind,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewWorkflowState(workflowType WorkflowType, customerID string) *WorkflowState {
	now := time.Now().UTC()
	return &WorkflowState{
		WorkflowID:     uuid.New(),
		WorkflowType:   workflowType,
		CustomerID:     customerID,
		Status:         WorkflowPending,
		ApprovalStatus: ApprovalNotRequired,
		ExecutionLog:   []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy. Nodes operate on copies so a failed node
// never leaves a half-written state behind.
func (s *WorkflowState) Clone() *WorkflowState {
	out := *s

	out.Resources = append([]Resource(nil), s.Resources...)
	for i := range out.Resources {
		out.Resources[i].CPUUtilization = append([]float64(nil), s.Resources[i].CPUUtilization...)
		out.Resources[i].Tags = cloneStringMap(s.Resources[i].Tags)
	}

	if s.Analysis != nil {
		a := *s.Analysis
		a.Opportunities = append([]Opportunity(nil), s.Analysis.Opportunities...)
		out.Analysis = &a
	}

	out.Recommendations = append([]Recommendation(nil), s.Recommendations...)
	for i := range out.Recommendations {
		out.Recommendations[i].TargetConfig = cloneStringMap(s.Recommendations[i].TargetConfig)
	}

	out.ExecutionLog = append([]string(nil), s.ExecutionLog...)

	out.PhaseResults = append([]RolloutPhase(nil), s.PhaseResults...)
	for i := range out.PhaseResults {
		out.PhaseResults[i].AppliedResources = append([]string(nil), s.PhaseResults[i].AppliedResources...)
	}

	if s.ApprovalRequestedAt != nil {
		t := *s.ApprovalRequestedAt
		out.ApprovalRequestedAt = &t
	}

	return &out
}

func (s *WorkflowState) AppendLog(node string) {
	s.ExecutionLog = append(s.ExecutionLog, node)
	s.UpdatedAt = time.Now().UTC()
}

// AppendPhase enforces the monotonic phase invariant: percentages never
// decrease across a run.
func (s *WorkflowState) AppendPhase(p RolloutPhase) error {
	if n := len(s.PhaseResults); n > 0 && p.Percentage < s.PhaseResults[n-1].Percentage {
		return fmt.Errorf("phase percentage %d below previous %d", p.Percentage, s.PhaseResults[n-1].Percentage)
	}
	s.PhaseResults = append(s.PhaseResults, p)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// SetApproval enforces the approval transition rules: once the gate has
// requested approval, only approved/rejected may follow, and terminal
// decisions never change.
func (s *WorkflowState) SetApproval(next ApprovalStatus) error {
	if s.ApprovalStatus == next {
		return nil
	}
	switch s.ApprovalStatus {
	case ApprovalNotRequired:
		if next == ApprovalPending {
			s.ApprovalStatus = next
			return nil
		}
	case ApprovalPending:
		if next == ApprovalApproved || next == ApprovalRejected {
			s.ApprovalStatus = next
			return nil
		}
	}
	return fmt.Errorf("invalid approval transition %s -> %s", s.ApprovalStatus, next)
}

func (s *WorkflowState) Fail(kind FailureKind, reason string) {
	s.Status = WorkflowFailed
	s.Success = false
	s.FailureKind = kind
	s.FailureReason = reason
	s.UpdatedAt = time.Now().UTC()
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
