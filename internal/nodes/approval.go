// SPDX-License-Identifier: Apache-2.0

package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/graph"
	"github.com/cloudtrim/cloudtrim/internal/metrics"
	"github.com/cloudtrim/cloudtrim/internal/provider"
)

// GateApproval applies policy thresholds: low-savings high-confidence
// runs pass unattended, everything else files an approval ticket.
func (l *Library) GateApproval(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	decision := l.deps.Gateway.Evaluate(state)
	if decision != domain.ApprovalPending {
		metrics.IncApprovalDecision("auto")
		l.deps.Logger.Info("approval not required", "workflow_id", state.WorkflowID)
		return state, nil
	}

	if err := state.SetApproval(domain.ApprovalPending); err != nil {
		return nil, err
	}

	ticketID, err := provider.Retry(ctx, l.deps.Logger, "request approval",
		l.deps.RetryAttempts, l.deps.RetryBaseDelay,
		func(ctx context.Context) (string, error) {
			return l.deps.Approvals.Request(ctx, state.WorkflowID, approvalSummary(state))
		})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state.ApprovalTicketID = ticketID
	state.ApprovalRequestedAt = &now

	metrics.IncApprovalDecision("required")
	l.deps.Events.Emit(ctx, state.WorkflowID, domain.EventApprovalRequested, map[string]any{
		"ticket_id": ticketID,
	})
	l.deps.Logger.Info("approval requested",
		"workflow_id", state.WorkflowID,
		"ticket_id", ticketID,
	)
	return state, nil
}

// WaitApproval polls the approval service. A still-pending decision
// suspends the run (the state is checkpointed and the worker re-enters
// this node later); a decision past the policy deadline is a rejection.
func (l *Library) WaitApproval(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	if state.ApprovalRequestedAt == nil || state.ApprovalTicketID == "" {
		return nil, fmt.Errorf("wait-approval entered without a pending ticket")
	}

	timeout := l.deps.Gateway.PolicyFor(state.WorkflowType).Timeout
	if time.Since(*state.ApprovalRequestedAt) > timeout {
		if err := state.SetApproval(domain.ApprovalRejected); err != nil {
			return nil, err
		}
		state.Fail(domain.FailureApprovalTimeout, fmt.Sprintf("no decision within %s", timeout))
		metrics.IncApprovalDecision("timeout")
		l.deps.Events.Emit(ctx, state.WorkflowID, domain.EventApprovalDecided, map[string]any{
			"decision": "timeout",
		})
		l.deps.Logger.Warn("approval timed out",
			"workflow_id", state.WorkflowID,
			"ticket_id", state.ApprovalTicketID,
		)
		return state, nil
	}

	decision, err := provider.Retry(ctx, l.deps.Logger, "poll approval",
		l.deps.RetryAttempts, l.deps.RetryBaseDelay,
		func(ctx context.Context) (provider.Decision, error) {
			return l.deps.Approvals.Poll(ctx, state.ApprovalTicketID)
		})
	if err != nil {
		return nil, err
	}

	switch decision {
	case provider.DecisionApproved:
		if err := state.SetApproval(domain.ApprovalApproved); err != nil {
			return nil, err
		}
		metrics.IncApprovalDecision("approved")
		l.deps.Events.Emit(ctx, state.WorkflowID, domain.EventApprovalDecided, map[string]any{
			"decision": "approved",
		})
		return state, nil

	case provider.DecisionRejected:
		if err := state.SetApproval(domain.ApprovalRejected); err != nil {
			return nil, err
		}
		state.Fail(domain.FailureApprovalRejected, "rejected by operator")
		metrics.IncApprovalDecision("rejected")
		l.deps.Events.Emit(ctx, state.WorkflowID, domain.EventApprovalDecided, map[string]any{
			"decision": "rejected",
		})
		return state, nil

	default:
		state.Status = domain.WorkflowWaiting
		return state, graph.ErrSuspend
	}
}

func approvalSummary(state *domain.WorkflowState) string {
	var total float64
	for _, rec := range state.Recommendations {
		total += rec.EstimatedSavings
	}
	return fmt.Sprintf("%s for %s: %d change(s), estimated $%.2f/month",
		state.WorkflowType, state.CustomerID, len(state.Recommendations), total)
}
