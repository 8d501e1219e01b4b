// SPDX-License-Identifier: Apache-2.0

package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/metrics"
)

// Execute delegates to the progressive rollout controller. Degradation is
// not an error here: the controller records the degraded phase and the
// graph routes to rollback.
func (l *Library) Execute(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	if state.ApprovalStatus == domain.ApprovalPending || state.ApprovalStatus == domain.ApprovalRejected {
		return nil, fmt.Errorf("execute entered with approval status %s", state.ApprovalStatus)
	}

	phasesBefore := len(state.PhaseResults)
	err := l.controller.Execute(ctx, state, l.deps.Checkpoint)

	for _, phase := range state.PhaseResults[phasesBefore:] {
		outcome := "proceed"
		if phase.Degraded {
			outcome = "degraded"
		}
		metrics.IncRolloutPhase(outcome)
		l.deps.Events.Emit(ctx, state.WorkflowID, domain.EventPhaseCompleted, map[string]any{
			"percentage":      phase.Percentage,
			"degraded":        phase.Degraded,
			"degradation_pct": phase.DegradationPct,
		})
	}

	var degradation *domain.QualityDegradationError
	if errors.As(err, &degradation) {
		metrics.IncDegradation()
		l.deps.Logger.Warn("rollout degraded - aborting remaining phases",
			"workflow_id", state.WorkflowID,
			"phase", degradation.Phase,
			"metric", degradation.Metric,
			"degradation_pct", degradation.DegradationPct,
		)
		return state, nil // routeAfterExecute sends this run to rollback
	}
	if err != nil {
		return nil, err
	}

	l.deps.Events.Emit(ctx, state.WorkflowID, domain.EventExecutionCompleted, map[string]any{
		"actual_savings": state.ActualSavings,
		"phases":         len(state.PhaseResults),
	})
	l.deps.Logger.Info("execution completed",
		"workflow_id", state.WorkflowID,
		"actual_savings", state.ActualSavings,
	)
	return state, nil
}

// Rollback reverts every applied change and records why. A complete
// revert is an expected safety outcome, not an infrastructure failure; a
// partial revert is fatal and terminal, flagged for manual intervention.
func (l *Library) Rollback(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	reason := "quality degradation"
	if n := len(state.PhaseResults); n > 0 && state.PhaseResults[n-1].Degraded {
		last := state.PhaseResults[n-1]
		reason = fmt.Sprintf("quality degradation in phase %d%%: %s worsened %.1f%%",
			last.Percentage, last.DegradedMetric, last.DegradationPct*100)
	}

	if err := l.controller.Rollback(ctx, state); err != nil {
		return nil, err
	}

	state.Fail(domain.FailureDegradation, reason)
	l.deps.Events.Emit(ctx, state.WorkflowID, domain.EventRollbackTriggered, map[string]any{
		"reason": reason,
	})
	l.deps.Logger.Info("rollback complete",
		"workflow_id", state.WorkflowID,
		"reason", reason,
	)
	return state, nil
}
