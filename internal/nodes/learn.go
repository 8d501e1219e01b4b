// SPDX-License-Identifier: Apache-2.0

package nodes

import (
	"context"
	"errors"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/metrics"
)

// Learn hands the completed run to the outcome tracker. An unavailable
// learning store is logged and skipped; it never fails the run.
func (l *Library) Learn(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	records, err := l.deps.Tracker.RecordWorkflow(ctx, state)
	if err != nil {
		if errors.Is(err, domain.ErrLearningStoreUnavailable) {
			l.deps.Logger.Warn("learning store unavailable - skipping outcome recording",
				"workflow_id", state.WorkflowID,
			)
			return state, nil
		}
		return nil, err
	}

	for _, rec := range records {
		metrics.ObserveOutcomeAccuracy(rec.Accuracy)
	}
	l.deps.Events.Emit(ctx, state.WorkflowID, domain.EventOutcomeRecorded, map[string]any{
		"outcomes": len(records),
		"success":  state.Success,
	})
	l.deps.Logger.Info("outcomes recorded",
		"workflow_id", state.WorkflowID,
		"outcomes", len(records),
		"success", state.Success,
	)
	return state, nil
}
