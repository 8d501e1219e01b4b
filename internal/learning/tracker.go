// SPDX-License-Identifier: Apache-2.0

package learning

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/google/uuid"
)

// OutcomeStore is append-only storage for outcome records. Record must be
// idempotent on (workflow_id, recommendation_id) so duplicate delivery
// never double-counts aggregates.
type OutcomeStore interface {
	Record(ctx context.Context, rec domain.OutcomeRecord) error
	Recent(ctx context.Context, limit int) ([]domain.OutcomeRecord, error)
}

// MemoryOutcomeStore keeps outcomes in memory, deduplicated by
// (workflow_id, recommendation_id).
type MemoryOutcomeStore struct {
	mu      sync.Mutex
	order   []string
	records map[string]domain.OutcomeRecord
}

func NewMemoryOutcomeStore() *MemoryOutcomeStore {
	return &MemoryOutcomeStore{records: make(map[string]domain.OutcomeRecord)}
}

func outcomeKey(workflowID, recommendationID uuid.UUID) string {
	return workflowID.String() + "/" + recommendationID.String()
}

func (s *MemoryOutcomeStore) Record(ctx context.Context, rec domain.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := outcomeKey(rec.WorkflowID, rec.RecommendationID)
	if _, exists := s.records[key]; exists {
		return nil
	}
	s.records[key] = rec
	s.order = append(s.order, key)
	return nil
}

func (s *MemoryOutcomeStore) Recent(ctx context.Context, limit int) ([]domain.OutcomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if limit > 0 && len(s.order) > limit {
		start = len(s.order) - limit
	}

	out := make([]domain.OutcomeRecord, 0, len(s.order)-start)
	for _, key := range s.order[start:] {
		out = append(out, s.records[key])
	}
	return out, nil
}

// Tracker records per-recommendation outcomes when a workflow reaches a
// terminal state, comparing predicted savings with what was delivered.
type Tracker struct {
	store      OutcomeStore
	similarity SimilarityIndex
	logger     *slog.Logger
}

func NewTracker(store OutcomeStore, similarity SimilarityIndex, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if similarity == nil {
		similarity = NoopSimilarityIndex{}
	}
	return &Tracker{store: store, similarity: similarity, logger: logger}
}

// RecordWorkflow derives one OutcomeRecord per recommendation and
// persists them. A rolled-back run records zero actual savings against
// every prediction. Sets state.Learned on success.
func (t *Tracker) RecordWorkflow(ctx context.Context, state *domain.WorkflowState) ([]domain.OutcomeRecord, error) {
	applied := make(map[string]bool)
	for _, phase := range state.PhaseResults {
		for _, id := range phase.AppliedResources {
			applied[id] = true
		}
	}

	now := time.Now().UTC()
	records := make([]domain.OutcomeRecord, 0, len(state.Recommendations))
	for _, rec := range state.Recommendations {
		actual := 0.0
		if state.Success && applied[rec.ResourceID] {
			actual = rec.EstimatedSavings
		}

		outcome := domain.OutcomeRecord{
			ID:               uuid.New(),
			WorkflowID:       state.WorkflowID,
			RecommendationID: rec.ID,
			WorkflowType:     state.WorkflowType,
			RiskLevel:        rec.RiskLevel,
			Pattern:          rec.Pattern,
			PredictedSavings: rec.EstimatedSavings,
			ActualSavings:    actual,
			Success:          state.Success,
			Accuracy:         domain.ComputeAccuracy(rec.EstimatedSavings, actual),
			RecordedAt:       now,
		}

		if err := t.store.Record(ctx, outcome); err != nil {
			return nil, domain.ErrLearningStoreUnavailable
		}
		if err := t.similarity.Index(ctx, outcome); err != nil {
			// Similarity indexing is best-effort, never fatal.
			t.logger.Warn("similarity index failed", "workflow_id", state.WorkflowID, "error", err)
		}

		records = append(records, outcome)
	}

	state.Learned = true
	state.UpdatedAt = now
	return records, nil
}
