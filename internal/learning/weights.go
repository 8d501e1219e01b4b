// SPDX-License-Identifier: Apache-2.0

// Package learning closes the feedback loop: it records outcomes,
// aggregates them into insights and adjusts the scoring weights future
// recommend nodes consume.
package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
)

// WeightsStore is versioned storage for scoring weights. Readers snapshot
// a version at run start; only the learning cycle appends new versions.
type WeightsStore interface {
	Current(ctx context.Context) (domain.ScoringWeights, error)
	At(ctx context.Context, version int64) (domain.ScoringWeights, error)
	History(ctx context.Context) ([]domain.ScoringWeights, error)
	// Save validates and appends a new version atomically.
	Save(ctx context.Context, weights domain.ScoringWeights) (domain.ScoringWeights, error)
	// Revert appends a new version copying the values of an older one,
	// so a bad adjustment is undone without rewriting history.
	Revert(ctx context.Context, version int64) (domain.ScoringWeights, error)
}

// MemoryWeightsStore keeps weight versions in process memory behind a
// read-mostly lock.
type MemoryWeightsStore struct {
	mu      sync.RWMutex
	history []domain.ScoringWeights
}

func NewMemoryWeightsStore() *MemoryWeightsStore {
	return &MemoryWeightsStore{history: []domain.ScoringWeights{domain.DefaultScoringWeights()}}
}

func (s *MemoryWeightsStore) Current(ctx context.Context) (domain.ScoringWeights, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[len(s.history)-1], nil
}

func (s *MemoryWeightsStore) At(ctx context.Context, version int64) (domain.ScoringWeights, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.history {
		if w.Version == version {
			return w, nil
		}
	}
	return domain.ScoringWeights{}, fmt.Errorf("weights version %d not found", version)
}

func (s *MemoryWeightsStore) History(ctx context.Context) ([]domain.ScoringWeights, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ScoringWeights(nil), s.history...), nil
}

func (s *MemoryWeightsStore) Save(ctx context.Context, weights domain.ScoringWeights) (domain.ScoringWeights, error) {
	if err := weights.Validate(); err != nil {
		return domain.ScoringWeights{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	weights.Version = s.history[len(s.history)-1].Version + 1
	weights.UpdatedAt = time.Now().UTC()
	s.history = append(s.history, weights)
	return weights, nil
}

func (s *MemoryWeightsStore) Revert(ctx context.Context, version int64) (domain.ScoringWeights, error) {
	old, err := s.At(ctx, version)
	if err != nil {
		return domain.ScoringWeights{}, err
	}
	old.Reason = fmt.Sprintf("revert to version %d", version)
	return s.Save(ctx, old)
}
