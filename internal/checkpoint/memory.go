// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore keeps checkpoints in process memory. Used for dry-runs and
// tests; state does not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID][]Record)}
}

func (m *MemoryStore) Put(ctx context.Context, state *domain.WorkflowState) (int64, error) {
	blob, err := encodeState(state)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.records[state.WorkflowID]
	version := int64(1)
	if n := len(history); n > 0 {
		version = history[n-1].Version + 1
	}

	m.records[state.WorkflowID] = append(history, Record{
		WorkflowID:   state.WorkflowID,
		Version:      version,
		State:        blob,
		WorkflowType: state.WorkflowType,
		UpdatedAt:    time.Now().UTC(),
	})
	return version, nil
}

func (m *MemoryStore) Latest(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowState, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.records[workflowID]
	if len(history) == 0 {
		return nil, 0, ErrNotFound
	}

	rec := history[len(history)-1]
	state, err := decodeState(rec.State)
	if err != nil {
		return nil, 0, err
	}
	return state, rec.Version, nil
}

func (m *MemoryStore) At(ctx context.Context, workflowID uuid.UUID, version int64) (*domain.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records[workflowID] {
		if rec.Version == version {
			return decodeState(rec.State)
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Versions(ctx context.Context, workflowID uuid.UUID) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.records[workflowID]
	versions := make([]int64, 0, len(history))
	for _, rec := range history {
		versions = append(versions, rec.Version)
	}
	return versions, nil
}

func (m *MemoryStore) Delete(ctx context.Context, workflowID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, workflowID)
	return nil
}
