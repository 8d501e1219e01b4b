// SPDX-License-Identifier: Apache-2.0

package learning

import (
	"context"

	"github.com/cloudtrim/cloudtrim/internal/domain"
)

// SimilarCase is a past outcome resembling a current candidate.
type SimilarCase struct {
	Outcome    domain.OutcomeRecord `json:"outcome"`
	Similarity float64              `json:"similarity"`
}

// SimilarityIndex finds past cases resembling a candidate
// recommendation. Backed by an external vector store when configured;
// the engine only ever depends on this interface and degrades to the
// no-op implementation when none is wired.
type SimilarityIndex interface {
	Index(ctx context.Context, outcome domain.OutcomeRecord) error
	FindSimilar(ctx context.Context, rec domain.Recommendation, k int) ([]SimilarCase, error)
}

type NoopSimilarityIndex struct{}

func (NoopSimilarityIndex) Index(ctx context.Context, outcome domain.OutcomeRecord) error {
	return nil
}

func (NoopSimilarityIndex) FindSimilar(ctx context.Context, rec domain.Recommendation, k int) ([]SimilarCase, error) {
	return nil, nil
}
