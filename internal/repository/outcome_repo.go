// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudtrim/cloudtrim/internal/domain"
)

// OutcomeRepository persists outcome records. The unique key on
// (workflow_id, recommendation_id) makes Record idempotent under
// worker retries.
type OutcomeRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewOutcomeRepository(pool *pgxpool.Pool, logger *slog.Logger) *OutcomeRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutcomeRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *OutcomeRepository) Record(ctx context.Context, rec domain.OutcomeRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO outcomes (
			id, workflow_id, recommendation_id, workflow_type, risk_level,
			pattern, predicted_savings, actual_savings, success, accuracy, recorded_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (workflow_id, recommendation_id) DO NOTHING
	`,
		rec.ID,
		rec.WorkflowID,
		rec.RecommendationID,
		rec.WorkflowType,
		rec.RiskLevel,
		rec.Pattern,
		rec.PredictedSavings,
		rec.ActualSavings,
		rec.Success,
		rec.Accuracy,
		rec.RecordedAt,
	)
	if err != nil {
		r.logger.Error("insert outcome failed",
			"workflow_id", rec.WorkflowID,
			"recommendation_id", rec.RecommendationID,
			"error", err,
		)
		return err
	}
	return nil
}

func (r *OutcomeRepository) Recent(ctx context.Context, limit int) ([]domain.OutcomeRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, workflow_id, recommendation_id, workflow_type, risk_level,
		       pattern, predicted_savings, actual_savings, success, accuracy, recorded_at
		FROM outcomes
		ORDER BY recorded_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		r.logger.Error("recent outcomes query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.OutcomeRecord, 0, limit)
	for rows.Next() {
		var rec domain.OutcomeRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.WorkflowID,
			&rec.RecommendationID,
			&rec.WorkflowType,
			&rec.RiskLevel,
			&rec.Pattern,
			&rec.PredictedSavings,
			&rec.ActualSavings,
			&rec.Success,
			&rec.Accuracy,
			&rec.RecordedAt,
		); err != nil {
			r.logger.Error("scan outcome row failed", "error", err)
			return nil, err
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}
