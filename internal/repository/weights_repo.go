// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudtrim/cloudtrim/internal/domain"
)

// WeightsRepository is versioned scoring-weights storage. Versions are
// append-only; version numbers are allocated under a row lock so two
// concurrent learning cycles cannot collide.
type WeightsRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewWeightsRepository(pool *pgxpool.Pool, logger *slog.Logger) *WeightsRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeightsRepository{
		pool:   pool,
		logger: logger,
	}
}

const weightsColumns = `version, roi_weight, risk_weight, urgency_weight, confidence_weight, reason, updated_at`

func scanWeights(row pgx.Row) (domain.ScoringWeights, error) {
	var w domain.ScoringWeights
	err := row.Scan(
		&w.Version,
		&w.ROI,
		&w.Risk,
		&w.Urgency,
		&w.Confidence,
		&w.Reason,
		&w.UpdatedAt,
	)
	return w, err
}

func (r *WeightsRepository) Current(ctx context.Context) (domain.ScoringWeights, error) {
	w, err := scanWeights(r.pool.QueryRow(ctx, `
		SELECT `+weightsColumns+`
		FROM scoring_weights
		ORDER BY version DESC
		LIMIT 1
	`))
	if errors.Is(err, pgx.ErrNoRows) {
		// Seed lazily so a fresh database starts from the defaults.
		return r.Save(ctx, domain.DefaultScoringWeights())
	}
	if err != nil {
		r.logger.Error("current weights query failed", "error", err)
		return domain.ScoringWeights{}, err
	}
	return w, nil
}

func (r *WeightsRepository) At(ctx context.Context, version int64) (domain.ScoringWeights, error) {
	w, err := scanWeights(r.pool.QueryRow(ctx, `
		SELECT `+weightsColumns+`
		FROM scoring_weights
		WHERE version=$1
	`, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScoringWeights{}, fmt.Errorf("weights version %d not found", version)
	}
	if err != nil {
		r.logger.Error("weights at version query failed", "version", version, "error", err)
		return domain.ScoringWeights{}, err
	}
	return w, nil
}

func (r *WeightsRepository) History(ctx context.Context) ([]domain.ScoringWeights, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+weightsColumns+`
		FROM scoring_weights
		ORDER BY version ASC
	`)
	if err != nil {
		r.logger.Error("weights history query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScoringWeights
	for rows.Next() {
		w, err := scanWeights(rows)
		if err != nil {
			r.logger.Error("scan weights row failed", "error", err)
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *WeightsRepository) Save(ctx context.Context, weights domain.ScoringWeights) (domain.ScoringWeights, error) {
	if err := weights.Validate(); err != nil {
		return domain.ScoringWeights{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return domain.ScoringWeights{}, err
	}
	defer tx.Rollback(ctx)

	var latest int64
	err = tx.QueryRow(ctx, `
		SELECT version
		FROM scoring_weights
		ORDER BY version DESC
		LIMIT 1
		FOR UPDATE
	`).Scan(&latest)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("read latest weights version failed", "error", err)
		return domain.ScoringWeights{}, err
	}

	weights.Version = latest + 1
	weights.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx, `
		INSERT INTO scoring_weights (`+weightsColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		weights.Version,
		weights.ROI,
		weights.Risk,
		weights.Urgency,
		weights.Confidence,
		weights.Reason,
		weights.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("insert weights failed", "version", weights.Version, "error", err)
		return domain.ScoringWeights{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit weights failed", "version", weights.Version, "error", err)
		return domain.ScoringWeights{}, err
	}

	r.logger.Info("scoring weights saved",
		"version", weights.Version,
		"reason", weights.Reason,
	)
	return weights, nil
}

func (r *WeightsRepository) Revert(ctx context.Context, version int64) (domain.ScoringWeights, error) {
	old, err := r.At(ctx, version)
	if err != nil {
		return domain.ScoringWeights{}, err
	}
	old.Reason = fmt.Sprintf("revert to version %d", version)
	return r.Save(ctx, old)
}
