// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists checkpoints in the checkpoints table. Version
// allocation takes a row lock on the workflow's newest checkpoint, so
// writers to the same workflow serialize while different workflows
// proceed independently.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

func (p *PostgresStore) Put(ctx context.Context, state *domain.WorkflowState) (int64, error) {
	blob, err := encodeState(state)
	if err != nil {
		return 0, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var version int64
	err = tx.QueryRow(ctx, `
		SELECT version FROM checkpoints
		WHERE workflow_id=$1
		ORDER BY version DESC
		LIMIT 1
		FOR UPDATE
	`, state.WorkflowID).Scan(&version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		version = 0
	case err != nil:
		return 0, err
	}
	version++

	_, err = tx.Exec(ctx, `
		INSERT INTO checkpoints (workflow_id, version, state, workflow_type, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		state.WorkflowID,
		version,
		blob,
		state.WorkflowType,
		time.Now().UTC(),
	)
	if err != nil {
		p.logger.Error("checkpoint insert failed",
			"workflow_id", state.WorkflowID,
			"version", version,
			"error", err,
		)
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return version, nil
}

func (p *PostgresStore) Latest(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowState, int64, error) {
	var (
		blob    []byte
		version int64
	)
	err := p.pool.QueryRow(ctx, `
		SELECT state, version FROM checkpoints
		WHERE workflow_id=$1
		ORDER BY version DESC
		LIMIT 1
	`, workflowID).Scan(&blob, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	state, err := decodeState(blob)
	if err != nil {
		return nil, 0, err
	}
	return state, version, nil
}

func (p *PostgresStore) At(ctx context.Context, workflowID uuid.UUID, version int64) (*domain.WorkflowState, error) {
	var blob []byte
	err := p.pool.QueryRow(ctx, `
		SELECT state FROM checkpoints
		WHERE workflow_id=$1 AND version=$2
	`, workflowID, version).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeState(blob)
}

func (p *PostgresStore) Versions(ctx context.Context, workflowID uuid.UUID) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT version FROM checkpoints
		WHERE workflow_id=$1
		ORDER BY version ASC
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (p *PostgresStore) Delete(ctx context.Context, workflowID uuid.UUID) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM checkpoints WHERE workflow_id=$1`,
		workflowID,
	)
	return err
}
