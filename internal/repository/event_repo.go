// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudtrim/cloudtrim/internal/domain"
)

type EventRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewEventRepository(pool *pgxpool.Pool, logger *slog.Logger) *EventRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *EventRepository) Append(ctx context.Context, workflowID uuid.UUID, eventType string, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO events (id, workflow_id, type, payload)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), workflowID, eventType, payload,
	)
	if err != nil {
		r.logger.Error("append event failed",
			"workflow_id", workflowID,
			"event", eventType,
			"error", err,
		)
		return err
	}
	return nil
}

// Emit adapts the repository into an event sink. Sinks must not fail a
// run, so append errors are logged and dropped.
func (r *EventRepository) Emit(ctx context.Context, workflowID uuid.UUID, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("event payload marshal failed",
			"workflow_id", workflowID,
			"event", eventType,
			"error", err,
		)
		return
	}
	_ = r.Append(ctx, workflowID, eventType, raw)
}

func (r *EventRepository) ListEventsAfter(ctx context.Context, workflowID uuid.UUID, afterSeq int64) ([]domain.EventRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, seq, workflow_id, type, payload, created_at
		FROM events
		WHERE workflow_id=$1
		  AND seq > $2
		ORDER BY seq ASC
	`,
		workflowID,
		afterSeq,
	)
	if err != nil {
		r.logger.Error("list events query failed",
			"workflow_id", workflowID,
			"error", err,
		)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.EventRecord, 0, 8)
	for rows.Next() {
		var ev domain.EventRecord
		if err := rows.Scan(
			&ev.ID,
			&ev.Seq,
			&ev.WorkflowID,
			&ev.Type,
			&ev.Payload,
			&ev.CreatedAt,
		); err != nil {
			r.logger.Error("scan event row failed",
				"workflow_id", workflowID,
				"error", err,
			)
			return nil, err
		}
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("events rows iteration failed",
			"workflow_id", workflowID,
			"error", err,
		)
		return nil, err
	}

	return out, nil
}

func (r *EventRepository) ResolveCursorByEventID(ctx context.Context, workflowID uuid.UUID, eventID uuid.UUID) (int64, error) {
	var seq int64
	if err := r.pool.QueryRow(ctx, `
		SELECT seq
		FROM events
		WHERE id=$1
		  AND workflow_id=$2
	`,
		eventID,
		workflowID,
	).Scan(&seq); err != nil {
		r.logger.Error("resolve event cursor failed",
			"workflow_id", workflowID,
			"event_id", eventID,
			"error", err,
		)
		return 0, err
	}

	return seq, nil
}
