// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/checkpoint"
	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/metrics"
	"github.com/google/uuid"
)

// Executor drives state through a compiled graph node by node,
// checkpointing after each completed node. A nil store runs ephemeral
// (dry-run) mode: same semantics, nothing persisted.
type Executor struct {
	graph  *Graph
	store  checkpoint.Store
	logger *slog.Logger
}

func NewExecutor(g *Graph, store checkpoint.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{graph: g, store: store, logger: logger}
}

// Saver returns a checkpoint function nodes may use to persist state at
// their own internal boundaries (the rollout controller checkpoints
// between phases). Nil in ephemeral mode.
func Saver(store checkpoint.Store) func(ctx context.Context, state *domain.WorkflowState) error {
	if store == nil {
		return nil
	}
	return func(ctx context.Context, state *domain.WorkflowState) error {
		if _, err := store.Put(ctx, state); err != nil {
			return &domain.PersistenceError{Op: "phase checkpoint", Err: err}
		}
		return nil
	}
}

// Start checkpoints the initial state and runs from the entry node.
func (e *Executor) Start(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	if err := e.save(ctx, state, "initial checkpoint"); err != nil {
		return state, err
	}
	return e.run(ctx, state, e.graph.Entry())
}

// Resume loads the latest checkpoint for workflowID and continues from
// the node implied by the execution log.
func (e *Executor) Resume(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowState, error) {
	if e.store == nil {
		return nil, errors.New("resume requires a checkpoint store")
	}

	state, version, err := e.store.Latest(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	e.logger.Info("resuming workflow",
		"workflow_id", workflowID,
		"checkpoint_version", version,
		"completed_nodes", len(state.ExecutionLog),
	)
	return e.ResumeState(ctx, state)
}

// ResumeState continues a loaded state without re-reading the store.
func (e *Executor) ResumeState(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	if state.Status.Terminal() {
		return state, nil
	}

	next, err := e.graph.NextAfter(state)
	if err != nil {
		return state, err
	}
	if next == End {
		return state, nil
	}
	return e.run(ctx, state, next)
}

func (e *Executor) run(ctx context.Context, state *domain.WorkflowState, node string) (*domain.WorkflowState, error) {
	for node != End {
		// Cooperative cancellation happens only at checkpoint boundaries.
		if err := ctx.Err(); err != nil {
			return state, err
		}

		fn, err := e.graph.node(node)
		if err != nil {
			return state, err
		}

		e.logger.Debug("executing node", "workflow_id", state.WorkflowID, "node", node)
		started := time.Now()
		out, err := fn(ctx, state.Clone())
		metrics.ObserveNodeDuration(node, time.Since(started))

		if errors.Is(err, ErrSuspend) {
			// The node is not complete; keep it out of the execution log
			// so a later resume re-enters it.
			if saveErr := e.save(ctx, out, "suspend checkpoint"); saveErr != nil {
				return out, saveErr
			}
			e.logger.Info("workflow suspended", "workflow_id", out.WorkflowID, "node", node)
			return out, nil
		}
		if err != nil {
			state.Fail(domain.ClassifyFailure(err), err.Error())
			if saveErr := e.save(ctx, state, "failure checkpoint"); saveErr != nil {
				e.logger.Error("failure checkpoint lost", "workflow_id", state.WorkflowID, "error", saveErr)
			}
			e.logger.Error("node failed",
				"workflow_id", state.WorkflowID,
				"node", node,
				"failure_kind", state.FailureKind,
				"error", err,
			)
			return state, err
		}

		state = out
		state.AppendLog(node)

		// An unconfirmed checkpoint is fatal: never advance past it.
		if err := e.save(ctx, state, "node checkpoint"); err != nil {
			return state, err
		}

		node, err = e.graph.next(node, state)
		if err != nil {
			return state, err
		}
	}

	if !state.Status.Terminal() {
		state.Status = domain.WorkflowSuccess
		if err := e.save(ctx, state, "terminal checkpoint"); err != nil {
			return state, err
		}
	}

	metrics.IncWorkflowStatus(string(state.Status))
	return state, nil
}

func (e *Executor) save(ctx context.Context, state *domain.WorkflowState, op string) error {
	if e.store == nil {
		return nil
	}
	started := time.Now()
	version, err := e.store.Put(ctx, state)
	metrics.ObserveCheckpointWriteLatency(time.Since(started))
	if err != nil {
		perr := &domain.PersistenceError{Op: op, Err: err}
		state.Fail(domain.FailurePersistence, perr.Error())
		return perr
	}
	e.logger.Debug("state checkpointed",
		"workflow_id", state.WorkflowID,
		"version", version,
		"op", op,
	)
	return nil
}
