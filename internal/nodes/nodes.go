// SPDX-License-Identifier: Apache-2.0

// Package nodes is the workflow node library: pure state transforms for
// analyze, recommend, approval gating, progressive execution, rollback
// and learning, plus the graph wiring that connects them.
package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/approval"
	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/graph"
	"github.com/cloudtrim/cloudtrim/internal/learning"
	"github.com/cloudtrim/cloudtrim/internal/provider"
	"github.com/cloudtrim/cloudtrim/internal/rollout"
	"github.com/google/uuid"
)

const (
	NodeAnalyze      = "analyze"
	NodeRecommend    = "recommend"
	NodeGateApproval = "gate-approval"
	NodeWaitApproval = "wait-approval"
	NodeExecute      = "execute"
	NodeRollback     = "rollback"
	NodeLearn        = "learn"
)

// EventSink receives workflow events. Delivery is fire-and-forget; sinks
// must never fail a run.
type EventSink interface {
	Emit(ctx context.Context, workflowID uuid.UUID, eventType string, payload any)
}

type noopSink struct{}

func (noopSink) Emit(ctx context.Context, workflowID uuid.UUID, eventType string, payload any) {}

type Deps struct {
	Collector provider.Collector
	Applier   provider.ChangeApplier
	Metrics   provider.MetricsProvider
	Approvals provider.ApprovalService

	Gateway *approval.Gateway
	Weights learning.WeightsStore
	Tracker *learning.Tracker

	Rollout rollout.Config
	// Checkpoint persists state between rollout phases; nil in
	// ephemeral mode.
	Checkpoint rollout.Checkpointer

	Events EventSink
	Logger *slog.Logger

	RetryAttempts  int
	RetryBaseDelay time.Duration

	// CostPeriod is the billing window the analyze node requests.
	CostPeriod time.Duration
	// AnnualDiscountRate feeds the NPV math of the recommend node.
	AnnualDiscountRate float64
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Events == nil {
		d.Events = noopSink{}
	}
	if d.CostPeriod <= 0 {
		d.CostPeriod = 30 * 24 * time.Hour
	}
	return d
}

// Library holds the constructed node set for one deployment.
type Library struct {
	deps       Deps
	controller *rollout.Controller
}

func NewLibrary(deps Deps) (*Library, error) {
	deps = deps.withDefaults()

	controller, err := rollout.NewController(deps.Applier, deps.Metrics, deps.Logger, deps.Rollout)
	if err != nil {
		return nil, fmt.Errorf("build rollout controller: %w", err)
	}
	return &Library{deps: deps, controller: controller}, nil
}

// BuildGraph compiles the standard optimization state machine:
//
//	analyze -> recommend -> gate-approval
//	  -> (auto) execute | (manual) wait-approval -> execute | end
//	execute -> (clean) learn | (degraded) rollback -> learn -> end
func (l *Library) BuildGraph() (*graph.Graph, error) {
	return graph.NewBuilder().
		SetEntry(NodeAnalyze).
		AddNode(NodeAnalyze, l.Analyze).
		AddNode(NodeRecommend, l.Recommend).
		AddNode(NodeGateApproval, l.GateApproval).
		AddNode(NodeWaitApproval, l.WaitApproval).
		AddNode(NodeExecute, l.Execute).
		AddNode(NodeRollback, l.Rollback).
		AddNode(NodeLearn, l.Learn).
		AddEdge(NodeAnalyze, NodeRecommend).
		AddEdge(NodeRecommend, NodeGateApproval).
		AddConditionalEdge(NodeGateApproval, routeAfterGate).
		AddConditionalEdge(NodeWaitApproval, routeAfterWait).
		AddConditionalEdge(NodeExecute, routeAfterExecute).
		AddEdge(NodeRollback, NodeLearn).
		AddEdge(NodeLearn, graph.End).
		Compile()
}

func routeAfterGate(state *domain.WorkflowState) string {
	switch state.ApprovalStatus {
	case domain.ApprovalPending:
		return NodeWaitApproval
	case domain.ApprovalRejected:
		return graph.End
	default:
		return NodeExecute
	}
}

func routeAfterWait(state *domain.WorkflowState) string {
	if state.ApprovalStatus == domain.ApprovalApproved {
		return NodeExecute
	}
	// Rejection (including timeout) ends the run without execution.
	return graph.End
}

func routeAfterExecute(state *domain.WorkflowState) string {
	if n := len(state.PhaseResults); n > 0 && state.PhaseResults[n-1].Degraded {
		return NodeRollback
	}
	return NodeLearn
}
