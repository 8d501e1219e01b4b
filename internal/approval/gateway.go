// SPDX-License-Identifier: Apache-2.0

// Package approval decides whether a recommendation set needs human
// sign-off before execution.
package approval

import (
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/cloudtrim/cloudtrim/internal/domain"
)

// Policy holds the thresholds one workflow type is gated on. Zero fields
// in a per-type override inherit the default policy.
type Policy struct {
	// SavingsThreshold is the monthly USD amount at or above which a
	// recommendation always needs approval.
	SavingsThreshold float64
	// ConfidenceThreshold is the confidence below which a recommendation
	// always needs approval.
	ConfidenceThreshold float64
	// MaxAutoRisk is the highest risk level that may auto-approve.
	MaxAutoRisk domain.RiskLevel
	// Timeout is how long a pending decision may wait before it is
	// treated as rejected.
	Timeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		SavingsThreshold:    500,
		ConfidenceThreshold: 0.70,
		MaxAutoRisk:         domain.RiskLow,
		Timeout:             24 * time.Hour,
	}
}

// Gateway evaluates recommendations against a default policy plus
// per-workflow-type overrides.
type Gateway struct {
	defaults Policy
	policies map[domain.WorkflowType]Policy
}

// NewGateway merges each override onto the defaults: set fields win,
// zero fields inherit.
func NewGateway(defaults Policy, overrides map[domain.WorkflowType]Policy) (*Gateway, error) {
	merged := make(map[domain.WorkflowType]Policy, len(overrides))
	for workflowType, override := range overrides {
		policy := override
		if err := mergo.Merge(&policy, defaults); err != nil {
			return nil, fmt.Errorf("merge policy for %s: %w", workflowType, err)
		}
		merged[workflowType] = policy
	}
	return &Gateway{defaults: defaults, policies: merged}, nil
}

func (g *Gateway) PolicyFor(workflowType domain.WorkflowType) Policy {
	if p, ok := g.policies[workflowType]; ok {
		return p
	}
	return g.defaults
}

// Requires reports whether a single recommendation needs human approval:
// high savings, low confidence or elevated risk each force the gate.
func (g *Gateway) Requires(workflowType domain.WorkflowType, rec domain.Recommendation) bool {
	p := g.PolicyFor(workflowType)

	if rec.EstimatedSavings >= p.SavingsThreshold {
		return true
	}
	if rec.ConfidenceScore < p.ConfidenceThreshold {
		return true
	}
	if riskRank(rec.RiskLevel) > riskRank(p.MaxAutoRisk) {
		return true
	}
	return false
}

// Evaluate gates a whole run: one recommendation needing sign-off puts
// the run in PENDING; an empty or fully auto-approvable set passes with
// NOT_REQUIRED.
func (g *Gateway) Evaluate(state *domain.WorkflowState) domain.ApprovalStatus {
	for _, rec := range state.Recommendations {
		if g.Requires(state.WorkflowType, rec) {
			return domain.ApprovalPending
		}
	}
	return domain.ApprovalNotRequired
}

func riskRank(r domain.RiskLevel) int {
	switch r {
	case domain.RiskHigh:
		return 3
	case domain.RiskMedium:
		return 2
	default:
		return 1
	}
}
