// SPDX-License-Identifier: Apache-2.0

package domain

import "github.com/google/uuid"

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Multiplier discounts estimated savings by execution risk.
func (r RiskLevel) Multiplier() float64 {
	switch r {
	case RiskMedium:
		return 0.85
	case RiskHigh:
		return 0.70
	default:
		return 1.0
	}
}

// Recommendation is one ranked candidate change produced by the recommend
// node. Priority is the weighted score the current ScoringWeights yield.
type Recommendation struct {
	ID         uuid.UUID `json:"id"`
	ResourceID string    `json:"resource_id"`
	Action     string    `json:"action"`

	// TargetConfig is handed verbatim to the change applier.
	TargetConfig map[string]string `json:"target_config,omitempty"`

	EstimatedSavings    float64 `json:"estimated_savings"` // monthly USD
	UpfrontCost         float64 `json:"upfront_cost"`
	RiskAdjustedSavings float64 `json:"risk_adjusted_savings"`
	BreakEvenMonths     float64 `json:"break_even_months"`

	ConfidenceScore float64      `json:"confidence_score"` // 0..1
	RiskLevel       RiskLevel    `json:"risk_level"`
	Pattern         UsagePattern `json:"pattern"`
	Priority        float64      `json:"priority"`
}

// SavingsBreakdown summarizes a run for the status endpoint.
type SavingsBreakdown struct {
	WorkflowID       uuid.UUID `json:"workflow_id"`
	EstimatedSavings float64   `json:"estimated_savings"`
	ActualSavings    float64   `json:"actual_savings"`
	Recommendations  int       `json:"recommendations"`
	PhasesCompleted  int       `json:"phases_completed"`
}
