// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// OutcomeRecord compares what a recommendation promised with what it
// delivered. Records are append-only and keyed by (workflow_id,
// recommendation_id) for idempotent delivery.
type OutcomeRecord struct {
	ID               uuid.UUID    `json:"id"`
	WorkflowID       uuid.UUID    `json:"workflow_id"`
	RecommendationID uuid.UUID    `json:"recommendation_id"`
	WorkflowType     WorkflowType `json:"workflow_type"`
	RiskLevel        RiskLevel    `json:"risk_level"`
	Pattern          UsagePattern `json:"pattern"`
	PredictedSavings float64      `json:"predicted_savings"`
	ActualSavings    float64      `json:"actual_savings"`
	Success          bool         `json:"success"`
	Accuracy         float64      `json:"accuracy"`
	RecordedAt       time.Time    `json:"recorded_at"`
}

// ComputeAccuracy is actual/predicted, clamped to 0 when nothing was
// predicted so a zero-savings candidate cannot divide by zero.
func ComputeAccuracy(predicted, actual float64) float64 {
	if predicted <= 0 {
		return 0
	}
	return actual / predicted
}

const weightSumTolerance = 1e-6

// ScoringWeights combine ROI, risk, urgency and confidence into a single
// recommendation priority. Only the learning cycle writes new versions.
type ScoringWeights struct {
	Version    int64     `json:"version"`
	ROI        float64   `json:"roi_weight"`
	Risk       float64   `json:"risk_weight"`
	Urgency    float64   `json:"urgency_weight"`
	Confidence float64   `json:"confidence_weight"`
	UpdatedAt  time.Time `json:"updated_at"`
	Reason     string    `json:"reason,omitempty"`
}

func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Version:    1,
		ROI:        0.40,
		Risk:       0.25,
		Urgency:    0.15,
		Confidence: 0.20,
		UpdatedAt:  time.Now().UTC(),
	}
}

func (w ScoringWeights) Sum() float64 {
	return w.ROI + w.Risk + w.Urgency + w.Confidence
}

func (w ScoringWeights) Validate() error {
	for _, v := range []float64{w.ROI, w.Risk, w.Urgency, w.Confidence} {
		if v < 0 || v > 1 {
			return fmt.Errorf("scoring weight %v outside [0,1]", v)
		}
	}
	if diff := math.Abs(w.Sum() - 1.0); diff > weightSumTolerance {
		return fmt.Errorf("scoring weights sum %.8f, want 1.0", w.Sum())
	}
	return nil
}

// Normalize rescales the weights to sum to exactly 1.0 while keeping
// their relative proportions.
func (w ScoringWeights) Normalize() ScoringWeights {
	sum := w.Sum()
	if sum <= 0 {
		return DefaultScoringWeights()
	}
	w.ROI /= sum
	w.Risk /= sum
	w.Urgency /= sum
	w.Confidence /= sum
	return w
}

// Insight is one pattern-level finding from a learning cycle, e.g.
// "SEASONAL recommendations under-deliver by 23%".
type Insight struct {
	Dimension   string  `json:"dimension"` // "pattern" or "risk"
	Key         string  `json:"key"`
	Outcomes    int     `json:"outcomes"`
	SuccessRate float64 `json:"success_rate"`
	AvgAccuracy float64 `json:"avg_accuracy"`
	Summary     string  `json:"summary"`
}

// LearningReport is the result of one on-demand learning cycle.
type LearningReport struct {
	Outcomes       int            `json:"outcomes"`
	SuccessRate    float64        `json:"success_rate"`
	AvgAccuracy    float64        `json:"avg_accuracy"`
	Insights       []Insight      `json:"insights"`
	WeightsBefore  ScoringWeights `json:"weights_before"`
	WeightsAfter   ScoringWeights `json:"weights_after"`
	WeightsChanged bool           `json:"weights_changed"`
	RanAt          time.Time      `json:"ran_at"`
}
