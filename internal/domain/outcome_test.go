// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"math"
	"testing"
)

func TestComputeAccuracy(t *testing.T) {
	cases := []struct {
		predicted float64
		actual    float64
		want      float64
	}{
		{predicted: 100, actual: 80, want: 0.8},
		{predicted: 100, actual: 120, want: 1.2},
		{predicted: 0, actual: 50, want: 0},
		{predicted: -10, actual: 50, want: 0},
	}

	for _, tc := range cases {
		if got := ComputeAccuracy(tc.predicted, tc.actual); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("ComputeAccuracy(%v, %v): expected %v got %v", tc.predicted, tc.actual, tc.want, got)
		}
	}
}

func TestDefaultScoringWeightsValidate(t *testing.T) {
	if err := DefaultScoringWeights().Validate(); err != nil {
		t.Fatalf("expected default weights valid, got %v", err)
	}
}

func TestScoringWeightsValidateRejectsBadSum(t *testing.T) {
	w := ScoringWeights{ROI: 0.5, Risk: 0.5, Urgency: 0.5, Confidence: 0.5}
	if err := w.Validate(); err == nil {
		t.Fatal("expected sum check to fail")
	}

	w = ScoringWeights{ROI: 1.2, Risk: -0.2, Urgency: 0, Confidence: 0}
	if err := w.Validate(); err == nil {
		t.Fatal("expected range check to fail")
	}
}

func TestScoringWeightsNormalize(t *testing.T) {
	w := ScoringWeights{ROI: 0.8, Risk: 0.5, Urgency: 0.3, Confidence: 0.4}
	n := w.Normalize()

	if math.Abs(n.Sum()-1.0) > 1e-9 {
		t.Fatalf("expected normalized sum 1.0 got %v", n.Sum())
	}
	// Proportions survive the rescale.
	if math.Abs(n.ROI/n.Risk-0.8/0.5) > 1e-9 {
		t.Fatal("expected relative proportions preserved")
	}

	degenerate := ScoringWeights{}
	n = degenerate.Normalize()
	if err := n.Validate(); err != nil {
		t.Fatalf("expected defaults for degenerate weights, got %v", err)
	}
}

func TestRiskMultiplier(t *testing.T) {
	if RiskLow.Multiplier() != 1.0 {
		t.Fatal("expected LOW multiplier 1.0")
	}
	if RiskMedium.Multiplier() != 0.85 {
		t.Fatal("expected MEDIUM multiplier 0.85")
	}
	if RiskHigh.Multiplier() != 0.70 {
		t.Fatal("expected HIGH multiplier 0.70")
	}
}
