// SPDX-License-Identifier: Apache-2.0

package finance

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestEvaluateAllUpfront(t *testing.T) {
	// $100/mo on demand, 40% discount, 12-month all-upfront term:
	// upfront = 100 * 0.6 * 12 = 720, every month saves the full $100
	// on-demand bill, so break-even lands at month 7.2.
	a := Evaluate(CommitmentPlan{
		OnDemandCost: 100,
		DiscountRate: 0.40,
		TermMonths:   12,
		AllUpfront:   true,
	}, 0.05)

	if !almostEqual(a.UpfrontCost, 720) {
		t.Fatalf("expected upfront 720 got %v", a.UpfrontCost)
	}
	if !almostEqual(a.MonthlySavings, 100) {
		t.Fatalf("expected monthly savings 100 got %v", a.MonthlySavings)
	}
	if !almostEqual(a.BreakEvenMonths, 7.2) {
		t.Fatalf("expected break-even 7.2 got %v", a.BreakEvenMonths)
	}
	if !almostEqual(a.TotalReturn, 1200) {
		t.Fatalf("expected total return 1200 got %v", a.TotalReturn)
	}
	if !almostEqual(a.ROIPct, (1200-720)/720*100) {
		t.Fatalf("expected ROI %.4f got %v", (1200-720)/720*100, a.ROIPct)
	}
	if a.NPV <= 0 || a.NPV >= 1200-720 {
		t.Fatalf("expected NPV in (0, 480), got %v", a.NPV)
	}
}

func TestEvaluateNoUpfront(t *testing.T) {
	a := Evaluate(CommitmentPlan{
		OnDemandCost: 200,
		DiscountRate: 0.25,
		TermMonths:   12,
	}, 0.05)

	if !almostEqual(a.UpfrontCost, 0) {
		t.Fatalf("expected no upfront cost got %v", a.UpfrontCost)
	}
	if !almostEqual(a.MonthlySavings, 50) {
		t.Fatalf("expected monthly savings 50 got %v", a.MonthlySavings)
	}
	if !almostEqual(a.BreakEvenMonths, 0) {
		t.Fatalf("expected immediate break-even got %v", a.BreakEvenMonths)
	}
	if a.ROIPct != 0 {
		t.Fatalf("expected ROI 0 without investment, got %v", a.ROIPct)
	}
	if a.NPV <= 0 {
		t.Fatalf("expected positive NPV got %v", a.NPV)
	}
}

func TestEvaluateDefaultsAnnualRate(t *testing.T) {
	plan := CommitmentPlan{OnDemandCost: 100, DiscountRate: 0.30, TermMonths: 12, AllUpfront: true}
	withDefault := Evaluate(plan, 0)
	explicit := Evaluate(plan, DefaultAnnualDiscountRate)

	if !almostEqual(withDefault.NPV, explicit.NPV) {
		t.Fatalf("expected default annual rate %v, NPV %v vs %v", DefaultAnnualDiscountRate, withDefault.NPV, explicit.NPV)
	}
}

func TestBreakEvenMonths(t *testing.T) {
	if got := BreakEvenMonths(720, 100); !almostEqual(got, 7.2) {
		t.Fatalf("expected 7.2 got %v", got)
	}
	if got := BreakEvenMonths(0, 100); got != 0 {
		t.Fatalf("expected 0 for no upfront, got %v", got)
	}
	if got := BreakEvenMonths(720, 0); got != 0 {
		t.Fatalf("expected 0 for no savings, got %v", got)
	}
}

func TestNPV(t *testing.T) {
	// Zero discount rate degenerates to simple arithmetic.
	if got := NPV(100, 50, 4, 0); !almostEqual(got, 100) {
		t.Fatalf("expected 100 got %v", got)
	}

	// Discounting reduces the value of future savings.
	discounted := NPV(100, 50, 4, 0.01)
	if discounted >= 100 {
		t.Fatalf("expected discounted NPV below 100, got %v", discounted)
	}
}

func TestROIPct(t *testing.T) {
	if got := ROIPct(1200, 720); !almostEqual(got, 66.666667) {
		t.Fatalf("expected ~66.67 got %v", got)
	}
	if got := ROIPct(1200, 0); got != 0 {
		t.Fatalf("expected 0 without investment, got %v", got)
	}
}

func TestRiskAdjusted(t *testing.T) {
	if got := RiskAdjusted(100, 0.85); !almostEqual(got, 85) {
		t.Fatalf("expected 85 got %v", got)
	}
}
