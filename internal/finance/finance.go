// SPDX-License-Identifier: Apache-2.0

// Package finance holds the commitment-pricing math used by the recommend
// node: savings, break-even, ROI and NPV for discount commitments such as
// reserved instances and savings plans.
package finance

import "math"

const DefaultAnnualDiscountRate = 0.05

// CommitmentPlan describes one candidate pricing commitment for a
// resource currently billed on demand.
type CommitmentPlan struct {
	OnDemandCost float64 // monthly USD at on-demand pricing
	DiscountRate float64 // commitment discount, 0..1
	TermMonths   int
	AllUpfront   bool
}

type CommitmentAnalysis struct {
	UpfrontCost     float64
	MonthlySavings  float64
	BreakEvenMonths float64
	TotalReturn     float64
	ROIPct          float64
	NPV             float64
}

// Evaluate prices a commitment plan.
//
// All-upfront: the full discounted term is paid at signing, after which
// the entire on-demand bill is avoided each month. No-upfront: nothing is
// paid at signing and the monthly bill drops by the discount.
func Evaluate(plan CommitmentPlan, annualRate float64) CommitmentAnalysis {
	if annualRate <= 0 {
		annualRate = DefaultAnnualDiscountRate
	}

	var a CommitmentAnalysis
	if plan.AllUpfront {
		a.UpfrontCost = plan.OnDemandCost * (1 - plan.DiscountRate) * float64(plan.TermMonths)
		a.MonthlySavings = plan.OnDemandCost
	} else {
		a.MonthlySavings = plan.OnDemandCost * plan.DiscountRate
	}

	a.BreakEvenMonths = BreakEvenMonths(a.UpfrontCost, a.MonthlySavings)
	a.TotalReturn = a.MonthlySavings * float64(plan.TermMonths)

	if a.UpfrontCost > 0 {
		a.ROIPct = (a.TotalReturn - a.UpfrontCost) / a.UpfrontCost * 100
	}

	a.NPV = NPV(a.UpfrontCost, a.MonthlySavings, plan.TermMonths, annualRate/12)
	return a
}

// BreakEvenMonths is upfront/monthly, 0 when there is no upfront cost.
func BreakEvenMonths(upfrontCost, monthlySavings float64) float64 {
	if upfrontCost <= 0 || monthlySavings <= 0 {
		return 0
	}
	return upfrontCost / monthlySavings
}

// NPV discounts the monthly cash flow over the term at monthlyRate and
// subtracts the upfront investment.
func NPV(upfrontCost, monthlyCashFlow float64, termMonths int, monthlyRate float64) float64 {
	npv := -upfrontCost
	for m := 1; m <= termMonths; m++ {
		npv += monthlyCashFlow / math.Pow(1+monthlyRate, float64(m))
	}
	return npv
}

// ROIPct is (totalReturn - investment) / investment * 100.
func ROIPct(totalReturn, investment float64) float64 {
	if investment <= 0 {
		return 0
	}
	return (totalReturn - investment) / investment * 100
}

// RiskAdjusted discounts estimated savings by a risk multiplier.
func RiskAdjusted(savings, multiplier float64) float64 {
	return savings * multiplier
}
