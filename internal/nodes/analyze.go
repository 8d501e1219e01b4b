// SPDX-License-Identifier: Apache-2.0

package nodes

import (
	"context"
	"math"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/provider"
)

const (
	idleUtilization      = 0.15
	oversizedUtilization = 0.40
	stableUptimeRatio    = 0.95
)

// Analyze pulls the resource inventory and billing data, classifies each
// resource's usage pattern and detects waste opportunities.
func (l *Library) Analyze(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	resources, err := provider.Retry(ctx, l.deps.Logger, "list resources",
		l.deps.RetryAttempts, l.deps.RetryBaseDelay,
		func(ctx context.Context) ([]domain.Resource, error) {
			return l.deps.Collector.ListResources(ctx, state.CustomerID)
		})
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, domain.ErrInsufficientData
	}

	costData, err := provider.Retry(ctx, l.deps.Logger, "get cost data",
		l.deps.RetryAttempts, l.deps.RetryBaseDelay,
		func(ctx context.Context) (domain.CostData, error) {
			return l.deps.Collector.GetCostData(ctx, state.CustomerID, l.deps.CostPeriod)
		})
	if err != nil {
		return nil, err
	}
	if costData.TotalCostUSD <= 0 {
		return nil, domain.ErrInsufficientData
	}

	analysis := &domain.Analysis{
		TotalMonthlyCost: costData.TotalCostUSD,
		AnalyzedAt:       time.Now().UTC(),
	}

	for _, res := range resources {
		if len(res.CPUUtilization) == 0 {
			continue
		}

		avg, cv := usageStats(res.CPUUtilization)
		pattern := classifyPattern(res.CPUUtilization, cv)
		cost := res.OnDemandCost
		if billed, ok := costData.ByResource[res.ID]; ok {
			cost = billed
		}

		opp := domain.Opportunity{
			ResourceID:     res.ID,
			MonthlyCost:    cost,
			AvgUtilization: avg,
			UsageVariance:  cv,
			UptimeRatio:    res.UptimeRatio,
			Pattern:        pattern,
		}

		switch {
		case avg < idleUtilization:
			opp.Kind = domain.OpportunityIdle
		case avg < oversizedUtilization:
			opp.Kind = domain.OpportunityOversized
		case pattern == domain.PatternSteady && res.UptimeRatio >= stableUptimeRatio:
			opp.Kind = domain.OpportunityOnDemandStable
		default:
			continue
		}

		analysis.Opportunities = append(analysis.Opportunities, opp)
		analysis.WasteMonthlyCost += wasteEstimate(opp)
	}

	state.Resources = resources
	state.Analysis = analysis
	state.Status = domain.WorkflowRunning

	l.deps.Logger.Info("analysis complete",
		"workflow_id", state.WorkflowID,
		"resources", len(resources),
		"opportunities", len(analysis.Opportunities),
		"waste_monthly_usd", analysis.WasteMonthlyCost,
	)
	return state, nil
}

func wasteEstimate(opp domain.Opportunity) float64 {
	switch opp.Kind {
	case domain.OpportunityIdle:
		return opp.MonthlyCost
	case domain.OpportunityOversized:
		return opp.MonthlyCost * 0.5
	default:
		// Stable on-demand waste is the foregone commitment discount.
		return opp.MonthlyCost * 0.3
	}
}

// usageStats returns the mean and coefficient of variation of a usage
// series.
func usageStats(series []float64) (avg, cv float64) {
	for _, v := range series {
		avg += v
	}
	avg /= float64(len(series))

	var variance float64
	for _, v := range series {
		variance += (v - avg) * (v - avg)
	}
	variance /= float64(len(series))

	if avg > 0 {
		cv = math.Sqrt(variance) / avg
	}
	return avg, cv
}

// classifyPattern buckets a usage series: a clear sustained slope is
// growth or decline, high variation without a trend is seasonal, and the
// rest is steady.
func classifyPattern(series []float64, cv float64) domain.UsagePattern {
	slope := trendSlope(series)

	const slopeCutoff = 0.005 // per-sample relative change
	switch {
	case slope > slopeCutoff:
		return domain.PatternGrowing
	case slope < -slopeCutoff:
		return domain.PatternDeclining
	case cv > 0.35:
		return domain.PatternSeasonal
	default:
		return domain.PatternSteady
	}
}

// trendSlope is the least-squares slope of the series.
func trendSlope(series []float64) float64 {
	n := float64(len(series))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range series {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
