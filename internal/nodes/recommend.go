// SPDX-License-Identifier: Apache-2.0

package nodes

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/finance"
	"github.com/google/uuid"
)

const (
	spotDiscountRate     = 0.70
	reservedDiscountRate = 0.40
	reservedTermMonths   = 12
)

// Recommend turns analysis opportunities into ranked candidate changes,
// scored with the scoring-weights version pinned at run start.
func (l *Library) Recommend(ctx context.Context, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	if state.Analysis == nil || len(state.Analysis.Opportunities) == 0 {
		return nil, domain.ErrInsufficientData
	}

	weights, err := l.pinnedWeights(ctx, state)
	if err != nil {
		return nil, err
	}

	var recs []domain.Recommendation
	for _, opp := range state.Analysis.Opportunities {
		rec, ok := l.candidateFor(state.WorkflowType, opp)
		if !ok {
			continue
		}
		rec.ID = uuid.New()
		rec.ConfidenceScore = confidenceScore(opp)
		rec.RiskAdjustedSavings = finance.RiskAdjusted(rec.EstimatedSavings, rec.RiskLevel.Multiplier())
		rec.BreakEvenMonths = finance.BreakEvenMonths(rec.UpfrontCost, rec.EstimatedSavings)
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil, domain.ErrInsufficientData
	}

	scoreAndRank(recs, weights)
	state.Recommendations = recs

	l.deps.Events.Emit(ctx, state.WorkflowID, domain.EventRecommendationCreated, map[string]any{
		"count":           len(recs),
		"top_priority":    recs[0].Priority,
		"weights_version": weights.Version,
	})
	l.deps.Logger.Info("recommendations generated",
		"workflow_id", state.WorkflowID,
		"count", len(recs),
		"weights_version", weights.Version,
	)
	return state, nil
}

// pinnedWeights returns the weights version this run started with,
// pinning the current version on first use. In-flight runs never pick up
// a newer version mid-run.
func (l *Library) pinnedWeights(ctx context.Context, state *domain.WorkflowState) (domain.ScoringWeights, error) {
	if state.WeightsVersion > 0 {
		return l.deps.Weights.At(ctx, state.WeightsVersion)
	}

	weights, err := l.deps.Weights.Current(ctx)
	if err != nil {
		return domain.ScoringWeights{}, fmt.Errorf("load scoring weights: %w", err)
	}
	state.WeightsVersion = weights.Version
	return weights, nil
}

func (l *Library) candidateFor(workflowType domain.WorkflowType, opp domain.Opportunity) (domain.Recommendation, bool) {
	rec := domain.Recommendation{
		ResourceID: opp.ResourceID,
		Pattern:    opp.Pattern,
	}

	switch workflowType {
	case domain.TypeSpotMigration:
		if opp.Pattern == domain.PatternDeclining {
			return rec, false
		}
		rec.Action = "migrate-to-spot"
		rec.TargetConfig = map[string]string{"lifecycle": "spot"}
		rec.EstimatedSavings = opp.MonthlyCost * spotDiscountRate
		rec.RiskLevel = domain.RiskHigh
		if opp.Pattern == domain.PatternSteady {
			rec.RiskLevel = domain.RiskMedium
		}
		return rec, true

	case domain.TypeReservedInstance:
		if opp.Kind != domain.OpportunityOnDemandStable {
			return rec, false
		}
		analysis := finance.Evaluate(finance.CommitmentPlan{
			OnDemandCost: opp.MonthlyCost,
			DiscountRate: reservedDiscountRate,
			TermMonths:   reservedTermMonths,
			AllUpfront:   true,
		}, l.deps.AnnualDiscountRate)
		rec.Action = "purchase-reserved"
		rec.TargetConfig = map[string]string{"commitment": "reserved-12m"}
		rec.EstimatedSavings = opp.MonthlyCost - analysis.UpfrontCost/reservedTermMonths
		rec.UpfrontCost = analysis.UpfrontCost
		rec.RiskLevel = domain.RiskLow
		return rec, true

	case domain.TypeRightSizing:
		if opp.Kind != domain.OpportunityOversized && opp.Kind != domain.OpportunityIdle {
			return rec, false
		}
		rec.Action = "rightsize"
		rec.TargetConfig = map[string]string{"size_step": "-1"}
		rec.EstimatedSavings = opp.MonthlyCost * 0.5
		rec.RiskLevel = domain.RiskMedium
		return rec, true

	default: // TypeCostOptimization considers everything.
		switch opp.Kind {
		case domain.OpportunityIdle:
			rec.Action = "stop-idle"
			rec.TargetConfig = map[string]string{"state": "stopped"}
			rec.EstimatedSavings = opp.MonthlyCost
			rec.RiskLevel = domain.RiskLow
		case domain.OpportunityOversized:
			rec.Action = "rightsize"
			rec.TargetConfig = map[string]string{"size_step": "-1"}
			rec.EstimatedSavings = opp.MonthlyCost * 0.5
			rec.RiskLevel = domain.RiskMedium
		default:
			rec.Action = "purchase-reserved"
			rec.TargetConfig = map[string]string{"commitment": "reserved-12m"}
			rec.EstimatedSavings = opp.MonthlyCost * reservedDiscountRate
			rec.RiskLevel = domain.RiskLow
		}
		return rec, true
	}
}

// confidenceScore derives trust in a savings prediction from usage
// stability: steady, low-variance, high-uptime workloads approach 1.0;
// seasonal or declining usage and high variance pull it toward 0.
func confidenceScore(opp domain.Opportunity) float64 {
	base := 0.5*opp.UptimeRatio + 0.5*(1-math.Min(opp.UsageVariance, 1))

	factor := 1.0
	switch opp.Pattern {
	case domain.PatternGrowing:
		factor = 0.85
	case domain.PatternSeasonal, domain.PatternDeclining:
		factor = 0.60
	}

	score := base * factor
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// scoreAndRank computes each candidate's weighted priority and sorts the
// slice best first.
func scoreAndRank(recs []domain.Recommendation, weights domain.ScoringWeights) {
	maxSavings := 0.0
	for _, rec := range recs {
		if rec.EstimatedSavings > maxSavings {
			maxSavings = rec.EstimatedSavings
		}
	}

	for i := range recs {
		roiScore := 0.0
		if maxSavings > 0 {
			roiScore = recs[i].RiskAdjustedSavings / maxSavings
		}
		safetyScore := recs[i].RiskLevel.Multiplier()

		urgency := 0.0
		if recs[i].BreakEvenMonths > 0 {
			urgency = 1 / (1 + recs[i].BreakEvenMonths/reservedTermMonths)
		} else if recs[i].EstimatedSavings > 0 {
			urgency = 1 // immediate payback
		}

		recs[i].Priority = weights.ROI*roiScore +
			weights.Risk*safetyScore +
			weights.Urgency*urgency +
			weights.Confidence*recs[i].ConfidenceScore
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority > recs[j].Priority
	})
}
