// SPDX-License-Identifier: Apache-2.0

package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/metrics"
)

const (
	// adjustmentStep bounds how far any single learning cycle can move a
	// weight, so one bad batch cannot swing future scoring.
	adjustmentStep = 0.05

	minOutcomesForAdjustment = 10
	lowSuccessRate           = 0.70
	lowAccuracy              = 0.80
)

// Improver runs the on-demand learning cycle: aggregate recent outcomes,
// derive insights and append an adjusted weights version.
type Improver struct {
	outcomes OutcomeStore
	weights  WeightsStore
	logger   *slog.Logger

	// RecentWindow is how many recent outcomes a cycle considers.
	RecentWindow int
}

func NewImprover(outcomes OutcomeStore, weights WeightsStore, logger *slog.Logger) *Improver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Improver{outcomes: outcomes, weights: weights, logger: logger, RecentWindow: 200}
}

// RunCycle executes one learning cycle. Weight adjustments stay bounded:
// each nudge is at most adjustmentStep and the result is renormalized to
// sum 1.0 with every weight in [0,1].
func (im *Improver) RunCycle(ctx context.Context) (domain.LearningReport, error) {
	records, err := im.outcomes.Recent(ctx, im.RecentWindow)
	if err != nil {
		return domain.LearningReport{}, domain.ErrLearningStoreUnavailable
	}

	current, err := im.weights.Current(ctx)
	if err != nil {
		return domain.LearningReport{}, err
	}

	insights, successRate, avgAccuracy := Aggregate(records)
	report := domain.LearningReport{
		Outcomes:      len(records),
		SuccessRate:   successRate,
		AvgAccuracy:   avgAccuracy,
		Insights:      insights,
		WeightsBefore: current,
		WeightsAfter:  current,
		RanAt:         time.Now().UTC(),
	}

	if len(records) < minOutcomesForAdjustment {
		im.logger.Info("learning cycle: too few outcomes to adjust weights",
			"outcomes", len(records),
			"min", minOutcomesForAdjustment,
		)
		return report, nil
	}

	adjusted, reasons := adjust(current, insights, avgAccuracy)
	if len(reasons) == 0 {
		im.logger.Info("learning cycle: no adjustment needed",
			"outcomes", len(records),
			"success_rate", successRate,
			"avg_accuracy", avgAccuracy,
		)
		return report, nil
	}

	adjusted.Reason = strings.Join(reasons, "; ")
	saved, err := im.weights.Save(ctx, adjusted)
	if err != nil {
		return domain.LearningReport{}, fmt.Errorf("save adjusted weights: %w", err)
	}
	metrics.SetWeightsVersion(saved.Version)

	im.logger.Info("scoring weights adjusted",
		"version", saved.Version,
		"roi", saved.ROI,
		"risk", saved.Risk,
		"urgency", saved.Urgency,
		"confidence", saved.Confidence,
		"reason", saved.Reason,
	)

	report.WeightsAfter = saved
	report.WeightsChanged = true
	return report, nil
}

// adjust nudges weights toward what the outcomes justify. High-risk
// under-performance raises the risk weight; systematic over-prediction
// raises the confidence weight at ROI's expense.
func adjust(w domain.ScoringWeights, insights []domain.Insight, avgAccuracy float64) (domain.ScoringWeights, []string) {
	var reasons []string

	for _, insight := range insights {
		if insight.Dimension != "risk" || insight.Key != string(domain.RiskHigh) {
			continue
		}
		if insight.Outcomes >= minOutcomesForAdjustment/2 && insight.SuccessRate < lowSuccessRate {
			w.Risk = clamp01(w.Risk + adjustmentStep)
			w.ROI = clamp01(w.ROI - adjustmentStep)
			reasons = append(reasons, fmt.Sprintf("high-risk success rate %.0f%% below %.0f%%", insight.SuccessRate*100, lowSuccessRate*100))
		}
	}

	if avgAccuracy < lowAccuracy {
		w.Confidence = clamp01(w.Confidence + adjustmentStep)
		w.ROI = clamp01(w.ROI - adjustmentStep)
		reasons = append(reasons, fmt.Sprintf("average accuracy %.2f below %.2f", avgAccuracy, lowAccuracy))
	}

	if len(reasons) == 0 {
		return w, nil
	}
	return w.Normalize(), reasons
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
