// SPDX-License-Identifier: Apache-2.0

package learning

import (
	"fmt"
	"sort"

	"github.com/cloudtrim/cloudtrim/internal/domain"
)

// Aggregate distills outcome records into overall success rate, average
// accuracy and per-pattern / per-risk insights.
func Aggregate(records []domain.OutcomeRecord) ([]domain.Insight, float64, float64) {
	if len(records) == 0 {
		return nil, 0, 0
	}

	var (
		successes   int
		accuracySum float64
	)
	byPattern := make(map[string][]domain.OutcomeRecord)
	byRisk := make(map[string][]domain.OutcomeRecord)

	for _, rec := range records {
		if rec.Success {
			successes++
		}
		accuracySum += rec.Accuracy
		byPattern[string(rec.Pattern)] = append(byPattern[string(rec.Pattern)], rec)
		byRisk[string(rec.RiskLevel)] = append(byRisk[string(rec.RiskLevel)], rec)
	}

	successRate := float64(successes) / float64(len(records))
	avgAccuracy := accuracySum / float64(len(records))

	var insights []domain.Insight
	insights = append(insights, groupInsights("pattern", byPattern)...)
	insights = append(insights, groupInsights("risk", byRisk)...)

	return insights, successRate, avgAccuracy
}

func groupInsights(dimension string, groups map[string][]domain.OutcomeRecord) []domain.Insight {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	insights := make([]domain.Insight, 0, len(keys))
	for _, key := range keys {
		records := groups[key]

		var successes int
		var accuracySum float64
		for _, rec := range records {
			if rec.Success {
				successes++
			}
			accuracySum += rec.Accuracy
		}

		insight := domain.Insight{
			Dimension:   dimension,
			Key:         key,
			Outcomes:    len(records),
			SuccessRate: float64(successes) / float64(len(records)),
			AvgAccuracy: accuracySum / float64(len(records)),
		}
		insight.Summary = summarize(insight)
		insights = append(insights, insight)
	}
	return insights
}

func summarize(i domain.Insight) string {
	if i.AvgAccuracy < 1 {
		return fmt.Sprintf("%s=%s recommendations under-deliver by %.0f%% (%d outcomes, %.0f%% success)",
			i.Dimension, i.Key, (1-i.AvgAccuracy)*100, i.Outcomes, i.SuccessRate*100)
	}
	return fmt.Sprintf("%s=%s recommendations deliver as predicted (%d outcomes, %.0f%% success)",
		i.Dimension, i.Key, i.Outcomes, i.SuccessRate*100)
}
