// SPDX-License-Identifier: Apache-2.0

package domain

import "time"

// QualityMetrics is one sampled view of workload health during a rollout
// window. Latency and error rate are "higher is worse"; throughput is
// informational only.
type QualityMetrics struct {
	LatencyMS  float64 `json:"latency_ms"`
	ErrorRate  float64 `json:"error_rate"`
	Throughput float64 `json:"throughput"`
}

// RolloutPhase records one progressive-rollout step at a target
// percentage of the resource set.
type RolloutPhase struct {
	Percentage           int            `json:"percentage"`
	MonitorWindowSeconds int            `json:"monitor_window_seconds"`
	Baseline             QualityMetrics `json:"baseline"`
	Observed             QualityMetrics `json:"observed"`
	Degraded             bool           `json:"degraded"`
	DegradationPct       float64        `json:"degradation_pct"`
	DegradedMetric       string         `json:"degraded_metric,omitempty"`
	AppliedResources     []string       `json:"applied_resources,omitempty"`
	StartedAt            time.Time      `json:"started_at"`
	CompletedAt          time.Time      `json:"completed_at"`
}
