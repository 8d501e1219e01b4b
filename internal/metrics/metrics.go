// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	workflowsTotalCounter    *prometheus.CounterVec
	nodeDurationMetric       *prometheus.HistogramVec
	rolloutPhasesCounter     *prometheus.CounterVec
	degradationCounter       prometheus.Counter
	approvalDecisionsCounter *prometheus.CounterVec
	outcomeAccuracyMetric    prometheus.Histogram
	weightsVersionGauge      prometheus.Gauge
	checkpointWriteLatency   prometheus.Histogram
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		workflowsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflows_total",
				Help: "Total number of workflow terminal transitions by status.",
			},
			[]string{"status"},
		)

		nodeDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "node_execution_duration_seconds",
				Help:    "Duration of workflow node executions in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		)

		rolloutPhasesCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollout_phases_total",
				Help: "Total number of completed rollout phases by outcome.",
			},
			[]string{"outcome"},
		)

		degradationCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quality_degradations_total",
				Help: "Total number of degradation triggers during rollouts.",
			},
		)

		approvalDecisionsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approval_decisions_total",
				Help: "Total number of approval gate outcomes by decision.",
			},
			[]string{"decision"},
		)

		outcomeAccuracyMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "outcome_accuracy_ratio",
				Help:    "Actual vs predicted savings ratio of recorded outcomes.",
				Buckets: []float64{0, 0.25, 0.5, 0.75, 0.9, 1.0, 1.1, 1.25, 1.5, 2.0},
			},
		)

		weightsVersionGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scoring_weights_version",
				Help: "Currently active scoring weights version.",
			},
		)

		checkpointWriteLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "checkpoint_write_latency_seconds",
				Help:    "Latency of checkpoint writes in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		prometheus.MustRegister(
			workflowsTotalCounter,
			nodeDurationMetric,
			rolloutPhasesCounter,
			degradationCounter,
			approvalDecisionsCounter,
			outcomeAccuracyMetric,
			weightsVersionGauge,
			checkpointWriteLatency,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, status := range []string{
			"PENDING", "RUNNING", "WAITING_APPROVAL", "SUCCEEDED", "FAILED", "CANCELED",
		} {
			workflowsTotalCounter.WithLabelValues(status)
		}
		for _, outcome := range []string{"proceed", "degraded"} {
			rolloutPhasesCounter.WithLabelValues(outcome)
		}
		for _, decision := range []string{"auto", "required", "approved", "rejected", "timeout"} {
			approvalDecisionsCounter.WithLabelValues(decision)
		}
	})
}

func IncWorkflowStatus(status string) {
	Init()
	workflowsTotalCounter.WithLabelValues(status).Inc()
}

func ObserveNodeDuration(node string, d time.Duration) {
	Init()
	nodeDurationMetric.WithLabelValues(node).Observe(d.Seconds())
}

func IncRolloutPhase(outcome string) {
	Init()
	rolloutPhasesCounter.WithLabelValues(outcome).Inc()
}

func IncDegradation() {
	Init()
	degradationCounter.Inc()
}

func IncApprovalDecision(decision string) {
	Init()
	approvalDecisionsCounter.WithLabelValues(decision).Inc()
}

func ObserveOutcomeAccuracy(ratio float64) {
	Init()
	outcomeAccuracyMetric.Observe(ratio)
}

func SetWeightsVersion(version int64) {
	Init()
	weightsVersionGauge.Set(float64(version))
}

func ObserveCheckpointWriteLatency(d time.Duration) {
	Init()
	checkpointWriteLatency.Observe(d.Seconds())
}
