// SPDX-License-Identifier: Apache-2.0

package rollout

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/provider"
)

const (
	DefaultDegradationThreshold = 0.05
	DefaultMonitorWindow        = 5 * time.Minute
	DefaultWarmupWindow         = 1 * time.Minute
	DefaultPollInterval         = 10 * time.Second
	DefaultSampleTimeout        = 15 * time.Second
)

// Comparison is the monitor's verdict for one phase window.
type Comparison struct {
	Observed       domain.QualityMetrics
	Degraded       bool
	DegradationPct float64
	Metric         string
}

// Monitor polls live quality metrics during a rollout window and decides
// proceed vs degrade. An unreachable metrics source is treated as
// degraded: without evidence of health the rollout must not continue.
type Monitor struct {
	metrics       provider.MetricsProvider
	logger        *slog.Logger
	pollInterval  time.Duration
	sampleTimeout time.Duration
	threshold     float64
}

func NewMonitor(metrics provider.MetricsProvider, logger *slog.Logger, pollInterval, sampleTimeout time.Duration, threshold float64) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if sampleTimeout <= 0 {
		sampleTimeout = DefaultSampleTimeout
	}
	if threshold <= 0 {
		threshold = DefaultDegradationThreshold
	}
	return &Monitor{
		metrics:       metrics,
		logger:        logger,
		pollInterval:  pollInterval,
		sampleTimeout: sampleTimeout,
		threshold:     threshold,
	}
}

func (m *Monitor) Threshold() float64 { return m.threshold }

// Baseline samples quality over a warmup window and averages the result.
func (m *Monitor) Baseline(ctx context.Context, resourceIDs []string, window time.Duration) (domain.QualityMetrics, error) {
	sample, err := m.sampleOnce(ctx, resourceIDs, window)
	if err != nil {
		return domain.QualityMetrics{}, &domain.TransientProviderError{Op: "baseline sample", Err: err}
	}
	return sample, nil
}

// Watch polls metrics at the configured interval for the window's
// duration, comparing each sample against the baseline. It returns early
// on the first breach. Sampling failures and timeouts fail safe: the
// phase is reported degraded.
func (m *Monitor) Watch(ctx context.Context, resourceIDs []string, baseline domain.QualityMetrics, window time.Duration) (Comparison, error) {
	if window <= 0 {
		window = DefaultMonitorWindow
	}

	windowCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var (
		sum     domain.QualityMetrics
		samples int
		last    Comparison
	)

	for {
		select {
		case <-windowCtx.Done():
			if ctx.Err() != nil {
				// Out-of-band cancellation, not window expiry.
				return Comparison{}, ctx.Err()
			}
			if samples == 0 {
				m.logger.Warn("monitor window elapsed with no samples - failing safe")
				return Comparison{Degraded: true, Metric: "no_samples"}, nil
			}
			last.Observed = domain.QualityMetrics{
				LatencyMS:  sum.LatencyMS / float64(samples),
				ErrorRate:  sum.ErrorRate / float64(samples),
				Throughput: sum.Throughput / float64(samples),
			}
			return last, nil

		case <-ticker.C:
			observed, err := m.sampleOnce(windowCtx, resourceIDs, m.pollInterval)
			if err != nil {
				if windowCtx.Err() != nil && ctx.Err() == nil {
					// Window closed mid-sample; loop around to finalize.
					continue
				}
				m.logger.Warn("metrics sample failed - failing safe", "error", err)
				return Comparison{Degraded: true, Metric: "sample_failure"}, nil
			}

			sum.LatencyMS += observed.LatencyMS
			sum.ErrorRate += observed.ErrorRate
			sum.Throughput += observed.Throughput
			samples++

			degraded, pct, metric := Compare(baseline, observed, m.threshold)
			last = Comparison{Observed: observed, Degraded: degraded, DegradationPct: pct, Metric: metric}
			if degraded {
				m.logger.Warn("quality degradation observed",
					"metric", metric,
					"degradation_pct", pct,
					"threshold", m.threshold,
				)
				return last, nil
			}
		}
	}
}

func (m *Monitor) sampleOnce(ctx context.Context, resourceIDs []string, window time.Duration) (domain.QualityMetrics, error) {
	sampleCtx, cancel := context.WithTimeout(ctx, m.sampleTimeout)
	defer cancel()
	return m.metrics.Sample(sampleCtx, resourceIDs, window)
}

// errorRateFloor is the minimum baseline error rate used for relative
// comparison. A clean baseline (0% errors) would otherwise make any
// error-rate spike invisible to the gate.
const errorRateFloor = 0.001

// Compare evaluates latency and error rate independently against the
// baseline; a single breach on either is degradation. Throughput is not
// gated. The returned percentage is the worst relative worsening.
func Compare(baseline, observed domain.QualityMetrics, threshold float64) (degraded bool, degradationPct float64, metric string) {
	check := func(base, obs float64, name string) {
		if base <= 0 {
			return
		}
		pct := (obs - base) / base
		if pct > degradationPct {
			degradationPct = pct
			metric = name
		}
		if pct > threshold {
			degraded = true
		}
	}

	check(baseline.LatencyMS, observed.LatencyMS, "latency")

	errBase := baseline.ErrorRate
	if errBase < errorRateFloor {
		errBase = errorRateFloor
	}
	check(errBase, observed.ErrorRate, "error_rate")

	if !degraded {
		metric = ""
	}
	return degraded, degradationPct, metric
}
