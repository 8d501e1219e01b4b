// SPDX-License-Identifier: Apache-2.0

// Package rollout applies approved changes progressively, gating each
// percentage phase on live quality evidence.
package rollout

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/provider"
)

var DefaultPhases = []int{10, 50, 100}

type Config struct {
	Phases               []int
	WarmupWindow         time.Duration
	MonitorWindow        time.Duration
	PollInterval         time.Duration
	SampleTimeout        time.Duration
	DegradationThreshold float64
	RetryAttempts        int
	RetryBaseDelay       time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Phases) == 0 {
		c.Phases = append([]int(nil), DefaultPhases...)
	}
	if c.WarmupWindow <= 0 {
		c.WarmupWindow = DefaultWarmupWindow
	}
	if c.MonitorWindow <= 0 {
		c.MonitorWindow = DefaultMonitorWindow
	}
	if c.DegradationThreshold <= 0 {
		c.DegradationThreshold = DefaultDegradationThreshold
	}
	return c
}

// Checkpointer persists workflow state between phases so a crash
// mid-rollout resumes at the last completed phase.
type Checkpointer func(ctx context.Context, state *domain.WorkflowState) error

// Controller drives the execute/monitor/rollback sub-loop. A workload is
// never moved wholesale: each phase widens the blast radius only after
// the previous one proved safe.
type Controller struct {
	applier provider.ChangeApplier
	monitor *Monitor
	logger  *slog.Logger
	cfg     Config
}

func NewController(applier provider.ChangeApplier, metrics provider.MetricsProvider, logger *slog.Logger, cfg Config) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	for i := 1; i < len(cfg.Phases); i++ {
		if cfg.Phases[i] <= cfg.Phases[i-1] {
			return nil, fmt.Errorf("rollout phases must strictly increase, got %v", cfg.Phases)
		}
	}
	if last := cfg.Phases[len(cfg.Phases)-1]; last != 100 {
		return nil, fmt.Errorf("final rollout phase must be 100, got %d", last)
	}

	return &Controller{
		applier: applier,
		monitor: NewMonitor(metrics, logger, cfg.PollInterval, cfg.SampleTimeout, cfg.DegradationThreshold),
		logger:  logger,
		cfg:     cfg,
	}, nil
}

// Execute runs the remaining phases for the state's approved
// recommendations. Completed phases already present in PhaseResults are
// skipped, which makes resume after a crash safe. On success the state is
// marked successful and actual savings are computed from applied changes.
// Degradation aborts the remaining phases with a QualityDegradationError.
func (c *Controller) Execute(ctx context.Context, state *domain.WorkflowState, checkpoint Checkpointer) error {
	targets := targetResources(state)
	if len(targets) == 0 {
		return fmt.Errorf("no target resources to roll out")
	}

	baseline, err := c.baselineFor(ctx, state, targets)
	if err != nil {
		return err
	}

	applied := appliedSet(state)

	for _, pct := range c.cfg.Phases {
		if phaseCompleted(state, pct) {
			continue
		}

		phase := domain.RolloutPhase{
			Percentage:           pct,
			MonitorWindowSeconds: int(c.cfg.MonitorWindow.Seconds()),
			Baseline:             baseline,
			StartedAt:            time.Now().UTC(),
		}

		newly, err := c.applyUpTo(ctx, state, targets, applied, pct, &phase)
		if err != nil {
			return err
		}
		c.logger.Info("rollout phase applied",
			"workflow_id", state.WorkflowID,
			"percentage", pct,
			"newly_applied", len(newly),
		)

		comparison, err := c.monitor.Watch(ctx, keys(applied), baseline, c.cfg.MonitorWindow)
		if err != nil {
			return err
		}

		phase.Observed = comparison.Observed
		phase.Degraded = comparison.Degraded
		phase.DegradationPct = comparison.DegradationPct
		phase.DegradedMetric = comparison.Metric
		phase.CompletedAt = time.Now().UTC()

		if err := state.AppendPhase(phase); err != nil {
			return err
		}
		if checkpoint != nil {
			if err := checkpoint(ctx, state); err != nil {
				return err
			}
		}

		if comparison.Degraded {
			return &domain.QualityDegradationError{
				Phase:          pct,
				Metric:         comparison.Metric,
				DegradationPct: comparison.DegradationPct,
			}
		}
	}

	state.Success = true
	state.ActualSavings = savingsFor(state, applied)
	return nil
}

// Rollback reverts every change applied so far, newest phase first.
func (c *Controller) Rollback(ctx context.Context, state *domain.WorkflowState) error {
	var failed []string
	for i := len(state.PhaseResults) - 1; i >= 0; i-- {
		for _, resourceID := range state.PhaseResults[i].AppliedResources {
			result, err := provider.Retry(ctx, c.logger, "revert change",
				c.cfg.RetryAttempts, c.cfg.RetryBaseDelay,
				func(ctx context.Context) (provider.RevertResult, error) {
					return c.applier.RevertChange(ctx, resourceID)
				})
			if err != nil || !result.Reverted {
				failed = append(failed, resourceID)
				c.logger.Error("revert failed",
					"workflow_id", state.WorkflowID,
					"resource_id", resourceID,
					"error", err,
				)
			}
		}
	}

	// A partial revert is fatal and terminal; the failed set is surfaced
	// for manual intervention.
	if len(failed) > 0 {
		return fmt.Errorf("rollback incomplete, %d resources not reverted: %v", len(failed), failed)
	}
	return nil
}

func (c *Controller) baselineFor(ctx context.Context, state *domain.WorkflowState, targets []string) (domain.QualityMetrics, error) {
	// Resuming mid-rollout keeps the original baseline.
	if len(state.PhaseResults) > 0 {
		return state.PhaseResults[0].Baseline, nil
	}

	baseline, err := provider.Retry(ctx, c.logger, "capture baseline",
		c.cfg.RetryAttempts, c.cfg.RetryBaseDelay,
		func(ctx context.Context) (domain.QualityMetrics, error) {
			return c.monitor.Baseline(ctx, targets, c.cfg.WarmupWindow)
		})
	if err != nil {
		return domain.QualityMetrics{}, err
	}
	return baseline, nil
}

func (c *Controller) applyUpTo(ctx context.Context, state *domain.WorkflowState, targets []string, applied map[string]bool, pct int, phase *domain.RolloutPhase) ([]string, error) {
	want := (len(targets)*pct + 99) / 100
	if want > len(targets) {
		want = len(targets)
	}

	configs := targetConfigs(state)
	var newly []string
	for _, resourceID := range targets[:want] {
		if applied[resourceID] {
			continue
		}

		result, err := provider.Retry(ctx, c.logger, "apply change",
			c.cfg.RetryAttempts, c.cfg.RetryBaseDelay,
			func(ctx context.Context) (provider.ChangeResult, error) {
				return c.applier.ApplyChange(ctx, resourceID, configs[resourceID])
			})
		if err != nil {
			return nil, err
		}
		if !result.Applied {
			return nil, fmt.Errorf("change not applied to %s: %s", resourceID, result.Error)
		}

		applied[resourceID] = true
		newly = append(newly, resourceID)
	}

	phase.AppliedResources = newly
	return newly, nil
}

func phaseCompleted(state *domain.WorkflowState, pct int) bool {
	for _, p := range state.PhaseResults {
		if p.Percentage == pct {
			return true
		}
	}
	return false
}

func appliedSet(state *domain.WorkflowState) map[string]bool {
	applied := make(map[string]bool)
	for _, p := range state.PhaseResults {
		for _, id := range p.AppliedResources {
			applied[id] = true
		}
	}
	return applied
}

func targetResources(state *domain.WorkflowState) []string {
	seen := make(map[string]bool)
	var targets []string
	for _, rec := range state.Recommendations {
		if !seen[rec.ResourceID] {
			seen[rec.ResourceID] = true
			targets = append(targets, rec.ResourceID)
		}
	}
	sort.Strings(targets)
	return targets
}

func targetConfigs(state *domain.WorkflowState) map[string]map[string]string {
	configs := make(map[string]map[string]string, len(state.Recommendations))
	for _, rec := range state.Recommendations {
		configs[rec.ResourceID] = rec.TargetConfig
	}
	return configs
}

func savingsFor(state *domain.WorkflowState, applied map[string]bool) float64 {
	var total float64
	for _, rec := range state.Recommendations {
		if applied[rec.ResourceID] {
			total += rec.EstimatedSavings
		}
	}
	return total
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
