// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/google/uuid"
)

// FakeCollector synthesizes a deterministic resource inventory from a
// seed. Used by the local dry-run mode and tests.
type FakeCollector struct {
	Seed      int64
	Resources int
}

func (f *FakeCollector) ListResources(ctx context.Context, customerID string) ([]domain.Resource, error) {
	n := f.Resources
	if n <= 0 {
		n = 8
	}
	rng := rand.New(rand.NewSource(f.Seed))

	patterns := []struct {
		base, jitter float64
		uptime       float64
	}{
		{base: 0.12, jitter: 0.02, uptime: 0.99}, // steady and idle
		{base: 0.55, jitter: 0.05, uptime: 0.97}, // steady, moderately used
		{base: 0.30, jitter: 0.25, uptime: 0.80}, // spiky
	}

	resources := make([]domain.Resource, 0, n)
	for i := 0; i < n; i++ {
		p := patterns[i%len(patterns)]
		usage := make([]float64, 30)
		for d := range usage {
			usage[d] = p.base + (rng.Float64()*2-1)*p.jitter
			if usage[d] < 0 {
				usage[d] = 0
			}
		}
		resources = append(resources, domain.Resource{
			ID:             fmt.Sprintf("%s-vm-%03d", customerID, i),
			Provider:       "fake",
			Region:         "us-east-1",
			InstanceType:   "m5.xlarge",
			OnDemandCost:   100 + float64(i)*25,
			CPUUtilization: usage,
			UptimeRatio:    p.uptime,
		})
	}
	return resources, nil
}

func (f *FakeCollector) GetCostData(ctx context.Context, customerID string, period time.Duration) (domain.CostData, error) {
	resources, err := f.ListResources(ctx, customerID)
	if err != nil {
		return domain.CostData{}, err
	}

	data := domain.CostData{
		CustomerID:  customerID,
		PeriodStart: time.Now().Add(-period),
		PeriodEnd:   time.Now(),
		ByResource:  make(map[string]float64, len(resources)),
	}
	for _, r := range resources {
		data.ByResource[r.ID] = r.OnDemandCost
		data.TotalCostUSD += r.OnDemandCost
	}
	return data, nil
}

// FakeApplier records applied and reverted changes in memory. Failure
// maps force specific resources to fail, to exercise retry and partial
// rollback paths.
type FakeApplier struct {
	ApplyFailures  map[string]bool
	RevertFailures map[string]bool

	mu       sync.Mutex
	applied  []string
	reverted []string
}

func (f *FakeApplier) ApplyChange(ctx context.Context, resourceID string, targetConfig map[string]string) (ChangeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ApplyFailures[resourceID] {
		return ChangeResult{ResourceID: resourceID, Error: "simulated apply failure"}, nil
	}
	f.applied = append(f.applied, resourceID)
	return ChangeResult{ResourceID: resourceID, Applied: true}, nil
}

func (f *FakeApplier) RevertChange(ctx context.Context, resourceID string) (RevertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RevertFailures[resourceID] {
		return RevertResult{ResourceID: resourceID}, fmt.Errorf("simulated revert failure for %s", resourceID)
	}
	f.reverted = append(f.reverted, resourceID)
	return RevertResult{ResourceID: resourceID, Reverted: true}, nil
}

func (f *FakeApplier) Applied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

func (f *FakeApplier) Reverted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reverted...)
}

// FakeMetrics serves a fixed baseline and optionally degrades after a
// configurable number of samples, to exercise the rollback path.
type FakeMetrics struct {
	Baseline     domain.QualityMetrics
	DegradeAfter int     // samples before degradation kicks in; 0 = never
	DegradeBy    float64 // relative worsening applied to latency

	mu      sync.Mutex
	samples int
}

func (f *FakeMetrics) Sample(ctx context.Context, resourceIDs []string, window time.Duration) (domain.QualityMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples++

	m := f.Baseline
	if m.LatencyMS == 0 {
		m = domain.QualityMetrics{LatencyMS: 100, ErrorRate: 0.01, Throughput: 500}
	}
	if f.DegradeAfter > 0 && f.samples > f.DegradeAfter {
		m.LatencyMS *= 1 + f.DegradeBy
		m.ErrorRate *= 1 + f.DegradeBy
	}
	return m, nil
}

// AutoApprovalService approves every ticket after a fixed delay, or
// immediately by default.
type AutoApprovalService struct {
	Delay    time.Duration
	Decision Decision

	mu      sync.Mutex
	tickets map[string]time.Time
}

func (a *AutoApprovalService) Request(ctx context.Context, workflowID uuid.UUID, summary string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tickets == nil {
		a.tickets = make(map[string]time.Time)
	}
	ticketID := "ticket-" + workflowID.String()
	a.tickets[ticketID] = time.Now()
	return ticketID, nil
}

func (a *AutoApprovalService) Poll(ctx context.Context, ticketID string) (Decision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	requested, ok := a.tickets[ticketID]
	if !ok {
		return DecisionPending, fmt.Errorf("unknown ticket %s", ticketID)
	}
	if time.Since(requested) < a.Delay {
		return DecisionPending, nil
	}
	if a.Decision == "" {
		return DecisionApproved, nil
	}
	return a.Decision, nil
}
