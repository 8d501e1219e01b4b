// SPDX-License-Identifier: Apache-2.0

package nodes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/approval"
	"github.com/cloudtrim/cloudtrim/internal/checkpoint"
	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/graph"
	"github.com/cloudtrim/cloudtrim/internal/learning"
	"github.com/cloudtrim/cloudtrim/internal/provider"
	"github.com/cloudtrim/cloudtrim/internal/rollout"
	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRollout() rollout.Config {
	return rollout.Config{
		Phases:        []int{10, 50, 100},
		WarmupWindow:  5 * time.Millisecond,
		MonitorWindow: 30 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		SampleTimeout: time.Second,
	}
}

type libraryOptions struct {
	applier  *provider.FakeApplier
	metrics  provider.MetricsProvider
	gateway  *approval.Gateway
	weights  learning.WeightsStore
	outcomes learning.OutcomeStore
}

func newTestLibrary(t *testing.T, opts libraryOptions) (*Library, *provider.FakeApplier, learning.OutcomeStore) {
	t.Helper()

	if opts.applier == nil {
		opts.applier = &provider.FakeApplier{}
	}
	if opts.metrics == nil {
		opts.metrics = &provider.FakeMetrics{}
	}
	if opts.gateway == nil {
		gw, err := approval.NewGateway(approval.DefaultPolicy(), nil)
		if err != nil {
			t.Fatalf("NewGateway: %v", err)
		}
		opts.gateway = gw
	}
	if opts.weights == nil {
		opts.weights = learning.NewMemoryWeightsStore()
	}
	if opts.outcomes == nil {
		opts.outcomes = learning.NewMemoryOutcomeStore()
	}

	logger := testLogger()
	library, err := NewLibrary(Deps{
		Collector: &provider.FakeCollector{Seed: 42},
		Applier:   opts.applier,
		Metrics:   opts.metrics,
		Approvals: &provider.AutoApprovalService{},
		Gateway:   opts.gateway,
		Weights:   opts.weights,
		Tracker:   learning.NewTracker(opts.outcomes, nil, logger),
		Rollout:   fastRollout(),
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	return library, opts.applier, opts.outcomes
}

func runToCompletion(t *testing.T, library *Library) *domain.WorkflowState {
	t.Helper()

	g, err := library.BuildGraph()
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	executor := graph.NewExecutor(g, checkpoint.NewMemoryStore(), testLogger())

	state, err := executor.Start(context.Background(), domain.NewWorkflowState(domain.TypeCostOptimization, "acme-prod"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; !state.Status.Terminal(); i++ {
		if i >= 20 {
			t.Fatalf("workflow did not terminate, status %s", state.Status)
		}
		state, err = executor.ResumeState(context.Background(), state)
		if err != nil {
			t.Fatalf("ResumeState: %v", err)
		}
	}
	return state
}

func TestBuildGraphCompiles(t *testing.T) {
	library, _, _ := newTestLibrary(t, libraryOptions{})
	if _, err := library.BuildGraph(); err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
}

func TestFullRunWithOperatorApproval(t *testing.T) {
	library, applier, outcomes := newTestLibrary(t, libraryOptions{})

	// The default gateway gates the fake inventory (medium-risk and
	// low-confidence candidates) and the auto service approves the
	// ticket on first poll.
	state := runToCompletion(t, library)

	if state.Status != domain.WorkflowSuccess {
		t.Fatalf("status = %s, want %s (failure: %s)", state.Status, domain.WorkflowSuccess, state.FailureReason)
	}
	if !state.Success {
		t.Error("Success not set")
	}
	if state.ApprovalStatus != domain.ApprovalApproved {
		t.Errorf("approval status = %s, want %s", state.ApprovalStatus, domain.ApprovalApproved)
	}
	if state.ApprovalTicketID == "" {
		t.Error("no approval ticket recorded")
	}
	if state.ActualSavings <= 0 {
		t.Errorf("actual savings = %.2f, want > 0", state.ActualSavings)
	}
	if !state.Learned {
		t.Error("Learned not set after learn node")
	}

	wantLog := []string{NodeAnalyze, NodeRecommend, NodeGateApproval, NodeWaitApproval, NodeExecute, NodeLearn}
	if !slices.Equal(state.ExecutionLog, wantLog) {
		t.Errorf("execution log = %v, want %v", state.ExecutionLog, wantLog)
	}

	if len(state.PhaseResults) != 3 {
		t.Fatalf("phases = %d, want 3", len(state.PhaseResults))
	}
	for _, phase := range state.PhaseResults {
		if phase.Degraded {
			t.Errorf("phase %d%% degraded on a clean run", phase.Percentage)
		}
	}
	if got, want := len(applier.Applied()), len(state.Recommendations); got != want {
		t.Errorf("applied %d resources, want %d", got, want)
	}

	recorded, err := outcomes.Recent(context.Background(), 100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recorded) != len(state.Recommendations) {
		t.Errorf("recorded %d outcomes, want %d", len(recorded), len(state.Recommendations))
	}
}

func TestFullRunAutoApproved(t *testing.T) {
	gw, err := approval.NewGateway(approval.Policy{
		SavingsThreshold:    1e9,
		ConfidenceThreshold: 0.01,
		MaxAutoRisk:         domain.RiskHigh,
		Timeout:             time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	library, _, _ := newTestLibrary(t, libraryOptions{gateway: gw})

	state := runToCompletion(t, library)

	if state.Status != domain.WorkflowSuccess {
		t.Fatalf("status = %s, want %s", state.Status, domain.WorkflowSuccess)
	}
	if state.ApprovalStatus != domain.ApprovalNotRequired {
		t.Errorf("approval status = %s, want %s", state.ApprovalStatus, domain.ApprovalNotRequired)
	}
	if state.ApprovalTicketID != "" {
		t.Errorf("unexpected ticket %q on an auto-approved run", state.ApprovalTicketID)
	}
	if slices.Contains(state.ExecutionLog, NodeWaitApproval) {
		t.Errorf("execution log contains %s: %v", NodeWaitApproval, state.ExecutionLog)
	}
}

func TestFullRunDegradationRollsBack(t *testing.T) {
	applier := &provider.FakeApplier{}
	library, _, _ := newTestLibrary(t, libraryOptions{
		applier: applier,
		metrics: &provider.FakeMetrics{DegradeAfter: 1, DegradeBy: 0.5},
	})

	state := runToCompletion(t, library)

	if state.Status != domain.WorkflowFailed {
		t.Fatalf("status = %s, want %s", state.Status, domain.WorkflowFailed)
	}
	if state.FailureKind != domain.FailureDegradation {
		t.Errorf("failure kind = %s, want %s", state.FailureKind, domain.FailureDegradation)
	}
	if state.Success {
		t.Error("Success set on a degraded run")
	}
	if state.ActualSavings != 0 {
		t.Errorf("actual savings = %.2f, want 0 after rollback", state.ActualSavings)
	}
	if !slices.Contains(state.ExecutionLog, NodeRollback) {
		t.Errorf("execution log missing %s: %v", NodeRollback, state.ExecutionLog)
	}
	if !slices.Contains(state.ExecutionLog, NodeLearn) {
		t.Errorf("execution log missing %s after rollback: %v", NodeLearn, state.ExecutionLog)
	}
	if !state.Learned {
		t.Error("degraded runs must still record outcomes")
	}

	applied := applier.Applied()
	reverted := applier.Reverted()
	if len(applied) == 0 {
		t.Fatal("nothing applied before degradation")
	}
	if len(reverted) != len(applied) {
		t.Errorf("reverted %d of %d applied resources", len(reverted), len(applied))
	}
}

type stubCollector struct {
	resources []domain.Resource
	totalCost float64
}

func (s *stubCollector) ListResources(ctx context.Context, customerID string) ([]domain.Resource, error) {
	return s.resources, nil
}

func (s *stubCollector) GetCostData(ctx context.Context, customerID string, period time.Duration) (domain.CostData, error) {
	data := domain.CostData{
		CustomerID:   customerID,
		TotalCostUSD: s.totalCost,
		ByResource:   make(map[string]float64, len(s.resources)),
	}
	for _, r := range s.resources {
		data.ByResource[r.ID] = r.OnDemandCost
	}
	return data, nil
}

func steadySeries(level float64) []float64 {
	series := make([]float64, 30)
	for i := range series {
		series[i] = level
	}
	return series
}

func TestAnalyzeClassifiesOpportunities(t *testing.T) {
	library, _, _ := newTestLibrary(t, libraryOptions{})
	library.deps.Collector = &stubCollector{
		totalCost: 1000,
		resources: []domain.Resource{
			{ID: "idle-vm", OnDemandCost: 100, CPUUtilization: steadySeries(0.05), UptimeRatio: 0.99},
			{ID: "oversized-vm", OnDemandCost: 200, CPUUtilization: steadySeries(0.30), UptimeRatio: 0.99},
			{ID: "stable-vm", OnDemandCost: 300, CPUUtilization: steadySeries(0.60), UptimeRatio: 0.99},
			{ID: "busy-flaky-vm", OnDemandCost: 400, CPUUtilization: steadySeries(0.60), UptimeRatio: 0.80},
			{ID: "no-telemetry-vm", OnDemandCost: 50},
		},
	}

	state, err := library.Analyze(context.Background(), domain.NewWorkflowState(domain.TypeCostOptimization, "acme-prod"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	kinds := make(map[string]domain.OpportunityKind, len(state.Analysis.Opportunities))
	for _, opp := range state.Analysis.Opportunities {
		kinds[opp.ResourceID] = opp.Kind
	}
	want := map[string]domain.OpportunityKind{
		"idle-vm":      domain.OpportunityIdle,
		"oversized-vm": domain.OpportunityOversized,
		"stable-vm":    domain.OpportunityOnDemandStable,
	}
	if len(kinds) != len(want) {
		t.Fatalf("opportunities = %v, want %d entries", kinds, len(want))
	}
	for id, kind := range want {
		if kinds[id] != kind {
			t.Errorf("%s classified %s, want %s", id, kinds[id], kind)
		}
	}

	// Full idle cost, half the oversized cost, 30% of the stable cost.
	wantWaste := 100 + 200*0.5 + 300*0.3
	if diff := state.Analysis.WasteMonthlyCost - wantWaste; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("waste = %.2f, want %.2f", state.Analysis.WasteMonthlyCost, wantWaste)
	}
	if state.Status != domain.WorkflowRunning {
		t.Errorf("status = %s, want %s", state.Status, domain.WorkflowRunning)
	}
}

func TestAnalyzeInsufficientData(t *testing.T) {
	tests := []struct {
		name      string
		collector provider.Collector
	}{
		{"empty inventory", &stubCollector{}},
		{"zero billing total", &stubCollector{
			resources: []domain.Resource{{ID: "vm-1", CPUUtilization: steadySeries(0.5)}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			library, _, _ := newTestLibrary(t, libraryOptions{})
			library.deps.Collector = tt.collector

			_, err := library.Analyze(context.Background(), domain.NewWorkflowState(domain.TypeCostOptimization, "acme-prod"))
			if !errors.Is(err, domain.ErrInsufficientData) {
				t.Fatalf("err = %v, want ErrInsufficientData", err)
			}
		})
	}
}

func TestClassifyPattern(t *testing.T) {
	growing := make([]float64, 30)
	declining := make([]float64, 30)
	seasonal := make([]float64, 30)
	for i := range growing {
		growing[i] = 0.2 + 0.01*float64(i)
		declining[i] = 0.5 - 0.01*float64(i)
		seasonal[i] = 0.1
		if i%2 == 0 {
			seasonal[i] = 0.9
		}
	}

	tests := []struct {
		name   string
		series []float64
		want   domain.UsagePattern
	}{
		{"steady", steadySeries(0.5), domain.PatternSteady},
		{"growing", growing, domain.PatternGrowing},
		{"declining", declining, domain.PatternDeclining},
		{"seasonal", seasonal, domain.PatternSeasonal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cv := usageStats(tt.series)
			if got := classifyPattern(tt.series, cv); got != tt.want {
				t.Errorf("classifyPattern = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUsageStats(t *testing.T) {
	avg, cv := usageStats([]float64{0.2, 0.4, 0.6})
	if diff := avg - 0.4; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("avg = %f, want 0.4", avg)
	}
	if cv <= 0 {
		t.Errorf("cv = %f, want > 0", cv)
	}

	if slope := trendSlope([]float64{0.5}); slope != 0 {
		t.Errorf("single-sample slope = %f, want 0", slope)
	}
}

func TestRecommendScoresAndRanks(t *testing.T) {
	library, _, _ := newTestLibrary(t, libraryOptions{})

	state := domain.NewWorkflowState(domain.TypeCostOptimization, "acme-prod")
	state.Analysis = &domain.Analysis{
		TotalMonthlyCost: 1000,
		Opportunities: []domain.Opportunity{
			{ResourceID: "idle-vm", Kind: domain.OpportunityIdle, MonthlyCost: 400, UptimeRatio: 0.99, Pattern: domain.PatternSteady},
			{ResourceID: "oversized-vm", Kind: domain.OpportunityOversized, MonthlyCost: 200, UptimeRatio: 0.95, UsageVariance: 0.2, Pattern: domain.PatternSteady},
			{ResourceID: "stable-vm", Kind: domain.OpportunityOnDemandStable, MonthlyCost: 300, UptimeRatio: 0.99, Pattern: domain.PatternSteady},
		},
	}

	out, err := library.Recommend(context.Background(), state)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(out.Recommendations) != 3 {
		t.Fatalf("recommendations = %d, want 3", len(out.Recommendations))
	}
	if out.WeightsVersion != 1 {
		t.Errorf("weights version = %d, want 1 pinned", out.WeightsVersion)
	}
	for i := 1; i < len(out.Recommendations); i++ {
		if out.Recommendations[i].Priority > out.Recommendations[i-1].Priority {
			t.Errorf("recommendations not sorted by priority: %f after %f",
				out.Recommendations[i].Priority, out.Recommendations[i-1].Priority)
		}
	}
	for _, rec := range out.Recommendations {
		if rec.ConfidenceScore < 0 || rec.ConfidenceScore > 1 {
			t.Errorf("%s confidence %f out of range", rec.ResourceID, rec.ConfidenceScore)
		}
		if rec.ID == uuid.Nil {
			t.Errorf("%s has no assigned ID", rec.ResourceID)
		}
	}
}

func TestRecommendPerWorkflowType(t *testing.T) {
	opportunities := []domain.Opportunity{
		{ResourceID: "steady-vm", Kind: domain.OpportunityOnDemandStable, MonthlyCost: 300, UptimeRatio: 0.99, Pattern: domain.PatternSteady},
		{ResourceID: "declining-vm", Kind: domain.OpportunityOversized, MonthlyCost: 200, UptimeRatio: 0.90, Pattern: domain.PatternDeclining},
	}

	tests := []struct {
		workflowType domain.WorkflowType
		wantActions  map[string]string
	}{
		{domain.TypeSpotMigration, map[string]string{"steady-vm": "migrate-to-spot"}},
		{domain.TypeReservedInstance, map[string]string{"steady-vm": "purchase-reserved"}},
		{domain.TypeRightSizing, map[string]string{"declining-vm": "rightsize"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.workflowType), func(t *testing.T) {
			library, _, _ := newTestLibrary(t, libraryOptions{})
			state := domain.NewWorkflowState(tt.workflowType, "acme-prod")
			state.Analysis = &domain.Analysis{Opportunities: opportunities}

			out, err := library.Recommend(context.Background(), state)
			if err != nil {
				t.Fatalf("Recommend: %v", err)
			}
			got := make(map[string]string, len(out.Recommendations))
			for _, rec := range out.Recommendations {
				got[rec.ResourceID] = rec.Action
			}
			if len(got) != len(tt.wantActions) {
				t.Fatalf("actions = %v, want %v", got, tt.wantActions)
			}
			for id, action := range tt.wantActions {
				if got[id] != action {
					t.Errorf("%s action = %q, want %q", id, got[id], action)
				}
			}
		})
	}
}

func TestRecommendPinsWeightsVersion(t *testing.T) {
	weights := learning.NewMemoryWeightsStore()
	library, _, _ := newTestLibrary(t, libraryOptions{weights: weights})

	state := domain.NewWorkflowState(domain.TypeCostOptimization, "acme-prod")
	state.Analysis = &domain.Analysis{Opportunities: []domain.Opportunity{
		{ResourceID: "idle-vm", Kind: domain.OpportunityIdle, MonthlyCost: 100, UptimeRatio: 0.99, Pattern: domain.PatternSteady},
	}}
	state.WeightsVersion = 1

	// A newer version appears mid-run; the pinned version must win.
	if _, err := weights.Save(context.Background(), domain.ScoringWeights{
		ROI: 0.25, Risk: 0.25, Urgency: 0.25, Confidence: 0.25,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := library.Recommend(context.Background(), state)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if out.WeightsVersion != 1 {
		t.Errorf("weights version = %d, want pinned 1", out.WeightsVersion)
	}
}

func TestRecommendInsufficientData(t *testing.T) {
	library, _, _ := newTestLibrary(t, libraryOptions{})
	state := domain.NewWorkflowState(domain.TypeCostOptimization, "acme-prod")

	if _, err := library.Recommend(context.Background(), state); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestWaitApprovalTimeout(t *testing.T) {
	gw, err := approval.NewGateway(approval.Policy{
		SavingsThreshold:    500,
		ConfidenceThreshold: 0.70,
		MaxAutoRisk:         domain.RiskLow,
		Timeout:             time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	library, _, _ := newTestLibrary(t, libraryOptions{gateway: gw})

	state := domain.NewWorkflowState(domain.TypeCostOptimization, "acme-prod")
	if err := state.SetApproval(domain.ApprovalPending); err != nil {
		t.Fatalf("SetApproval: %v", err)
	}
	requested := time.Now().Add(-time.Hour)
	state.ApprovalTicketID = "ticket-stale"
	state.ApprovalRequestedAt = &requested

	out, err := library.WaitApproval(context.Background(), state)
	if err != nil {
		t.Fatalf("WaitApproval: %v", err)
	}
	if out.ApprovalStatus != domain.ApprovalRejected {
		t.Errorf("approval status = %s, want %s", out.ApprovalStatus, domain.ApprovalRejected)
	}
	if out.FailureKind != domain.FailureApprovalTimeout {
		t.Errorf("failure kind = %s, want %s", out.FailureKind, domain.FailureApprovalTimeout)
	}
	if out.Status != domain.WorkflowFailed {
		t.Errorf("status = %s, want %s", out.Status, domain.WorkflowFailed)
	}
}

func TestWaitApprovalSuspendsWhilePending(t *testing.T) {
	library, _, _ := newTestLibrary(t, libraryOptions{})
	service := &provider.AutoApprovalService{Delay: time.Hour}
	library.deps.Approvals = service

	state := domain.NewWorkflowState(domain.TypeCostOptimization, "acme-prod")
	if err := state.SetApproval(domain.ApprovalPending); err != nil {
		t.Fatalf("SetApproval: %v", err)
	}
	ticketID, err := service.Request(context.Background(), state.WorkflowID, "test")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	requested := time.Now()
	state.ApprovalTicketID = ticketID
	state.ApprovalRequestedAt = &requested

	out, err := library.WaitApproval(context.Background(), state)
	if !errors.Is(err, graph.ErrSuspend) {
		t.Fatalf("err = %v, want ErrSuspend", err)
	}
	if out.Status != domain.WorkflowWaiting {
		t.Errorf("status = %s, want %s", out.Status, domain.WorkflowWaiting)
	}
	if out.ApprovalStatus != domain.ApprovalPending {
		t.Errorf("approval status = %s, want still %s", out.ApprovalStatus, domain.ApprovalPending)
	}
}

func TestWaitApprovalWithoutTicket(t *testing.T) {
	library, _, _ := newTestLibrary(t, libraryOptions{})
	state := domain.NewWorkflowState(domain.TypeCostOptimization, "acme-prod")

	if _, err := library.WaitApproval(context.Background(), state); err == nil {
		t.Fatal("expected an error entering wait-approval without a ticket")
	}
}

func TestExecuteRejectsUnapprovedState(t *testing.T) {
	library, _, _ := newTestLibrary(t, libraryOptions{})

	for _, status := range []domain.ApprovalStatus{domain.ApprovalPending, domain.ApprovalRejected} {
		state := domain.NewWorkflowState(domain.TypeCostOptimization, "acme-prod")
		state.ApprovalStatus = status
		if _, err := library.Execute(context.Background(), state); err == nil {
			t.Errorf("execute accepted approval status %s", status)
		}
	}
}

type failingOutcomeStore struct{}

func (failingOutcomeStore) Record(ctx context.Context, rec domain.OutcomeRecord) error {
	return fmt.Errorf("outcome backend down")
}

func (failingOutcomeStore) Recent(ctx context.Context, limit int) ([]domain.OutcomeRecord, error) {
	return nil, fmt.Errorf("outcome backend down")
}

func TestLearnToleratesUnavailableStore(t *testing.T) {
	library, _, _ := newTestLibrary(t, libraryOptions{outcomes: failingOutcomeStore{}})

	state := domain.NewWorkflowState(domain.TypeCostOptimization, "acme-prod")
	state.Success = true
	state.Recommendations = []domain.Recommendation{{ResourceID: "vm-1", EstimatedSavings: 100}}

	out, err := library.Learn(context.Background(), state)
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if out.Learned {
		t.Error("Learned set even though no outcome was stored")
	}
}

func TestRouteAfterGate(t *testing.T) {
	tests := []struct {
		status domain.ApprovalStatus
		want   string
	}{
		{domain.ApprovalPending, NodeWaitApproval},
		{domain.ApprovalRejected, graph.End},
		{domain.ApprovalNotRequired, NodeExecute},
		{domain.ApprovalApproved, NodeExecute},
	}
	for _, tt := range tests {
		state := &domain.WorkflowState{ApprovalStatus: tt.status}
		if got := routeAfterGate(state); got != tt.want {
			t.Errorf("routeAfterGate(%s) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestRouteAfterWait(t *testing.T) {
	tests := []struct {
		status domain.ApprovalStatus
		want   string
	}{
		{domain.ApprovalApproved, NodeExecute},
		{domain.ApprovalRejected, graph.End},
		{domain.ApprovalPending, graph.End},
	}
	for _, tt := range tests {
		state := &domain.WorkflowState{ApprovalStatus: tt.status}
		if got := routeAfterWait(state); got != tt.want {
			t.Errorf("routeAfterWait(%s) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestRouteAfterExecute(t *testing.T) {
	clean := &domain.WorkflowState{PhaseResults: []domain.RolloutPhase{{Percentage: 100}}}
	if got := routeAfterExecute(clean); got != NodeLearn {
		t.Errorf("clean run routed to %s, want %s", got, NodeLearn)
	}

	degraded := &domain.WorkflowState{PhaseResults: []domain.RolloutPhase{
		{Percentage: 10},
		{Percentage: 50, Degraded: true},
	}}
	if got := routeAfterExecute(degraded); got != NodeRollback {
		t.Errorf("degraded run routed to %s, want %s", got, NodeRollback)
	}

	empty := &domain.WorkflowState{}
	if got := routeAfterExecute(empty); got != NodeLearn {
		t.Errorf("no-phase run routed to %s, want %s", got, NodeLearn)
	}
}

func TestApprovalSummary(t *testing.T) {
	state := domain.NewWorkflowState(domain.TypeSpotMigration, "acme-prod")
	state.Recommendations = []domain.Recommendation{
		{EstimatedSavings: 120.50},
		{EstimatedSavings: 79.50},
	}

	got := approvalSummary(state)
	want := "SPOT_MIGRATION for acme-prod: 2 change(s), estimated $200.00/month"
	if got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}
