// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFakeCollectorIsDeterministic(t *testing.T) {
	ctx := context.Background()

	a, err := (&FakeCollector{Seed: 7}).ListResources(ctx, "acme-prod")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	b, err := (&FakeCollector{Seed: 7}).ListResources(ctx, "acme-prod")
	if err != nil {
		t.Fatalf("list again: %v", err)
	}

	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("expected identical inventories, got %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].OnDemandCost != b[i].OnDemandCost {
			t.Fatalf("resource %d differs between runs", i)
		}
	}
}

func TestFakeCollectorCostDataMatchesInventory(t *testing.T) {
	ctx := context.Background()
	collector := &FakeCollector{Seed: 7, Resources: 5}

	resources, err := collector.ListResources(ctx, "acme-prod")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	data, err := collector.GetCostData(ctx, "acme-prod", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("cost data: %v", err)
	}

	var want float64
	for _, r := range resources {
		want += r.OnDemandCost
	}
	if data.TotalCostUSD != want {
		t.Fatalf("expected total %v got %v", want, data.TotalCostUSD)
	}
	if len(data.ByResource) != len(resources) {
		t.Fatalf("expected per-resource costs for all %d resources", len(resources))
	}
}

func TestFakeApplierFailureKnobs(t *testing.T) {
	ctx := context.Background()
	applier := &FakeApplier{
		ApplyFailures:  map[string]bool{"i-bad": true},
		RevertFailures: map[string]bool{"i-stuck": true},
	}

	ok, err := applier.ApplyChange(ctx, "i-good", nil)
	if err != nil || !ok.Applied {
		t.Fatalf("expected clean apply, got %+v err=%v", ok, err)
	}

	bad, err := applier.ApplyChange(ctx, "i-bad", nil)
	if err != nil {
		t.Fatalf("apply failure should be reported in the result, got err=%v", err)
	}
	if bad.Applied || bad.Error == "" {
		t.Fatalf("expected failed apply result, got %+v", bad)
	}

	if _, err := applier.RevertChange(ctx, "i-stuck"); err == nil {
		t.Fatal("expected revert failure")
	}
	if _, err := applier.RevertChange(ctx, "i-good"); err != nil {
		t.Fatalf("revert: %v", err)
	}

	if got := applier.Applied(); len(got) != 1 || got[0] != "i-good" {
		t.Fatalf("expected only clean applies recorded, got %v", got)
	}
	if got := applier.Reverted(); len(got) != 1 || got[0] != "i-good" {
		t.Fatalf("expected only clean reverts recorded, got %v", got)
	}
}

func TestAutoApprovalService(t *testing.T) {
	ctx := context.Background()
	svc := &AutoApprovalService{}

	ticket, err := svc.Request(ctx, uuid.New(), "2 recommendations pending")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	decision, err := svc.Poll(ctx, ticket)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if decision != DecisionApproved {
		t.Fatalf("expected immediate approval, got %s", decision)
	}

	if _, err := svc.Poll(ctx, "ticket-unknown"); err == nil {
		t.Fatal("expected unknown ticket error")
	}
}

func TestAutoApprovalServiceDelayAndDecision(t *testing.T) {
	ctx := context.Background()
	svc := &AutoApprovalService{Delay: time.Hour, Decision: DecisionRejected}

	ticket, err := svc.Request(ctx, uuid.New(), "summary")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	decision, err := svc.Poll(ctx, ticket)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if decision != DecisionPending {
		t.Fatalf("expected PENDING before delay, got %s", decision)
	}

	svc.Delay = 0
	decision, err = svc.Poll(ctx, ticket)
	if err != nil {
		t.Fatalf("poll after delay: %v", err)
	}
	if decision != DecisionRejected {
		t.Fatalf("expected configured REJECTED, got %s", decision)
	}
}
