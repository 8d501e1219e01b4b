// SPDX-License-Identifier: Apache-2.0

// Package provider declares the external collaborators the engine
// consumes. Real cloud integrations live outside this repo; the engine
// only sees these interfaces.
package provider

import (
	"context"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/google/uuid"
)

// Collector supplies resource inventories and billing data.
type Collector interface {
	ListResources(ctx context.Context, customerID string) ([]domain.Resource, error)
	GetCostData(ctx context.Context, customerID string, period time.Duration) (domain.CostData, error)
}

type ChangeResult struct {
	ResourceID string `json:"resource_id"`
	Applied    bool   `json:"applied"`
	Error      string `json:"error,omitempty"`
}

type RevertResult struct {
	ResourceID string `json:"resource_id"`
	Reverted   bool   `json:"reverted"`
	Error      string `json:"error,omitempty"`
}

// ChangeApplier applies and reverts configuration changes on live
// resources.
type ChangeApplier interface {
	ApplyChange(ctx context.Context, resourceID string, targetConfig map[string]string) (ChangeResult, error)
	RevertChange(ctx context.Context, resourceID string) (RevertResult, error)
}

// MetricsProvider samples live quality metrics for a resource set.
type MetricsProvider interface {
	Sample(ctx context.Context, resourceIDs []string, window time.Duration) (domain.QualityMetrics, error)
}

type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// ApprovalService files approval tickets with humans and reports their
// decisions.
type ApprovalService interface {
	Request(ctx context.Context, workflowID uuid.UUID, summary string) (ticketID string, err error)
	Poll(ctx context.Context, ticketID string) (Decision, error)
}
