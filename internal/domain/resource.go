// SPDX-License-Identifier: Apache-2.0

package domain

import "time"

// Resource is one billable cloud resource as delivered by the Collector.
type Resource struct {
	ID             string            `json:"id"`
	Provider       string            `json:"provider"`
	Region         string            `json:"region"`
	InstanceType   string            `json:"instance_type"`
	OnDemandCost   float64           `json:"on_demand_cost"` // monthly USD
	CPUUtilization []float64         `json:"cpu_utilization,omitempty"`
	UptimeRatio    float64           `json:"uptime_ratio"`
	Tags           map[string]string `json:"tags,omitempty"`
}

type UsagePattern string

const (
	PatternSteady    UsagePattern = "STEADY"
	PatternGrowing   UsagePattern = "GROWING"
	PatternSeasonal  UsagePattern = "SEASONAL"
	PatternDeclining UsagePattern = "DECLINING"
)

type OpportunityKind string

const (
	OpportunityIdle           OpportunityKind = "IDLE"
	OpportunityOversized      OpportunityKind = "OVERSIZED"
	OpportunityOnDemandStable OpportunityKind = "ON_DEMAND_STABLE"
)

// Opportunity is one detected waste source on a single resource.
type Opportunity struct {
	ResourceID     string          `json:"resource_id"`
	Kind           OpportunityKind `json:"kind"`
	MonthlyCost    float64         `json:"monthly_cost"`
	AvgUtilization float64         `json:"avg_utilization"`
	UsageVariance  float64         `json:"usage_variance"`
	UptimeRatio    float64         `json:"uptime_ratio"`
	Pattern        UsagePattern    `json:"pattern"`
}

type Analysis struct {
	TotalMonthlyCost float64       `json:"total_monthly_cost"`
	WasteMonthlyCost float64       `json:"waste_monthly_cost"`
	Opportunities    []Opportunity `json:"opportunities"`
	AnalyzedAt       time.Time     `json:"analyzed_at"`
}

// CostData is the Collector's billing summary for one customer period.
type CostData struct {
	CustomerID   string    `json:"customer_id"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	TotalCostUSD float64   `json:"total_cost_usd"`
	ByResource   map[string]float64
}
