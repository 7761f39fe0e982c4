// Package store persists the dashboard records behind the REST surface.
// Two backends implement Store: an in-memory map and PostgreSQL.
package store

import (
	"context"

	"github.com/apexops/dashboard/internal/domain"
)

const (
	// DefaultUsageLimit caps resource usage listings when no limit is given.
	DefaultUsageLimit = 100
	maxUsageLimit     = 10000
)

// Store is implemented by Memory and Postgres. Create methods validate
// their input and fill defaults; lookups of missing records return an
// apperr not-found error.
type Store interface {
	ListAgents(ctx context.Context, userID string) ([]domain.Agent, error)
	GetAgent(ctx context.Context, id string) (domain.Agent, error)
	CreateAgent(ctx context.Context, in domain.AgentInput) (domain.Agent, error)
	UpdateAgent(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	ListGPUResources(ctx context.Context, availableOnly bool) ([]domain.GPUResource, error)
	GetGPUResource(ctx context.Context, id string) (domain.GPUResource, error)
	CreateGPUResource(ctx context.Context, in domain.GPUResourceInput) (domain.GPUResource, error)
	UpdateGPUResourceStatus(ctx context.Context, id string, status domain.GPUStatus) (domain.GPUResource, error)

	// ListResourceUsage returns the newest records first. An empty agentID
	// lists usage for every agent.
	ListResourceUsage(ctx context.Context, agentID string, limit int) ([]domain.ResourceUsage, error)
	CreateResourceUsage(ctx context.Context, in domain.ResourceUsageInput) (domain.ResourceUsage, error)

	// ListCostAnalytics orders by date. An empty period matches all periods.
	ListCostAnalytics(ctx context.Context, userID string, period domain.Period) ([]domain.CostAnalytics, error)
	CreateCostAnalytics(ctx context.Context, in domain.CostAnalyticsInput) (domain.CostAnalytics, error)

	ListPerformanceMetrics(ctx context.Context, agentID string) ([]domain.PerformanceMetrics, error)
	CreatePerformanceMetrics(ctx context.Context, in domain.PerformanceMetricsInput) (domain.PerformanceMetrics, error)

	ListAlerts(ctx context.Context, userID string) ([]domain.Alert, error)
	CreateAlert(ctx context.Context, in domain.AlertInput) (domain.Alert, error)
	MarkAlertRead(ctx context.Context, id string) error

	Close() error
}

func usageLimit(limit int) int {
	if limit <= 0 {
		return DefaultUsageLimit
	}
	if limit > maxUsageLimit {
		return maxUsageLimit
	}
	return limit
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
