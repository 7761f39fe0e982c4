package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/apexops/dashboard/internal/apperr"
	"github.com/apexops/dashboard/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Memory is a Store backed by process memory. Records are copied on the way
// in and out so callers never share state with the store.
type Memory struct {
	mu    sync.RWMutex
	clock clockwork.Clock

	agents     map[string]*domain.Agent
	agentOrder []string
	gpus       map[string]*domain.GPUResource
	gpuOrder   []string
	alerts     map[string]*domain.Alert
	alertOrder []string

	usage   []domain.ResourceUsage
	costs   []domain.CostAnalytics
	metrics []domain.PerformanceMetrics
}

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock:  clock,
		agents: make(map[string]*domain.Agent),
		gpus:   make(map[string]*domain.GPUResource),
		alerts: make(map[string]*domain.Alert),
	}
}

func copyAgent(a *domain.Agent) domain.Agent {
	out := *a
	out.Configuration = cloneMap(a.Configuration)
	return out
}

func copyGPU(g *domain.GPUResource) domain.GPUResource {
	out := *g
	out.Specifications = cloneMap(g.Specifications)
	return out
}

func copyAlert(a *domain.Alert) domain.Alert {
	out := *a
	out.Metadata = cloneMap(a.Metadata)
	return out
}

func (m *Memory) ListAgents(_ context.Context, userID string) ([]domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Agent, 0, len(m.agentOrder))
	for _, id := range m.agentOrder {
		a := m.agents[id]
		if userID != "" && a.UserID != userID {
			continue
		}
		result = append(result, copyAgent(a))
	}
	return result, nil
}

func (m *Memory) GetAgent(_ context.Context, id string) (domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, apperr.NotFound("agent %s not found", id)
	}
	return copyAgent(a), nil
}

func (m *Memory) CreateAgent(_ context.Context, in domain.AgentInput) (domain.Agent, error) {
	if err := in.Validate(); err != nil {
		return domain.Agent{}, err
	}

	now := m.clock.Now()
	a := &domain.Agent{
		ID:                uuid.NewString(),
		Name:              in.Name,
		Model:             in.Model,
		Status:            in.Status,
		GPUID:             in.GPUID,
		CPUUtilization:    in.CPUUtilization,
		RequestsPerMinute: in.RequestsPerMinute,
		LastActivity:      now,
		Configuration:     cloneMap(in.Configuration),
		UserID:            in.UserID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = a
	m.agentOrder = append(m.agentOrder, a.ID)
	return copyAgent(a), nil
}

func (m *Memory) UpdateAgent(_ context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	if err := patch.Validate(); err != nil {
		return domain.Agent{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, apperr.NotFound("agent %s not found", id)
	}
	patch.Apply(a, m.clock.Now())
	a.Configuration = cloneMap(a.Configuration)
	return copyAgent(a), nil
}

func (m *Memory) DeleteAgent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[id]; !ok {
		return apperr.NotFound("agent %s not found", id)
	}
	delete(m.agents, id)
	m.agentOrder = slices.DeleteFunc(m.agentOrder, func(v string) bool { return v == id })
	return nil
}

func (m *Memory) ListGPUResources(_ context.Context, availableOnly bool) ([]domain.GPUResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.GPUResource, 0, len(m.gpuOrder))
	for _, id := range m.gpuOrder {
		g := m.gpus[id]
		if availableOnly && g.Status != domain.GPUAvailable {
			continue
		}
		result = append(result, copyGPU(g))
	}
	return result, nil
}

func (m *Memory) GetGPUResource(_ context.Context, id string) (domain.GPUResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.gpus[id]
	if !ok {
		return domain.GPUResource{}, apperr.NotFound("gpu resource %s not found", id)
	}
	return copyGPU(g), nil
}

func (m *Memory) CreateGPUResource(_ context.Context, in domain.GPUResourceInput) (domain.GPUResource, error) {
	if err := in.Validate(); err != nil {
		return domain.GPUResource{}, err
	}

	now := m.clock.Now()
	g := &domain.GPUResource{
		ID:             uuid.NewString(),
		Model:          in.Model,
		VRAM:           in.VRAM,
		PricePerHour:   in.PricePerHour,
		Status:         in.Status,
		Provider:       in.Provider,
		Region:         in.Region,
		Specifications: cloneMap(in.Specifications),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gpus[g.ID] = g
	m.gpuOrder = append(m.gpuOrder, g.ID)
	return copyGPU(g), nil
}

func (m *Memory) UpdateGPUResourceStatus(_ context.Context, id string, status domain.GPUStatus) (domain.GPUResource, error) {
	if !status.Valid() {
		return domain.GPUResource{}, apperr.Validation("invalid gpu status %q", status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.gpus[id]
	if !ok {
		return domain.GPUResource{}, apperr.NotFound("gpu resource %s not found", id)
	}
	g.Status = status
	g.UpdatedAt = m.clock.Now()
	return copyGPU(g), nil
}

func (m *Memory) ListResourceUsage(_ context.Context, agentID string, limit int) ([]domain.ResourceUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.ResourceUsage
	for _, u := range m.usage {
		if agentID != "" && u.AgentID != agentID {
			continue
		}
		result = append(result, u)
	}

	// Newest first; ties keep the most recent insertion first.
	slices.Reverse(result)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if n := usageLimit(limit); len(result) > n {
		result = result[:n]
	}
	if result == nil {
		result = []domain.ResourceUsage{}
	}
	return result, nil
}

func (m *Memory) CreateResourceUsage(_ context.Context, in domain.ResourceUsageInput) (domain.ResourceUsage, error) {
	if err := in.Validate(); err != nil {
		return domain.ResourceUsage{}, err
	}

	u := domain.ResourceUsage{
		ID:             uuid.NewString(),
		AgentID:        in.AgentID,
		GPUID:          in.GPUID,
		GPUUtilization: in.GPUUtilization,
		CPUUtilization: in.CPUUtilization,
		MemoryUsage:    in.MemoryUsage,
		Timestamp:      m.clock.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, u)
	return u, nil
}

func (m *Memory) ListCostAnalytics(_ context.Context, userID string, period domain.Period) ([]domain.CostAnalytics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []domain.CostAnalytics{}
	for _, c := range m.costs {
		if c.UserID != userID {
			continue
		}
		if period != "" && c.Period != period {
			continue
		}
		result = append(result, c)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func (m *Memory) CreateCostAnalytics(_ context.Context, in domain.CostAnalyticsInput) (domain.CostAnalytics, error) {
	if err := in.Validate(); err != nil {
		return domain.CostAnalytics{}, err
	}

	c := domain.CostAnalytics{
		ID:                 uuid.NewString(),
		UserID:             in.UserID,
		Period:             in.Period,
		GPURentalCost:      in.GPURentalCost,
		APIUsageCost:       in.APIUsageCost,
		InfrastructureCost: in.InfrastructureCost,
		TotalCost:          in.TotalCost,
		Date:               in.Date,
		CreatedAt:          m.clock.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.costs = append(m.costs, c)
	return c, nil
}

func (m *Memory) ListPerformanceMetrics(_ context.Context, agentID string) ([]domain.PerformanceMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []domain.PerformanceMetrics{}
	for _, pm := range m.metrics {
		if agentID != "" && pm.AgentID != agentID {
			continue
		}
		result = append(result, pm)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (m *Memory) CreatePerformanceMetrics(_ context.Context, in domain.PerformanceMetricsInput) (domain.PerformanceMetrics, error) {
	if err := in.Validate(); err != nil {
		return domain.PerformanceMetrics{}, err
	}

	pm := domain.PerformanceMetrics{
		ID:              uuid.NewString(),
		AgentID:         in.AgentID,
		AvgResponseTime: in.AvgResponseTime,
		Throughput:      in.Throughput,
		SuccessRate:     in.SuccessRate,
		ErrorRate:       in.ErrorRate,
		Timestamp:       m.clock.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, pm)
	return pm, nil
}

func (m *Memory) ListAlerts(_ context.Context, userID string) ([]domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []domain.Alert{}
	for _, id := range m.alertOrder {
		a := m.alerts[id]
		if a.UserID != userID {
			continue
		}
		result = append(result, copyAlert(a))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) CreateAlert(_ context.Context, in domain.AlertInput) (domain.Alert, error) {
	if err := in.Validate(); err != nil {
		return domain.Alert{}, err
	}

	a := &domain.Alert{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Type:      in.Type,
		Severity:  in.Severity,
		Title:     in.Title,
		Message:   in.Message,
		Metadata:  cloneMap(in.Metadata),
		CreatedAt: m.clock.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[a.ID] = a
	m.alertOrder = append(m.alertOrder, a.ID)
	return copyAlert(a), nil
}

func (m *Memory) MarkAlertRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return apperr.NotFound("alert %s not found", id)
	}
	a.IsRead = true
	return nil
}

func (m *Memory) Close() error { return nil }
