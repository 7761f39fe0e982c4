package domain

import (
	"strings"
	"time"

	"github.com/apexops/dashboard/internal/apperr"
)

type AgentInput struct {
	Name              string         `json:"name"`
	Model             string         `json:"model"`
	Status            AgentStatus    `json:"status"`
	GPUID             string         `json:"gpuId"`
	CPUUtilization    float64        `json:"cpuUtilization"`
	RequestsPerMinute int            `json:"requestsPerMinute"`
	Configuration     map[string]any `json:"configuration"`
	UserID            string         `json:"userId"`
}

func (in *AgentInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("name is required")
	}
	if strings.TrimSpace(in.Model) == "" {
		return apperr.Validation("model is required")
	}
	if in.Status == "" {
		in.Status = AgentStopped
	}
	if !in.Status.Valid() {
		return apperr.Validation("invalid agent status %q", in.Status)
	}
	if err := percent("cpuUtilization", in.CPUUtilization); err != nil {
		return err
	}
	if in.RequestsPerMinute < 0 {
		return apperr.Validation("requestsPerMinute must not be negative")
	}
	return nil
}

// AgentPatch is a partial update. Nil fields are left unchanged.
type AgentPatch struct {
	Name              *string         `json:"name"`
	Model             *string         `json:"model"`
	Status            *AgentStatus    `json:"status"`
	GPUID             *string         `json:"gpuId"`
	CPUUtilization    *float64        `json:"cpuUtilization"`
	RequestsPerMinute *int            `json:"requestsPerMinute"`
	Configuration     *map[string]any `json:"configuration"`
}

func (p AgentPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return apperr.Validation("name must not be empty")
	}
	if p.Model != nil && strings.TrimSpace(*p.Model) == "" {
		return apperr.Validation("model must not be empty")
	}
	if p.Status != nil && !p.Status.Valid() {
		return apperr.Validation("invalid agent status %q", *p.Status)
	}
	if p.CPUUtilization != nil {
		if err := percent("cpuUtilization", *p.CPUUtilization); err != nil {
			return err
		}
	}
	if p.RequestsPerMinute != nil && *p.RequestsPerMinute < 0 {
		return apperr.Validation("requestsPerMinute must not be negative")
	}
	return nil
}

// Apply copies the set fields onto a and stamps UpdatedAt.
func (p AgentPatch) Apply(a *Agent, now time.Time) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Model != nil {
		a.Model = *p.Model
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.GPUID != nil {
		a.GPUID = *p.GPUID
	}
	if p.CPUUtilization != nil {
		a.CPUUtilization = *p.CPUUtilization
	}
	if p.RequestsPerMinute != nil {
		a.RequestsPerMinute = *p.RequestsPerMinute
	}
	if p.Configuration != nil {
		a.Configuration = *p.Configuration
	}
	a.UpdatedAt = now
}

type GPUResourceInput struct {
	Model          string         `json:"model"`
	VRAM           string         `json:"vram"`
	PricePerHour   float64        `json:"pricePerHour"`
	Status         GPUStatus      `json:"status"`
	Provider       string         `json:"provider"`
	Region         string         `json:"region"`
	Specifications map[string]any `json:"specifications"`
}

func (in *GPUResourceInput) Validate() error {
	if strings.TrimSpace(in.Model) == "" {
		return apperr.Validation("model is required")
	}
	if strings.TrimSpace(in.VRAM) == "" {
		return apperr.Validation("vram is required")
	}
	if strings.TrimSpace(in.Provider) == "" {
		return apperr.Validation("provider is required")
	}
	if in.PricePerHour < 0 {
		return apperr.Validation("pricePerHour must not be negative")
	}
	if in.Status == "" {
		in.Status = GPUAvailable
	}
	if !in.Status.Valid() {
		return apperr.Validation("invalid gpu status %q", in.Status)
	}
	return nil
}

type ResourceUsageInput struct {
	AgentID        string  `json:"agentId"`
	GPUID          string  `json:"gpuId"`
	GPUUtilization float64 `json:"gpuUtilization"`
	CPUUtilization float64 `json:"cpuUtilization"`
	MemoryUsage    float64 `json:"memoryUsage"`
}

func (in *ResourceUsageInput) Validate() error {
	if err := percent("gpuUtilization", in.GPUUtilization); err != nil {
		return err
	}
	if err := percent("cpuUtilization", in.CPUUtilization); err != nil {
		return err
	}
	return percent("memoryUsage", in.MemoryUsage)
}

type CostAnalyticsInput struct {
	UserID             string    `json:"userId"`
	Period             Period    `json:"period"`
	GPURentalCost      float64   `json:"gpuRentalCost"`
	APIUsageCost       float64   `json:"apiUsageCost"`
	InfrastructureCost float64   `json:"infrastructureCost"`
	TotalCost          float64   `json:"totalCost"`
	Date               time.Time `json:"date"`
}

func (in *CostAnalyticsInput) Validate() error {
	if !in.Period.Valid() {
		return apperr.Validation("invalid period %q", in.Period)
	}
	if in.Date.IsZero() {
		return apperr.Validation("date is required")
	}
	for name, v := range map[string]float64{
		"gpuRentalCost":      in.GPURentalCost,
		"apiUsageCost":       in.APIUsageCost,
		"infrastructureCost": in.InfrastructureCost,
		"totalCost":          in.TotalCost,
	} {
		if v < 0 {
			return apperr.Validation("%s must not be negative", name)
		}
	}
	if in.TotalCost == 0 {
		in.TotalCost = in.GPURentalCost + in.APIUsageCost + in.InfrastructureCost
	}
	return nil
}

type PerformanceMetricsInput struct {
	AgentID         string  `json:"agentId"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	Throughput      int     `json:"throughput"`
	SuccessRate     float64 `json:"successRate"`
	ErrorRate       float64 `json:"errorRate"`
}

func (in *PerformanceMetricsInput) Validate() error {
	if in.AvgResponseTime < 0 {
		return apperr.Validation("avgResponseTime must not be negative")
	}
	if in.Throughput < 0 {
		return apperr.Validation("throughput must not be negative")
	}
	if err := percent("successRate", in.SuccessRate); err != nil {
		return err
	}
	return percent("errorRate", in.ErrorRate)
}

type AlertInput struct {
	UserID   string         `json:"userId"`
	Type     AlertType      `json:"type"`
	Severity Severity       `json:"severity"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

func (in *AlertInput) Validate() error {
	if !in.Type.Valid() {
		return apperr.Validation("invalid alert type %q", in.Type)
	}
	if !in.Severity.Valid() {
		return apperr.Validation("invalid severity %q", in.Severity)
	}
	if strings.TrimSpace(in.Title) == "" {
		return apperr.Validation("title is required")
	}
	if strings.TrimSpace(in.Message) == "" {
		return apperr.Validation("message is required")
	}
	return nil
}

func percent(field string, v float64) error {
	if v < 0 || v > 100 {
		return apperr.Validation("%s must be between 0 and 100", field)
	}
	return nil
}
