// Package domain holds the records managed by the dashboard and the
// validation rules applied to them on input.
package domain

import (
	"time"
)

type AgentStatus string

const (
	AgentRunning AgentStatus = "running"
	AgentStopped AgentStatus = "stopped"
	AgentScaling AgentStatus = "scaling"
	AgentError   AgentStatus = "error"
)

func (s AgentStatus) Valid() bool {
	switch s {
	case AgentRunning, AgentStopped, AgentScaling, AgentError:
		return true
	}
	return false
}

type GPUStatus string

const (
	GPUAvailable   GPUStatus = "available"
	GPUInUse       GPUStatus = "in_use"
	GPUMaintenance GPUStatus = "maintenance"
)

func (s GPUStatus) Valid() bool {
	switch s {
	case GPUAvailable, GPUInUse, GPUMaintenance:
		return true
	}
	return false
}

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

type AlertType string

const (
	AlertCost        AlertType = "cost"
	AlertPerformance AlertType = "performance"
	AlertResource    AlertType = "resource"
	AlertFailure     AlertType = "error"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertCost, AlertPerformance, AlertResource, AlertFailure:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Agent struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Model             string         `json:"model"`
	Status            AgentStatus    `json:"status"`
	GPUID             string         `json:"gpuId,omitempty"`
	CPUUtilization    float64        `json:"cpuUtilization"`
	RequestsPerMinute int            `json:"requestsPerMinute"`
	LastActivity      time.Time      `json:"lastActivity"`
	Configuration     map[string]any `json:"configuration,omitempty"`
	UserID            string         `json:"userId,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

type GPUResource struct {
	ID             string         `json:"id"`
	Model          string         `json:"model"`
	VRAM           string         `json:"vram"`
	PricePerHour   float64        `json:"pricePerHour"`
	Status         GPUStatus      `json:"status"`
	Provider       string         `json:"provider"`
	Region         string         `json:"region,omitempty"`
	Specifications map[string]any `json:"specifications,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type ResourceUsage struct {
	ID             string    `json:"id"`
	AgentID        string    `json:"agentId,omitempty"`
	GPUID          string    `json:"gpuId,omitempty"`
	GPUUtilization float64   `json:"gpuUtilization"`
	CPUUtilization float64   `json:"cpuUtilization"`
	MemoryUsage    float64   `json:"memoryUsage"`
	Timestamp      time.Time `json:"timestamp"`
}

type CostAnalytics struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId,omitempty"`
	Period             Period    `json:"period"`
	GPURentalCost      float64   `json:"gpuRentalCost"`
	APIUsageCost       float64   `json:"apiUsageCost"`
	InfrastructureCost float64   `json:"infrastructureCost"`
	TotalCost          float64   `json:"totalCost"`
	Date               time.Time `json:"date"`
	CreatedAt          time.Time `json:"createdAt"`
}

type PerformanceMetrics struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agentId,omitempty"`
	AvgResponseTime float64   `json:"avgResponseTime"`
	Throughput      int       `json:"throughput"`
	SuccessRate     float64   `json:"successRate"`
	ErrorRate       float64   `json:"errorRate"`
	Timestamp       time.Time `json:"timestamp"`
}

type Alert struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId,omitempty"`
	Type      AlertType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	IsRead    bool           `json:"isRead"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// LiveStats is the periodic sample carried by stats_update events.
type LiveStats struct {
	Timestamp         time.Time `json:"timestamp"`
	GPUUtilization    float64   `json:"gpuUtilization"`
	CPUUtilization    float64   `json:"cpuUtilization"`
	RequestsPerMinute int       `json:"requestsPerMinute"`
	ResponseTime      int       `json:"responseTime"`
}

type DashboardStats struct {
	ActiveAgents   int     `json:"activeAgents"`
	TotalAgents    int     `json:"totalAgents"`
	GPUUtilization float64 `json:"gpuUtilization"`
	TotalRequests  int     `json:"totalRequests"`
	MonthlyCost    float64 `json:"monthlyCost"`
	AvailableGPUs  int     `json:"availableGpus"`
}

type AnalyticsPoint struct {
	Bucket time.Time          `json:"bucket"`
	Values map[string]float64 `json:"values"`
}

type Analytics struct {
	TimeRange  string           `json:"timeRange"`
	MetricType string           `json:"metricType"`
	Data       []AnalyticsPoint `json:"data"`
}

type LineageNode struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

type LineageEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Lineage struct {
	TimeRange string        `json:"timeRange"`
	Nodes     []LineageNode `json:"nodes"`
	Edges     []LineageEdge `json:"edges"`
}
