package domain

import (
	"testing"
	"time"

	"github.com/apexops/dashboard/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      AgentInput
		wantErr bool
	}{
		{"valid", AgentInput{Name: "X", Model: "gpt-4"}, false},
		{"missing name", AgentInput{Model: "gpt-4"}, true},
		{"blank model", AgentInput{Name: "X", Model: "  "}, true},
		{"bad status", AgentInput{Name: "X", Model: "m", Status: "flying"}, true},
		{"cpu over 100", AgentInput{Name: "X", Model: "m", CPUUtilization: 101}, true},
		{"negative rpm", AgentInput{Name: "X", Model: "m", RequestsPerMinute: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.TypeValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAgentInput_DefaultsStatus(t *testing.T) {
	in := AgentInput{Name: "X", Model: "m"}
	require.NoError(t, in.Validate())
	assert.Equal(t, AgentStopped, in.Status)
}

func TestAgentPatch_Apply(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := Agent{ID: "a1", Name: "old", Model: "m", Status: AgentStopped, RequestsPerMinute: 5}

	status := AgentRunning
	name := "new"
	p := AgentPatch{Name: &name, Status: &status}
	require.NoError(t, p.Validate())
	p.Apply(&a, now)

	assert.Equal(t, "new", a.Name)
	assert.Equal(t, AgentRunning, a.Status)
	assert.Equal(t, "m", a.Model)
	assert.Equal(t, 5, a.RequestsPerMinute)
	assert.Equal(t, now, a.UpdatedAt)
}

func TestAgentPatch_RejectsEmptyName(t *testing.T) {
	empty := ""
	err := AgentPatch{Name: &empty}.Validate()
	assert.True(t, apperr.Is(err, apperr.TypeValidation))
}

func TestCostAnalyticsInput_ComputesTotal(t *testing.T) {
	in := CostAnalyticsInput{
		Period:             PeriodMonthly,
		GPURentalCost:      100,
		APIUsageCost:       20.5,
		InfrastructureCost: 4.5,
		Date:               time.Now(),
	}
	require.NoError(t, in.Validate())
	assert.InDelta(t, 125.0, in.TotalCost, 1e-9)
}

func TestCostAnalyticsInput_Rejects(t *testing.T) {
	assert.Error(t, (&CostAnalyticsInput{Period: "yearly", Date: time.Now()}).Validate())
	assert.Error(t, (&CostAnalyticsInput{Period: PeriodDaily}).Validate())
	assert.Error(t, (&CostAnalyticsInput{Period: PeriodDaily, Date: time.Now(), APIUsageCost: -1}).Validate())
}

func TestAlertInput_Validate(t *testing.T) {
	ok := AlertInput{Type: AlertCost, Severity: SeverityHigh, Title: "Budget", Message: "80% spent"}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Severity = "urgent"
	assert.Error(t, bad.Validate())

	bad = ok
	bad.Type = "unknown"
	assert.Error(t, bad.Validate())

	bad = ok
	bad.Title = ""
	assert.Error(t, bad.Validate())
}

func TestGPUResourceInput_DefaultsStatus(t *testing.T) {
	in := GPUResourceInput{Model: "A100", VRAM: "80GB HBM2e", Provider: "lambda", PricePerHour: 1.99}
	require.NoError(t, in.Validate())
	assert.Equal(t, GPUAvailable, in.Status)

	in.Status = "broken"
	assert.Error(t, in.Validate())
}

func TestUsageAndPerformanceRanges(t *testing.T) {
	assert.NoError(t, (&ResourceUsageInput{GPUUtilization: 50, CPUUtilization: 0, MemoryUsage: 100}).Validate())
	assert.Error(t, (&ResourceUsageInput{GPUUtilization: 150}).Validate())
	assert.NoError(t, (&PerformanceMetricsInput{AvgResponseTime: 120, Throughput: 10, SuccessRate: 99, ErrorRate: 1}).Validate())
	assert.Error(t, (&PerformanceMetricsInput{ErrorRate: -2}).Validate())
}
