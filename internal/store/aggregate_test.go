package store

import (
	"context"
	"testing"
	"time"

	"github.com/apexops/dashboard/internal/apperr"
	"github.com/apexops/dashboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardStats_Empty(t *testing.T) {
	s, _ := newTestMemory(t)

	stats, err := DashboardStats(context.Background(), s, "", func() float64 { return 0.5 })
	require.NoError(t, err)

	assert.Equal(t, 0, stats.TotalAgents)
	assert.Equal(t, 80.0, stats.GPUUtilization, "falls back to the synthetic range")
	assert.Equal(t, float64(fallbackMonthlyCost), stats.MonthlyCost)
}

func TestDashboardStats_FromStore(t *testing.T) {
	s, clock := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, Seed(ctx, s, clock.Now()))

	clock.Advance(time.Second)
	_, err := s.CreateResourceUsage(ctx, domain.ResourceUsageInput{GPUUtilization: 66.66})
	require.NoError(t, err)

	stats, err := DashboardStats(ctx, s, DemoUserID, func() float64 {
		t.Fatal("jitter used although usage exists")
		return 0
	})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalAgents)
	assert.Equal(t, 1, stats.ActiveAgents)
	assert.Equal(t, 1247+892+234, stats.TotalRequests)
	assert.Equal(t, 2, stats.AvailableGPUs)
	assert.Equal(t, 66.7, stats.GPUUtilization)
	assert.Equal(t, 47329.0, stats.MonthlyCost)
}

func TestAnalytics_PerformanceBuckets(t *testing.T) {
	s, clock := newTestMemory(t)
	ctx := context.Background()

	_, err := s.CreatePerformanceMetrics(ctx, domain.PerformanceMetricsInput{AvgResponseTime: 100, Throughput: 10, SuccessRate: 90})
	require.NoError(t, err)
	_, err = s.CreatePerformanceMetrics(ctx, domain.PerformanceMetricsInput{AvgResponseTime: 200, Throughput: 30, SuccessRate: 100})
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = s.CreatePerformanceMetrics(ctx, domain.PerformanceMetricsInput{AvgResponseTime: 50})
	require.NoError(t, err)

	out, err := Analytics(ctx, s, AnalyticsQuery{TimeRange: "24h"}, clock.Now())
	require.NoError(t, err)

	assert.Equal(t, "24h", out.TimeRange)
	assert.Equal(t, MetricPerformance, out.MetricType)
	require.Len(t, out.Data, 2)
	assert.True(t, out.Data[0].Bucket.Before(out.Data[1].Bucket))
	assert.Equal(t, 150.0, out.Data[0].Values["avgResponseTime"])
	assert.Equal(t, 20.0, out.Data[0].Values["throughput"])
	assert.Equal(t, 95.0, out.Data[0].Values["successRate"])
	assert.Equal(t, 50.0, out.Data[1].Values["avgResponseTime"])
}

func TestAnalytics_CostSumsAndWindow(t *testing.T) {
	s, clock := newTestMemory(t)
	ctx := context.Background()
	now := clock.Now()

	for _, in := range []domain.CostAnalyticsInput{
		{UserID: DemoUserID, Period: domain.PeriodDaily, Date: now.Add(-time.Hour), TotalCost: 10},
		{UserID: DemoUserID, Period: domain.PeriodDaily, Date: now.Add(-2 * time.Hour), TotalCost: 5},
		{UserID: DemoUserID, Period: domain.PeriodDaily, Date: now.Add(-40 * day), TotalCost: 999},
	} {
		_, err := s.CreateCostAnalytics(ctx, in)
		require.NoError(t, err)
	}

	out, err := Analytics(ctx, s, AnalyticsQuery{MetricType: MetricCost}, now)
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeRange, out.TimeRange)
	require.Len(t, out.Data, 1)
	assert.Equal(t, 15.0, out.Data[0].Values["totalCost"])
}

func TestAnalytics_RejectsUnknownParameters(t *testing.T) {
	s, clock := newTestMemory(t)
	ctx := context.Background()

	_, err := Analytics(ctx, s, AnalyticsQuery{TimeRange: "1y"}, clock.Now())
	assert.True(t, apperr.Is(err, apperr.TypeValidation))

	_, err = Analytics(ctx, s, AnalyticsQuery{MetricType: "latency"}, clock.Now())
	assert.True(t, apperr.Is(err, apperr.TypeValidation))
}

func TestAnalytics_EmptyDataIsNotNil(t *testing.T) {
	s, clock := newTestMemory(t)

	out, err := Analytics(context.Background(), s, AnalyticsQuery{MetricType: MetricUsage}, clock.Now())
	require.NoError(t, err)
	assert.NotNil(t, out.Data)
	assert.Empty(t, out.Data)
}

func TestLineage(t *testing.T) {
	s, clock := newTestMemory(t)
	ctx := context.Background()

	g1, err := s.CreateGPUResource(ctx, domain.GPUResourceInput{Model: "A100", VRAM: "40GB", Provider: "GCP"})
	require.NoError(t, err)
	g2, err := s.CreateGPUResource(ctx, domain.GPUResourceInput{Model: "H100", VRAM: "80GB", Provider: "Azure"})
	require.NoError(t, err)

	a1, err := s.CreateAgent(ctx, domain.AgentInput{Name: "assigned", Model: "m", GPUID: g1.ID})
	require.NoError(t, err)
	a2, err := s.CreateAgent(ctx, domain.AgentInput{Name: "used", Model: "m"})
	require.NoError(t, err)

	_, err = s.CreateResourceUsage(ctx, domain.ResourceUsageInput{AgentID: a2.ID, GPUID: g2.ID})
	require.NoError(t, err)
	_, err = s.CreateResourceUsage(ctx, domain.ResourceUsageInput{AgentID: a1.ID, GPUID: g1.ID})
	require.NoError(t, err)
	_, err = s.CreateResourceUsage(ctx, domain.ResourceUsageInput{AgentID: a2.ID, GPUID: "gone"})
	require.NoError(t, err)

	out, err := Lineage(ctx, s, "24h", clock.Now())
	require.NoError(t, err)

	assert.Len(t, out.Nodes, 4)
	assert.Equal(t, []domain.LineageEdge{
		{From: a1.ID, To: g1.ID},
		{From: a2.ID, To: g2.ID},
	}, out.Edges)

	clock.Advance(2 * day)
	later, err := Lineage(ctx, s, "24h", clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []domain.LineageEdge{{From: a1.ID, To: g1.ID}}, later.Edges, "usage outside the range is ignored")

	_, err = Lineage(ctx, s, "forever", clock.Now())
	assert.True(t, apperr.Is(err, apperr.TypeValidation))
}
