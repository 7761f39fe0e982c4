package store

import (
	"context"
	"time"

	"github.com/apexops/dashboard/internal/domain"
	"github.com/pkg/errors"
)

// Seed loads a small demo fleet for DemoUserID. It is meant for an empty
// store; calling it twice duplicates the records.
func Seed(ctx context.Context, s Store, now time.Time) error {
	var gpuIDs []string
	for _, in := range []domain.GPUResourceInput{
		{Model: "NVIDIA RTX 4090", VRAM: "24GB GDDR6X", PricePerHour: 3.25, Provider: "AWS", Region: "us-east-1"},
		{Model: "NVIDIA A100", VRAM: "40GB HBM2", PricePerHour: 4.50, Provider: "GCP", Region: "us-central1"},
		{Model: "NVIDIA H100", VRAM: "80GB HBM3", PricePerHour: 6.75, Provider: "Azure", Region: "eastus", Status: domain.GPUInUse},
	} {
		g, err := s.CreateGPUResource(ctx, in)
		if err != nil {
			return errors.Wrapf(err, "seed gpu %s", in.Model)
		}
		gpuIDs = append(gpuIDs, g.ID)
	}

	agents := []domain.AgentInput{
		{Name: "GPT-4 Vision", Model: "gpt-4-vision-preview", Status: domain.AgentRunning, GPUID: gpuIDs[2], CPUUtilization: 62, RequestsPerMinute: 1247},
		{Name: "Claude 3 Haiku", Model: "claude-3-haiku", Status: domain.AgentScaling, GPUID: gpuIDs[1], CPUUtilization: 38, RequestsPerMinute: 892},
		{Name: "Llama 2 Chat", Model: "llama-2-70b-chat", Status: domain.AgentStopped, RequestsPerMinute: 234},
	}
	var agentIDs []string
	for _, in := range agents {
		in.UserID = DemoUserID
		a, err := s.CreateAgent(ctx, in)
		if err != nil {
			return errors.Wrapf(err, "seed agent %s", in.Name)
		}
		agentIDs = append(agentIDs, a.ID)
	}

	if _, err := s.CreateResourceUsage(ctx, domain.ResourceUsageInput{
		AgentID: agentIDs[0], GPUID: gpuIDs[2], GPUUtilization: 78, CPUUtilization: 62, MemoryUsage: 71,
	}); err != nil {
		return errors.Wrap(err, "seed resource usage")
	}

	if _, err := s.CreatePerformanceMetrics(ctx, domain.PerformanceMetricsInput{
		AgentID: agentIDs[0], AvgResponseTime: 118, Throughput: 1247, SuccessRate: 99.2, ErrorRate: 0.8,
	}); err != nil {
		return errors.Wrap(err, "seed performance metrics")
	}

	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.CreateCostAnalytics(ctx, domain.CostAnalyticsInput{
		UserID: DemoUserID, Period: domain.PeriodMonthly, Date: month,
		GPURentalCost: 32150, APIUsageCost: 9870, InfrastructureCost: 5309,
	}); err != nil {
		return errors.Wrap(err, "seed cost analytics")
	}

	if _, err := s.CreateAlert(ctx, domain.AlertInput{
		UserID:   DemoUserID,
		Type:     domain.AlertCost,
		Severity: domain.SeverityMedium,
		Title:    "Monthly spend above forecast",
		Message:  "GPU rental cost is 12% above the monthly forecast.",
	}); err != nil {
		return errors.Wrap(err, "seed alert")
	}
	return nil
}
