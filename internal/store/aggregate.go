package store

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/apexops/dashboard/internal/apperr"
	"github.com/apexops/dashboard/internal/domain"
)

const (
	// DemoUserID is used when a dashboard request names no user.
	DemoUserID = "demo-user-1"

	fallbackMonthlyCost = 47329

	DefaultTimeRange  = "7d"
	DefaultMetricType = "performance"

	MetricPerformance = "performance"
	MetricCost        = "cost"
	MetricUsage       = "usage"
)

type window struct {
	span   time.Duration
	bucket time.Duration
}

const day = 24 * time.Hour

var timeRanges = map[string]window{
	"24h": {span: day, bucket: time.Hour},
	"7d":  {span: 7 * day, bucket: day},
	"30d": {span: 30 * day, bucket: day},
	"90d": {span: 90 * day, bucket: 7 * day},
}

func lookupRange(timeRange string) (window, error) {
	w, ok := timeRanges[timeRange]
	if !ok {
		return window{}, apperr.Validation("invalid timeRange %q", timeRange).
			WithContext("allowed", []string{"24h", "7d", "30d", "90d"})
	}
	return w, nil
}

// DashboardStats aggregates the dashboard summary for userID. When no usage
// has been recorded, jitter supplies a value in [0,1) for a synthetic GPU
// utilization in [70,90).
func DashboardStats(ctx context.Context, s Store, userID string, jitter func() float64) (domain.DashboardStats, error) {
	if userID == "" {
		userID = DemoUserID
	}

	agents, err := s.ListAgents(ctx, userID)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	gpus, err := s.ListGPUResources(ctx, false)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	recent, err := s.ListResourceUsage(ctx, "", 1)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	monthly, err := s.ListCostAnalytics(ctx, userID, domain.PeriodMonthly)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	stats := domain.DashboardStats{TotalAgents: len(agents)}
	for _, a := range agents {
		if a.Status == domain.AgentRunning {
			stats.ActiveAgents++
		}
		stats.TotalRequests += a.RequestsPerMinute
	}
	for _, g := range gpus {
		if g.Status == domain.GPUAvailable {
			stats.AvailableGPUs++
		}
	}

	if len(recent) > 0 {
		stats.GPUUtilization = recent[0].GPUUtilization
	} else {
		stats.GPUUtilization = jitter()*20 + 70
	}
	stats.GPUUtilization = math.Round(stats.GPUUtilization*10) / 10

	stats.MonthlyCost = fallbackMonthlyCost
	if len(monthly) > 0 {
		stats.MonthlyCost = 0
		for _, c := range monthly {
			stats.MonthlyCost += c.TotalCost
		}
	}
	return stats, nil
}

// AnalyticsQuery selects the series returned by Analytics. Empty fields
// take their defaults.
type AnalyticsQuery struct {
	TimeRange  string
	MetricType string
	UserID     string
}

type bucketAcc struct {
	sums  map[string]float64
	count int
}

// Analytics groups stored records inside the time range into buckets and
// returns one point per non-empty bucket, oldest first. Performance and
// usage values are bucket means; cost values are bucket sums.
func Analytics(ctx context.Context, s Store, q AnalyticsQuery, now time.Time) (domain.Analytics, error) {
	if q.TimeRange == "" {
		q.TimeRange = DefaultTimeRange
	}
	if q.MetricType == "" {
		q.MetricType = DefaultMetricType
	}
	if q.UserID == "" {
		q.UserID = DemoUserID
	}

	w, err := lookupRange(q.TimeRange)
	if err != nil {
		return domain.Analytics{}, err
	}
	start := now.Add(-w.span)

	buckets := make(map[time.Time]*bucketAcc)
	add := func(ts time.Time, values map[string]float64) {
		if ts.Before(start) || ts.After(now) {
			return
		}
		key := ts.Truncate(w.bucket)
		acc, ok := buckets[key]
		if !ok {
			acc = &bucketAcc{sums: make(map[string]float64)}
			buckets[key] = acc
		}
		for k, v := range values {
			acc.sums[k] += v
		}
		acc.count++
	}

	mean := true
	switch q.MetricType {
	case MetricPerformance:
		metrics, err := s.ListPerformanceMetrics(ctx, "")
		if err != nil {
			return domain.Analytics{}, err
		}
		for _, m := range metrics {
			add(m.Timestamp, map[string]float64{
				"avgResponseTime": m.AvgResponseTime,
				"throughput":      float64(m.Throughput),
				"successRate":     m.SuccessRate,
				"errorRate":       m.ErrorRate,
			})
		}
	case MetricUsage:
		usage, err := s.ListResourceUsage(ctx, "", maxUsageLimit)
		if err != nil {
			return domain.Analytics{}, err
		}
		for _, u := range usage {
			add(u.Timestamp, map[string]float64{
				"gpuUtilization": u.GPUUtilization,
				"cpuUtilization": u.CPUUtilization,
				"memoryUsage":    u.MemoryUsage,
			})
		}
	case MetricCost:
		mean = false
		costs, err := s.ListCostAnalytics(ctx, q.UserID, "")
		if err != nil {
			return domain.Analytics{}, err
		}
		for _, c := range costs {
			add(c.Date, map[string]float64{
				"gpuRentalCost":      c.GPURentalCost,
				"apiUsageCost":       c.APIUsageCost,
				"infrastructureCost": c.InfrastructureCost,
				"totalCost":          c.TotalCost,
			})
		}
	default:
		return domain.Analytics{}, apperr.Validation("invalid metricType %q", q.MetricType).
			WithContext("allowed", []string{MetricPerformance, MetricCost, MetricUsage})
	}

	points := make([]domain.AnalyticsPoint, 0, len(buckets))
	for key, acc := range buckets {
		values := make(map[string]float64, len(acc.sums))
		for k, v := range acc.sums {
			if mean {
				v /= float64(acc.count)
			}
			values[k] = math.Round(v*100) / 100
		}
		points = append(points, domain.AnalyticsPoint{Bucket: key, Values: values})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Bucket.Before(points[j].Bucket) })

	return domain.Analytics{TimeRange: q.TimeRange, MetricType: q.MetricType, Data: points}, nil
}

// Lineage builds the agent to GPU graph. Edges come from current GPU
// assignments and from usage recorded inside the time range.
func Lineage(ctx context.Context, s Store, timeRange string, now time.Time) (domain.Lineage, error) {
	w, err := lookupRange(timeRange)
	if err != nil {
		return domain.Lineage{}, err
	}

	agents, err := s.ListAgents(ctx, "")
	if err != nil {
		return domain.Lineage{}, err
	}
	gpus, err := s.ListGPUResources(ctx, false)
	if err != nil {
		return domain.Lineage{}, err
	}
	usage, err := s.ListResourceUsage(ctx, "", maxUsageLimit)
	if err != nil {
		return domain.Lineage{}, err
	}

	out := domain.Lineage{
		TimeRange: timeRange,
		Nodes:     make([]domain.LineageNode, 0, len(agents)+len(gpus)),
		Edges:     []domain.LineageEdge{},
	}
	isAgent := make(map[string]bool, len(agents))
	isGPU := make(map[string]bool, len(gpus))
	for _, a := range agents {
		isAgent[a.ID] = true
		out.Nodes = append(out.Nodes, domain.LineageNode{ID: a.ID, Kind: "agent", Label: a.Name})
	}
	for _, g := range gpus {
		isGPU[g.ID] = true
		out.Nodes = append(out.Nodes, domain.LineageNode{ID: g.ID, Kind: "gpu", Label: g.Model})
	}

	seen := make(map[domain.LineageEdge]bool)
	link := func(agentID, gpuID string) {
		e := domain.LineageEdge{From: agentID, To: gpuID}
		if !isAgent[agentID] || !isGPU[gpuID] || seen[e] {
			return
		}
		seen[e] = true
		out.Edges = append(out.Edges, e)
	}

	for _, a := range agents {
		link(a.ID, a.GPUID)
	}
	start := now.Add(-w.span)
	for i := len(usage) - 1; i >= 0; i-- {
		u := usage[i]
		if u.Timestamp.Before(start) {
			continue
		}
		link(u.AgentID, u.GPUID)
	}
	return out, nil
}
