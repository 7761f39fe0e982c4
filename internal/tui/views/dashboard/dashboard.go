// Package dashboard renders the summary row, live stats and event feed
// for the ApexOps TUI.
package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/apexops/dashboard/internal/domain"
	"github.com/apexops/dashboard/internal/realtime"
	"github.com/apexops/dashboard/internal/tui/theme"
	"github.com/charmbracelet/lipgloss"
)

const maxFeed = 50

// Entry is one line of the event feed.
type Entry struct {
	At    time.Time
	Type  realtime.EventType
	Title string
	Color lipgloss.Color
}

// Model holds the dashboard state.
type Model struct {
	Width   int
	Height  int
	Summary *domain.DashboardStats
	Live    *domain.LiveStats
	Err     error

	feed []Entry
}

func New() Model {
	return Model{}
}

// Push records ev. Stats samples replace the live panel; every other event
// is prepended to the feed, which keeps the newest maxFeed entries.
func (m *Model) Push(ev realtime.Event, at time.Time) {
	if s, ok := ev.(realtime.StatsUpdate); ok {
		stats := s.Stats
		m.Live = &stats
		return
	}
	entry := Entry{At: at, Type: ev.Type(), Title: Describe(ev), Color: entryColor(ev)}
	m.feed = append([]Entry{entry}, m.feed...)
	if len(m.feed) > maxFeed {
		m.feed = m.feed[:maxFeed]
	}
}

func (m Model) Feed() []Entry {
	return m.feed
}

func (m *Model) ClearFeed() {
	m.feed = nil
}

// Describe renders a one-line summary of ev.
func Describe(ev realtime.Event) string {
	switch e := ev.(type) {
	case realtime.Connected:
		return e.Message
	case realtime.AgentCreated:
		return fmt.Sprintf("agent created: %s (%s)", e.Agent.Name, e.Agent.Model)
	case realtime.AgentUpdated:
		return fmt.Sprintf("agent updated: %s", e.Agent.Name)
	case realtime.AgentStatusUpdated:
		return fmt.Sprintf("%s %s is now %s", theme.StatusGlyph(string(e.Agent.Status)), e.Agent.Name, e.Agent.Status)
	case realtime.AgentDeleted:
		return fmt.Sprintf("agent deleted: %s", e.ID)
	case realtime.GPUResourceCreated:
		return fmt.Sprintf("gpu added: %s %s (%s)", e.Resource.Model, e.Resource.VRAM, e.Resource.Provider)
	case realtime.GPUResourceUpdated:
		return fmt.Sprintf("gpu %s is %s", e.Resource.Model, e.Resource.Status)
	case realtime.ResourceUsageCreated:
		return fmt.Sprintf("usage: gpu %.1f%% cpu %.1f%% mem %.1f%%",
			e.Usage.GPUUtilization, e.Usage.CPUUtilization, e.Usage.MemoryUsage)
	case realtime.CostAnalyticsCreated:
		return fmt.Sprintf("%s cost: $%s", e.Analytics.Period, formatMoney(e.Analytics.TotalCost))
	case realtime.PerformanceMetricsCreated:
		return fmt.Sprintf("performance: %.0fms avg, %.1f%% success",
			e.Metrics.AvgResponseTime, e.Metrics.SuccessRate)
	case realtime.AlertCreated:
		return fmt.Sprintf("[%s] %s", strings.ToUpper(string(e.Alert.Severity)), e.Alert.Title)
	case realtime.AlertRead:
		return fmt.Sprintf("alert read: %s", e.ID)
	case realtime.StatsUpdate:
		return fmt.Sprintf("stats: gpu %.1f%% cpu %.1f%%", e.Stats.GPUUtilization, e.Stats.CPUUtilization)
	case realtime.Unknown:
		if e.Err != nil {
			return fmt.Sprintf("%s with unreadable data", e.Kind)
		}
		return fmt.Sprintf("unrecognized event %q", e.Kind)
	default:
		return string(ev.Type())
	}
}

// entryColor uses the agent status or alert severity where the event
// carries one and falls back to the per-type palette.
func entryColor(ev realtime.Event) lipgloss.Color {
	switch e := ev.(type) {
	case realtime.AgentStatusUpdated:
		return theme.AgentStatusColor(string(e.Agent.Status))
	case realtime.AlertCreated:
		return theme.SeverityColor(string(e.Alert.Severity))
	default:
		return theme.EventColor(string(ev.Type()))
	}
}

func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderSummary(width),
		m.renderLive(width),
		m.renderFeed(width),
	)
}

func (m Model) renderSummary(width int) string {
	statStyle := lipgloss.NewStyle().Padding(0, 1)

	var content string
	switch {
	case m.Summary != nil:
		s := m.Summary
		stats := []string{
			statStyle.Foreground(theme.ColorRunning).Render(
				fmt.Sprintf("Agents: %d/%d active", s.ActiveAgents, s.TotalAgents)),
			statStyle.Foreground(theme.UtilizationColor(s.GPUUtilization)).Render(
				fmt.Sprintf("GPU: %.1f%%", s.GPUUtilization)),
			statStyle.Foreground(theme.ColorBright).Render(
				fmt.Sprintf("Req/min: %s", formatCount(s.TotalRequests))),
			statStyle.Foreground(theme.ColorCost).Render(
				fmt.Sprintf("Month: $%s", formatMoney(s.MonthlyCost))),
			statStyle.Foreground(theme.ColorScaling).Render(
				fmt.Sprintf("Free GPUs: %d", s.AvailableGPUs)),
		}
		content = strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))
	case m.Err != nil:
		content = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("summary unavailable: " + m.Err.Error())
	default:
		content = theme.StyleDimmed.Render("loading summary...")
	}

	return theme.StyleBorder.
		Width(width).
		Padding(0, 1).
		Render(content)
}

func (m Model) renderLive(width int) string {
	header := theme.StyleHeader.Render("  Live")
	if m.Live == nil {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  waiting for stats_update..."))
	}

	barWidth := min(30, max(10, width/3))
	l := m.Live
	lines := []string{
		header,
		"  GPU  " + renderBar(l.GPUUtilization, barWidth),
		"  CPU  " + renderBar(l.CPUUtilization, barWidth),
		theme.StyleDimmed.Render(fmt.Sprintf("  %s req/min   %dms response   at %s",
			formatCount(l.RequestsPerMinute), l.ResponseTime, l.Timestamp.Local().Format("15:04:05"))),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderFeed(width int) string {
	header := theme.StyleHeader.Render("  Events")
	if len(m.feed) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  No events yet"))
	}

	rows := len(m.feed)
	if m.Height > 0 {
		rows = min(rows, max(3, m.Height))
	}

	lines := []string{header}
	for _, e := range m.feed[:rows] {
		title := e.Title
		if room := width - 14; room > 4 && len(title) > room {
			title = title[:room-1] + "…"
		}
		lines = append(lines, fmt.Sprintf("  %s %s",
			theme.StyleDimmed.Render(e.At.Local().Format("15:04:05")),
			lipgloss.NewStyle().Foreground(e.Color).Render(title)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderBar draws a utilization bar for a percentage in [0,100].
func renderBar(pct float64, barWidth int) string {
	if barWidth < 8 {
		barWidth = 8
	}

	filled := max(0, min(int(pct/100*float64(barWidth)), barWidth))
	empty := barWidth - filled

	color := theme.UtilizationColor(pct)
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	bar += lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(strings.Repeat("░", empty))
	label := fmt.Sprintf(" %5.1f%%", pct)

	return bar + lipgloss.NewStyle().Foreground(color).Render(label)
}

// formatCount formats large numbers with K/M suffixes.
func formatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// formatMoney renders whole dollars with thousands separators.
func formatMoney(v float64) string {
	n := int64(math.Round(v))
	neg := n < 0
	if neg {
		n = -n
	}
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
