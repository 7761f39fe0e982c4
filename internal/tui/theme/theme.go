// Package theme provides the Lip Gloss color palette and reusable styles
// for the ApexOps TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Agent status colors.
var (
	ColorRunning = lipgloss.Color("#22c55e")
	ColorStopped = lipgloss.Color("#6b7280")
	ColorScaling = lipgloss.Color("#3b82f6")
	ColorError   = lipgloss.Color("#dc2626")
)

// Alert severity colors.
var (
	ColorLow      = lipgloss.Color("#9ca3af")
	ColorMedium   = lipgloss.Color("#f59e0b")
	ColorHigh     = lipgloss.Color("#f97316")
	ColorCritical = lipgloss.Color("#dc2626")
)

// Utilization thresholds.
var (
	ColorUtilLow  = lipgloss.Color("#22c55e") // <50%
	ColorUtilMid  = lipgloss.Color("#d97706") // 50-80%
	ColorUtilHigh = lipgloss.Color("#dc2626") // >80%
)

// Event feed colors.
var (
	ColorCreated = lipgloss.Color("#22c55e")
	ColorUpdated = lipgloss.Color("#06b6d4")
	ColorDeleted = lipgloss.Color("#f97316")
	ColorAlert   = lipgloss.Color("#f59e0b")
	ColorCost    = lipgloss.Color("#a855f7")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// AgentStatusColor returns the color for an agent status string.
func AgentStatusColor(status string) lipgloss.Color {
	switch status {
	case "running":
		return ColorRunning
	case "stopped":
		return ColorStopped
	case "scaling":
		return ColorScaling
	case "error":
		return ColorError
	default:
		return ColorDefault
	}
}

// SeverityColor returns the color for an alert severity.
func SeverityColor(severity string) lipgloss.Color {
	switch severity {
	case "low":
		return ColorLow
	case "medium":
		return ColorMedium
	case "high":
		return ColorHigh
	case "critical":
		return ColorCritical
	default:
		return ColorDefault
	}
}

// UtilizationColor returns the color for a utilization percentage in [0,100].
func UtilizationColor(pct float64) lipgloss.Color {
	switch {
	case pct > 80:
		return ColorUtilHigh
	case pct > 50:
		return ColorUtilMid
	default:
		return ColorUtilLow
	}
}

// EventColor picks a feed color from the event type suffix.
func EventColor(eventType string) lipgloss.Color {
	switch {
	case eventType == "alert_created":
		return ColorAlert
	case eventType == "cost_analytics_created":
		return ColorCost
	case strings.HasSuffix(eventType, "_created"):
		return ColorCreated
	case strings.HasSuffix(eventType, "_deleted"):
		return ColorDeleted
	case strings.HasSuffix(eventType, "_updated"), strings.HasSuffix(eventType, "_read"):
		return ColorUpdated
	default:
		return ColorDefault
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)
)

// StatusGlyph returns a Unicode glyph for an agent status.
func StatusGlyph(status string) string {
	switch status {
	case "running":
		return "●"
	case "scaling":
		return "◎"
	case "stopped":
		return "○"
	case "error":
		return "✗"
	default:
		return "·"
	}
}
