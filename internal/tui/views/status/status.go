package status

import (
	"fmt"

	"github.com/apexops/dashboard/internal/client"
	"github.com/apexops/dashboard/internal/tui/theme"
	"github.com/charmbracelet/lipgloss"
)

// Model holds the status bar state.
type Model struct {
	Endpoint   string
	Session    client.Session
	MaxRetries int
	Events     int
	Width      int
}

func New(endpoint string, maxRetries int) Model {
	return Model{
		Endpoint:   endpoint,
		MaxRetries: maxRetries,
		Session:    client.Session{Status: client.StatusDisconnected},
	}
}

// Label describes the connection state in a few words.
func (m Model) Label() string {
	switch m.Session.Status {
	case client.StatusConnected:
		return "CONNECTED"
	case client.StatusConnecting:
		if m.Session.Retries > 0 {
			return fmt.Sprintf("Reconnecting (%d/%d)", m.Session.Retries, m.MaxRetries)
		}
		return "Connecting..."
	default:
		if m.Session.Retries > 0 && !m.Session.Exhausted {
			return fmt.Sprintf("Reconnecting (%d/%d)", m.Session.Retries, m.MaxRetries)
		}
		return "DISCONNECTED"
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch m.Session.Status {
	case client.StatusConnected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● " + m.Label())
	case client.StatusConnecting:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("◌ " + m.Label())
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ " + m.Label())
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep +
		theme.StyleDimmed.Render(m.Endpoint) + sep +
		fmt.Sprintf("%d events", m.Events)

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
