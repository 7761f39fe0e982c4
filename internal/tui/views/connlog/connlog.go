// Package connlog keeps a scrollable history of connection and API
// activity, shown as an overlay in the TUI.
package connlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/apexops/dashboard/internal/tui/theme"
	"github.com/charmbracelet/lipgloss"
)

const maxLines = 200

// Kind tags a log line with where it came from.
type Kind string

const (
	KindConn  Kind = "conn"
	KindEvent Kind = "evt"
	KindAPI   Kind = "api"
	KindError Kind = "err"
)

type Line struct {
	At   time.Time
	Kind Kind
	Text string
}

// Model is the log buffer plus its scroll position, counted in lines from
// the newest entry.
type Model struct {
	Lines  []Line
	Scroll int
}

func New() Model {
	return Model{}
}

// Record appends a line, keeps the newest maxLines and jumps back to the
// bottom.
func (m *Model) Record(at time.Time, kind Kind, format string, args ...any) {
	m.Lines = append(m.Lines, Line{At: at, Kind: kind, Text: fmt.Sprintf(format, args...)})
	if len(m.Lines) > maxLines {
		m.Lines = m.Lines[len(m.Lines)-maxLines:]
	}
	m.Scroll = 0
}

func (m *Model) Older(n int) {
	m.Scroll = min(m.Scroll+n, max(0, len(m.Lines)-1))
}

func (m *Model) Newer(n int) {
	m.Scroll = max(0, m.Scroll-n)
}

// View renders the overlay panel into width x height.
func (m Model) View(width, height int) string {
	innerW := max(20, width-4)
	rows := max(3, height-6)

	title := theme.StyleHeader.Render(" CONNECTION LOG ")
	footer := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  esc:close  %d lines", len(m.Lines)))

	panel := lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)

	if len(m.Lines) == 0 {
		return panel.Render(lipgloss.JoinVertical(lipgloss.Left,
			title, "", theme.StyleDimmed.Render("  Nothing logged yet."), "", footer))
	}

	end := len(m.Lines) - m.Scroll
	start := max(0, end-rows)

	out := make([]string, 0, end-start)
	for _, l := range m.Lines[start:end] {
		text := l.Text
		if room := innerW - 20; room > 3 && len(text) > room {
			text = text[:room-3] + "..."
		}
		out = append(out, fmt.Sprintf("%s %s %s",
			theme.StyleDimmed.Render(l.At.Local().Format("15:04:05.000")),
			lipgloss.NewStyle().Foreground(kindColor(l.Kind)).Width(4).Render(string(l.Kind)),
			text))
	}

	more := ""
	if m.Scroll > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.Scroll))
	}
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(out, "\n"), more, footer))
}

func kindColor(k Kind) lipgloss.Color {
	switch k {
	case KindConn:
		return theme.ColorHealthy
	case KindEvent:
		return theme.ColorUpdated
	case KindAPI:
		return theme.ColorWarning
	case KindError:
		return theme.ColorDanger
	default:
		return theme.ColorDimmed
	}
}
