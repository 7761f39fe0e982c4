package app

import (
	"context"
	"fmt"
	"time"

	"github.com/apexops/dashboard/internal/client"
	"github.com/apexops/dashboard/internal/domain"
	"github.com/apexops/dashboard/internal/realtime"
	"github.com/apexops/dashboard/internal/tui/theme"
	"github.com/apexops/dashboard/internal/tui/views/connlog"
	"github.com/apexops/dashboard/internal/tui/views/dashboard"
	"github.com/apexops/dashboard/internal/tui/views/status"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = time.Second
	summaryTimeout  = 5 * time.Second
	// Rows used by everything except the event feed.
	chromeHeight = 16
)

// Realtime is the part of *client.Client the TUI drives.
type Realtime interface {
	Connect(ctx context.Context) error
	Disconnect()
	Session() client.Session
	MaxRetries() int
}

// SummarySource fetches the dashboard summary row.
type SummarySource interface {
	DashboardStats(ctx context.Context, userID string) (domain.DashboardStats, error)
}

type Config struct {
	Endpoint string
	UserID   string
}

type summaryMsg struct {
	stats domain.DashboardStats
	err   error
}

type tickMsg time.Time

// Model is the root Bubble Tea model.
type Model struct {
	rt     Realtime
	api    SummarySource
	bridge *Bridge
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	keys    KeyMap
	help    help.Model
	width   int
	height  int
	showLog bool

	statusBar status.Model
	dashboard dashboard.Model
	connLog   connlog.Model
}

// New creates the root model. rt and api may be nil, in which case the
// corresponding commands do nothing.
func New(rt Realtime, api SummarySource, bridge *Bridge, cfg Config) Model {
	ctx, cancel := context.WithCancel(context.Background())
	if bridge == nil {
		bridge = NewBridge()
	}
	maxRetries := client.DefaultMaxRetries
	if rt != nil {
		maxRetries = rt.MaxRetries()
	}
	return Model{
		rt:        rt,
		api:       api,
		bridge:    bridge,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		statusBar: status.New(cfg.Endpoint, maxRetries),
		dashboard: dashboard.New(),
		connLog:   connlog.New(),
	}
}

// Init starts the realtime connection and the first summary fetch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.connect(), m.bridge.Next(), m.fetchSummary(), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		m.dashboard.Height = max(0, msg.Height-chromeHeight)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ConnectedMsg:
		m.refreshSession()
		m.connLog.Record(time.Now(), connlog.KindConn, "connected to %s", m.cfg.Endpoint)
		return m, tea.Batch(m.bridge.Next(), m.fetchSummary())

	case DisconnectedMsg:
		m.refreshSession()
		m.recordDisconnect(msg.Err)
		return m, m.bridge.Next()

	case EventMsg:
		if u, ok := msg.Event.(realtime.Unknown); ok {
			if u.Err != nil {
				m.connLog.Record(time.Now(), connlog.KindEvent, "%s: %v", u.Kind, u.Err)
			} else {
				m.connLog.Record(time.Now(), connlog.KindEvent, "unrecognized event type %q", u.Kind)
			}
		}
		m.dashboard.Push(msg.Event, time.Now())
		m.statusBar.Events++
		m.refreshSession()
		if affectsSummary(msg.Event) {
			return m, tea.Batch(m.bridge.Next(), m.fetchSummary())
		}
		return m, m.bridge.Next()

	case summaryMsg:
		if msg.err != nil {
			m.dashboard.Err = msg.err
			m.connLog.Record(time.Now(), connlog.KindAPI, "dashboard stats: %v", msg.err)
			return m, nil
		}
		stats := msg.stats
		m.dashboard.Summary = &stats
		m.dashboard.Err = nil
		return m, nil

	case tickMsg:
		m.refreshSession()
		return m, tick()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		if m.rt != nil {
			m.rt.Disconnect()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Reconnect):
		return m, m.connect()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchSummary()

	case key.Matches(msg, m.keys.Clear):
		m.dashboard.ClearFeed()
		return m, nil

	case key.Matches(msg, m.keys.Log):
		m.showLog = !m.showLog
		return m, nil

	case m.showLog && key.Matches(msg, m.keys.Close):
		m.showLog = false
		return m, nil

	case m.showLog && key.Matches(msg, m.keys.Up):
		m.connLog.Older(1)
		return m, nil

	case m.showLog && key.Matches(msg, m.keys.Down):
		m.connLog.Newer(1)
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	return m, nil
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{m.statusBar.View()}
	if m.statusBar.Session.Status == client.StatusDisconnected {
		sections = append(sections, m.renderDisconnected())
	}
	body := m.dashboard.View()
	if m.showLog {
		body = m.connLog.View(m.width, max(10, m.height-chromeHeight/2))
	}
	sections = append(sections, body, "  "+m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	s := m.statusBar.Session
	var detail string
	switch {
	case s.Exhausted:
		detail = fmt.Sprintf("Gave up after %d reconnection attempts. Press r to reconnect.", m.statusBar.MaxRetries)
	case s.Retries > 0:
		detail = fmt.Sprintf("Reconnecting (%d/%d)...", s.Retries, m.statusBar.MaxRetries)
	default:
		detail = "Reconnecting..."
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render("DISCONNECTED")
	return lipgloss.NewStyle().
		Width(max(40, m.width-2)).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorDanger).
		Render(title + "  " + theme.StyleDimmed.Render(detail))
}

func (m *Model) recordDisconnect(err error) {
	switch {
	case err == nil:
		m.connLog.Record(time.Now(), connlog.KindConn, "disconnected")
	case m.statusBar.Session.Exhausted:
		m.connLog.Record(time.Now(), connlog.KindError, "%v; giving up after %d attempts", err, m.statusBar.MaxRetries)
	default:
		m.connLog.Record(time.Now(), connlog.KindError, "%v", err)
	}
}

func (m *Model) refreshSession() {
	if m.rt != nil {
		m.statusBar.Session = m.rt.Session()
	}
}

func (m Model) connect() tea.Cmd {
	if m.rt == nil {
		return nil
	}
	rt, ctx := m.rt, m.ctx
	return func() tea.Msg {
		// Failures are reported through the bridge as DisconnectedMsg.
		rt.Connect(ctx)
		return nil
	}
}

func (m Model) fetchSummary() tea.Cmd {
	if m.api == nil {
		return nil
	}
	api, parent, userID := m.api, m.ctx, m.cfg.UserID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, summaryTimeout)
		defer cancel()
		stats, err := api.DashboardStats(ctx, userID)
		return summaryMsg{stats: stats, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// affectsSummary reports whether ev can change the dashboard summary row.
func affectsSummary(ev realtime.Event) bool {
	switch ev.(type) {
	case realtime.AgentCreated, realtime.AgentUpdated, realtime.AgentStatusUpdated, realtime.AgentDeleted,
		realtime.GPUResourceCreated, realtime.GPUResourceUpdated,
		realtime.ResourceUsageCreated, realtime.CostAnalyticsCreated:
		return true
	}
	return false
}
