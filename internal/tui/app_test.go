package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/apexops/dashboard/internal/client"
	"github.com/apexops/dashboard/internal/domain"
	"github.com/apexops/dashboard/internal/realtime"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeRealtime struct {
	session     client.Session
	connects    int
	disconnects int
}

func (f *fakeRealtime) Connect(context.Context) error { f.connects++; return nil }
func (f *fakeRealtime) Disconnect()                   { f.disconnects++ }
func (f *fakeRealtime) Session() client.Session       { return f.session }
func (f *fakeRealtime) MaxRetries() int               { return client.DefaultMaxRetries }

type fakeSummary struct {
	stats  domain.DashboardStats
	err    error
	userID string
}

func (f *fakeSummary) DashboardStats(_ context.Context, userID string) (domain.DashboardStats, error) {
	f.userID = userID
	return f.stats, f.err
}

func sized(t *testing.T, m Model, width int) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: 40})
	return next.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestView_Initializing(t *testing.T) {
	m := New(nil, nil, nil, Config{})
	if got := m.View(); got != "Initializing..." {
		t.Errorf("View() = %q before the first resize", got)
	}
}

func TestDisconnectOverlay(t *testing.T) {
	rt := &fakeRealtime{session: client.Session{Status: client.StatusDisconnected, Retries: 1}}
	m := sized(t, New(rt, nil, nil, Config{Endpoint: "ws://example/ws"}), 100)
	m, _ = update(t, m, DisconnectedMsg{Err: errors.New("closed")})

	v := m.View()
	if !strings.Contains(v, "DISCONNECTED") {
		t.Error("disconnect overlay should contain 'DISCONNECTED'")
	}
	if !strings.Contains(v, "Reconnecting (1/5)") {
		t.Error("disconnect overlay should contain 'Reconnecting (1/5)'")
	}
}

func TestDisconnectOverlay_Exhausted(t *testing.T) {
	rt := &fakeRealtime{session: client.Session{Status: client.StatusDisconnected, Retries: 5, Exhausted: true}}
	m := sized(t, New(rt, nil, nil, Config{}), 120)
	m, _ = update(t, m, DisconnectedMsg{})

	v := m.View()
	if !strings.Contains(v, "Press r to reconnect") {
		t.Errorf("exhausted overlay should offer a manual reconnect, got:\n%s", v)
	}
	if strings.Contains(v, "Reconnecting (") {
		t.Error("exhausted overlay should not claim a retry is pending")
	}
}

func TestConnectedHidesOverlay(t *testing.T) {
	rt := &fakeRealtime{session: client.Session{Status: client.StatusConnected}}
	m := sized(t, New(rt, nil, nil, Config{}), 100)
	m, cmd := update(t, m, ConnectedMsg{})

	if cmd == nil {
		t.Fatal("ConnectedMsg should keep listening on the bridge")
	}
	v := m.View()
	if !strings.Contains(v, "CONNECTED") || strings.Contains(v, "DISCONNECTED") {
		t.Errorf("connected view should show CONNECTED only, got:\n%s", v)
	}
}

func TestEventMsg_FeedAndLive(t *testing.T) {
	m := sized(t, New(nil, nil, nil, Config{}), 100)

	m, _ = update(t, m, EventMsg{Event: realtime.AgentCreated{Agent: domain.Agent{Name: "Atlas", Model: "GPT-4"}}})
	m, _ = update(t, m, EventMsg{Event: realtime.StatsUpdate{Stats: domain.LiveStats{GPUUtilization: 81.5}}})

	feed := m.dashboard.Feed()
	if len(feed) != 1 {
		t.Fatalf("feed has %d entries, want 1 (stats updates stay out of the feed)", len(feed))
	}
	if feed[0].Type != realtime.TypeAgentCreated {
		t.Errorf("feed[0].Type = %q", feed[0].Type)
	}
	if m.dashboard.Live == nil || m.dashboard.Live.GPUUtilization != 81.5 {
		t.Errorf("Live = %+v, want the last stats sample", m.dashboard.Live)
	}
	if m.statusBar.Events != 2 {
		t.Errorf("Events = %d, want 2", m.statusBar.Events)
	}
	if !strings.Contains(m.View(), "agent created: Atlas") {
		t.Error("view should list the agent_created event")
	}
}

func TestAffectsSummary(t *testing.T) {
	tests := []struct {
		ev   realtime.Event
		want bool
	}{
		{realtime.AgentDeleted{ID: "a"}, true},
		{realtime.GPUResourceUpdated{}, true},
		{realtime.CostAnalyticsCreated{}, true},
		{realtime.StatsUpdate{}, false},
		{realtime.AlertCreated{}, false},
		{realtime.Unknown{Kind: "mystery"}, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.ev.Type()), func(t *testing.T) {
			if got := affectsSummary(tt.ev); got != tt.want {
				t.Errorf("affectsSummary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	api := &fakeSummary{stats: domain.DashboardStats{
		ActiveAgents: 1, TotalAgents: 3, GPUUtilization: 75, TotalRequests: 1500,
		MonthlyCost: 47329, AvailableGPUs: 2,
	}}
	m := sized(t, New(nil, api, nil, Config{UserID: "demo-user-1"}), 200)

	msg := m.fetchSummary()()
	m, _ = update(t, m, msg)

	if api.userID != "demo-user-1" {
		t.Errorf("userID = %q", api.userID)
	}
	v := m.View()
	for _, want := range []string{"Agents: 1/3 active", "$47,329", "Free GPUs: 2"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSummary_Error(t *testing.T) {
	api := &fakeSummary{err: errors.New("boom")}
	m := sized(t, New(nil, api, nil, Config{}), 120)

	m, _ = update(t, m, m.fetchSummary()())

	if !strings.Contains(m.View(), "summary unavailable: boom") {
		t.Error("view should show the summary error")
	}
}

func TestKeys(t *testing.T) {
	t.Run("quit disconnects", func(t *testing.T) {
		rt := &fakeRealtime{}
		m := New(rt, nil, nil, Config{})
		_, cmd := update(t, m, keyMsg("q"))
		if cmd == nil {
			t.Fatal("quit should return a command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("quit command should produce tea.QuitMsg")
		}
		if rt.disconnects != 1 {
			t.Errorf("disconnects = %d, want 1", rt.disconnects)
		}
		if m.ctx.Err() == nil {
			t.Error("quit should cancel the model context")
		}
	})

	t.Run("reconnect", func(t *testing.T) {
		rt := &fakeRealtime{}
		m := New(rt, nil, nil, Config{})
		_, cmd := update(t, m, keyMsg("r"))
		if cmd == nil {
			t.Fatal("reconnect should return a command")
		}
		cmd()
		if rt.connects != 1 {
			t.Errorf("connects = %d, want 1", rt.connects)
		}
	})

	t.Run("clear feed", func(t *testing.T) {
		m := New(nil, nil, nil, Config{})
		m, _ = update(t, m, EventMsg{Event: realtime.AlertRead{ID: "x"}})
		m, _ = update(t, m, keyMsg("c"))
		if n := len(m.dashboard.Feed()); n != 0 {
			t.Errorf("feed has %d entries after clear", n)
		}
	})

	t.Run("help toggles", func(t *testing.T) {
		m := New(nil, nil, nil, Config{})
		m, _ = update(t, m, keyMsg("?"))
		if !m.help.ShowAll {
			t.Error("? should expand the help")
		}
	})
}

func TestBridge(t *testing.T) {
	b := NewBridge()
	h := b.Handlers()

	h.OnConnect()
	h.OnEvent(realtime.AlertRead{ID: "a1"})
	h.OnDisconnect(errors.New("eof"))

	if _, ok := b.Next()().(ConnectedMsg); !ok {
		t.Error("first message should be ConnectedMsg")
	}
	if ev, ok := b.Next()().(EventMsg); !ok || ev.Event.(realtime.AlertRead).ID != "a1" {
		t.Error("second message should carry the alert_read event")
	}
	if d, ok := b.Next()().(DisconnectedMsg); !ok || d.Err == nil {
		t.Error("third message should be DisconnectedMsg with its cause")
	}
}

func TestBridge_DropsWhenFull(t *testing.T) {
	b := NewBridge()
	h := b.Handlers()

	done := make(chan struct{})
	go func() {
		for i := 0; i < bridgeBuffer+10; i++ {
			h.OnConnect()
		}
		close(done)
	}()
	<-done

	if n := len(b.msgs); n != bridgeBuffer {
		t.Errorf("buffered %d messages, want %d", n, bridgeBuffer)
	}
}

func TestConnectionLog(t *testing.T) {
	rt := &fakeRealtime{session: client.Session{Status: client.StatusDisconnected, Retries: 1}}
	m := sized(t, New(rt, nil, nil, Config{Endpoint: "ws://example/ws"}), 120)

	m, _ = update(t, m, DisconnectedMsg{Err: errors.New("dial tcp: connection refused")})
	m, _ = update(t, m, EventMsg{Event: realtime.Unknown{Kind: "mystery"}})
	m, _ = update(t, m, EventMsg{Event: realtime.Unknown{Kind: realtime.TypeAgentUpdated, Err: realtime.ErrMissingData}})
	m, _ = update(t, m, keyMsg("l"))

	v := m.View()
	for _, want := range []string{"CONNECTION LOG", "connection refused", `unrecognized event type "mystery"`, "agent_updated: event has no data"} {
		if !strings.Contains(v, want) {
			t.Errorf("log overlay missing %q", want)
		}
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.showLog {
		t.Error("esc should close the log")
	}
}
