package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/apexops/dashboard/internal/domain"
	"github.com/apexops/dashboard/internal/realtime"
	"github.com/apexops/dashboard/internal/tui/theme"
)

var at = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestPushPrependsNewest(t *testing.T) {
	m := New()
	m.Push(realtime.AgentDeleted{ID: "first"}, at)
	m.Push(realtime.AgentDeleted{ID: "second"}, at.Add(time.Second))

	feed := m.Feed()
	if len(feed) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(feed))
	}
	if !strings.Contains(feed[0].Title, "second") {
		t.Errorf("expected newest entry first, got %q", feed[0].Title)
	}
}

func TestPushCapsFeed(t *testing.T) {
	m := New()
	for i := 0; i < maxFeed+20; i++ {
		m.Push(realtime.AlertRead{ID: "a"}, at)
	}
	if len(m.Feed()) != maxFeed {
		t.Errorf("expected %d entries, got %d", maxFeed, len(m.Feed()))
	}
}

func TestPushStatsUpdate(t *testing.T) {
	m := New()
	m.Push(realtime.StatsUpdate{Stats: domain.LiveStats{CPUUtilization: 55.5, Timestamp: at}}, at)

	if len(m.Feed()) != 0 {
		t.Error("stats updates should not enter the feed")
	}
	if m.Live == nil || m.Live.CPUUtilization != 55.5 {
		t.Errorf("expected live stats to be set, got %+v", m.Live)
	}
}

func TestEntryColor(t *testing.T) {
	m := New()
	m.Push(realtime.AlertCreated{Alert: domain.Alert{Severity: "critical", Title: "GPU down"}}, at)
	m.Push(realtime.AgentStatusUpdated{Agent: domain.Agent{Name: "Atlas", Status: domain.AgentError}}, at)
	m.Push(realtime.AgentDeleted{ID: "x"}, at)

	feed := m.Feed()
	if feed[0].Color != theme.ColorDeleted {
		t.Errorf("agent_deleted color = %v", feed[0].Color)
	}
	if feed[1].Color != theme.ColorError {
		t.Errorf("agent status color = %v", feed[1].Color)
	}
	if feed[2].Color != theme.ColorCritical {
		t.Errorf("alert severity color = %v", feed[2].Color)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		ev   realtime.Event
		want string
	}{
		{realtime.Connected{Message: "hello"}, "hello"},
		{realtime.AgentCreated{Agent: domain.Agent{Name: "Atlas", Model: "GPT-4"}}, "agent created: Atlas (GPT-4)"},
		{realtime.AgentStatusUpdated{Agent: domain.Agent{Name: "Atlas", Status: domain.AgentRunning}}, "● Atlas is now running"},
		{realtime.GPUResourceUpdated{Resource: domain.GPUResource{Model: "A100", Status: domain.GPUInUse}}, "gpu A100 is in_use"},
		{realtime.CostAnalyticsCreated{Analytics: domain.CostAnalytics{Period: "monthly", TotalCost: 47329.4}}, "monthly cost: $47,329"},
		{realtime.AlertCreated{Alert: domain.Alert{Severity: "high", Title: "Hot GPU"}}, "[HIGH] Hot GPU"},
		{realtime.Unknown{Kind: "mystery"}, `unrecognized event "mystery"`},
		{realtime.Unknown{Kind: realtime.TypeAgentUpdated, Err: realtime.ErrMissingData}, "agent_updated with unreadable data"},
	}
	for _, tt := range tests {
		t.Run(string(tt.ev.Type()), func(t *testing.T) {
			if got := Describe(tt.ev); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatMoney(t *testing.T) {
	tests := map[float64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		47329:    "47,329",
		1234567:  "1,234,567",
		-2500.49: "-2,500",
	}
	for in, want := range tests {
		if got := formatMoney(in); got != want {
			t.Errorf("formatMoney(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestViewEmpty(t *testing.T) {
	m := New()
	m.Width = 80
	v := m.View()
	for _, want := range []string{"loading summary...", "waiting for stats_update", "No events yet"} {
		if !strings.Contains(v, want) {
			t.Errorf("expected %q in empty view", want)
		}
	}
}
