package app

import (
	"github.com/apexops/dashboard/internal/client"
	"github.com/apexops/dashboard/internal/realtime"
	tea "github.com/charmbracelet/bubbletea"
)

const bridgeBuffer = 256

// ConnectedMsg is sent when the realtime connection opens.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the connection closes or a dial fails.
type DisconnectedMsg struct{ Err error }

// EventMsg delivers one decoded realtime event.
type EventMsg struct{ Event realtime.Event }

// Bridge turns client callbacks into Bubble Tea messages. Create it before
// the client so its handlers can be passed to client.New.
type Bridge struct {
	msgs chan tea.Msg
}

func NewBridge() *Bridge {
	return &Bridge{msgs: make(chan tea.Msg, bridgeBuffer)}
}

func (b *Bridge) Handlers() client.Handlers {
	return client.Handlers{
		OnConnect:    func() { b.send(ConnectedMsg{}) },
		OnDisconnect: func(err error) { b.send(DisconnectedMsg{Err: err}) },
		OnEvent:      func(ev realtime.Event) { b.send(EventMsg{Event: ev}) },
	}
}

// send never blocks the client's goroutines. When the UI falls behind,
// messages are dropped; the periodic session refresh repairs the status.
func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.msgs <- msg:
	default:
	}
}

// Next returns a command that waits for the next bridged message.
func (b *Bridge) Next() tea.Cmd {
	return func() tea.Msg {
		return <-b.msgs
	}
}
