package realtime

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/apexops/dashboard/internal/domain"
	"github.com/apexops/dashboard/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeConn records text frames. failAfter > 0 makes every write after the
// first failAfter frames fail; block, when set, stalls writes until closed.
type fakeConn struct {
	mu        sync.Mutex
	frames    [][]byte
	failAfter int
	block     chan struct{}
	closes    int
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	if f.block != nil {
		<-f.block
	}
	if messageType != websocket.TextMessage {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.frames) >= f.failAfter {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeConn) types(t *testing.T) []EventType {
	t.Helper()
	var out []EventType
	for _, frame := range f.snapshot() {
		ev, err := Decode(frame)
		if err != nil {
			t.Fatalf("decode %s: %v", frame, err)
		}
		out = append(out, ev.Type())
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitFrames(t *testing.T, f *fakeConn, n int) {
	t.Helper()
	waitFor(t, fmt.Sprintf("%d frames", n), func() bool { return len(f.snapshot()) >= n })
}

func agentCreated(id string) Event {
	return AgentCreated{Agent: domain.Agent{ID: id, Name: "X"}}
}

func TestRegister_ConnectedIsFirstFrame(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	conn := &fakeConn{}
	if _, err := reg.Register(conn); err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.Broadcast(agentCreated("a1"))
	waitFrames(t, conn, 2)

	first, err := Decode(conn.snapshot()[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c, ok := first.(Connected)
	if !ok {
		t.Fatalf("first frame = %T, want Connected", first)
	}
	if c.Message != ConnectedMessage {
		t.Errorf("message = %q, want %q", c.Message, ConnectedMessage)
	}
}

func TestBroadcast_ReachesExactlyRegistered(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	clients := map[*fakeConn]*Client{}
	for _, conn := range []*fakeConn{a, b, c} {
		cl, err := reg.Register(conn)
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		clients[conn] = cl
	}

	reg.Unregister(clients[b])
	late := &fakeConn{}
	if _, err := reg.Register(late); err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg.Broadcast(agentCreated("a1"))

	for name, conn := range map[string]*fakeConn{"a": a, "c": c, "late": late} {
		waitFrames(t, conn, 2)
		got := conn.types(t)
		if got[1] != TypeAgentCreated {
			t.Errorf("%s frames = %v, want agent_created second", name, got)
		}
	}
	for _, typ := range b.types(t) {
		if typ == TypeAgentCreated {
			t.Fatal("unregistered connection received a broadcast")
		}
	}
	if got := reg.Count(); got != 3 {
		t.Errorf("Count = %d, want 3", got)
	}
}

func TestBroadcast_WriteErrorIsolated(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	broken := &fakeConn{failAfter: 1}
	b, c := &fakeConn{}, &fakeConn{}
	for _, conn := range []*fakeConn{broken, b, c} {
		if _, err := reg.Register(conn); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	waitFrames(t, broken, 1)

	reg.Broadcast(agentCreated("a1"))
	reg.Broadcast(AgentDeleted{ID: "a1"})

	for _, conn := range []*fakeConn{b, c} {
		waitFrames(t, conn, 3)
		got := conn.types(t)
		if got[1] != TypeAgentCreated || got[2] != TypeAgentDeleted {
			t.Errorf("frames = %v", got)
		}
	}
	waitFor(t, "broken connection removal", func() bool { return reg.Count() == 2 })
}

func TestUnregister_Idempotent(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	conn := &fakeConn{}
	c, err := reg.Register(conn)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg.Unregister(c)
	reg.Unregister(c)

	if got := reg.Count(); got != 0 {
		t.Fatalf("Count = %d, want 0", got)
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Unregister")
	}
	waitFor(t, "conn close", func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.closes == 1
	})
}

func TestBroadcast_DropsSlowConsumer(t *testing.T) {
	reg := NewRegistry(WithSendBuffer(2))
	defer reg.Close()

	slow := &fakeConn{block: make(chan struct{})}
	defer close(slow.block)
	fast := &fakeConn{}

	if _, err := reg.Register(slow); err != nil {
		t.Fatalf("Register slow: %v", err)
	}
	if _, err := reg.Register(fast); err != nil {
		t.Fatalf("Register fast: %v", err)
	}
	waitFrames(t, fast, 1)

	for i := 0; i < 3; i++ {
		reg.Broadcast(agentCreated(fmt.Sprintf("a%d", i)))
		waitFrames(t, fast, i+2)
	}

	if got := reg.Count(); got != 1 {
		t.Fatalf("Count = %d, want slow consumer dropped", got)
	}
}

func TestBroadcast_SameOrderForEveryConnection(t *testing.T) {
	reg := NewRegistry(WithSendBuffer(256))
	defer reg.Close()

	a, b := &fakeConn{}, &fakeConn{}
	for _, conn := range []*fakeConn{a, b} {
		if _, err := reg.Register(conn); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				reg.Broadcast(AgentDeleted{ID: fmt.Sprintf("g%d-%d", g, i)})
			}
		}(g)
	}
	wg.Wait()

	waitFrames(t, a, 101)
	waitFrames(t, b, 101)

	fa, fb := a.snapshot(), b.snapshot()
	for i := range fa {
		if string(fa[i]) != string(fb[i]) {
			t.Fatalf("frame %d differs: %s vs %s", i, fa[i], fb[i])
		}
	}
}

func TestRegister_MaxConnections(t *testing.T) {
	const maxConns = 2
	reg := NewRegistry(WithMaxConnections(maxConns))
	defer reg.Close()

	var clients []*Client
	for i := 0; i < maxConns; i++ {
		c, err := reg.Register(&fakeConn{})
		if err != nil {
			t.Fatalf("Register[%d]: unexpected error: %v", i, err)
		}
		clients = append(clients, c)
	}

	if _, err := reg.Register(&fakeConn{}); !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("expected ErrTooManyConnections, got %v", err)
	}

	reg.Unregister(clients[0])
	if _, err := reg.Register(&fakeConn{}); err != nil {
		t.Fatalf("Register after removal: unexpected error: %v", err)
	}
	if got := reg.Count(); got != maxConns {
		t.Fatalf("Count = %d, want %d", got, maxConns)
	}
}

func TestRegister_ZeroMaxConnectionsUnlimited(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	for i := 0; i < 10; i++ {
		if _, err := reg.Register(&fakeConn{}); err != nil {
			t.Fatalf("Register[%d]: unexpected error: %v", i, err)
		}
	}
	if got := reg.Count(); got != 10 {
		t.Fatalf("Count = %d, want 10", got)
	}
}

func TestClose_RejectsRegister(t *testing.T) {
	reg := NewRegistry()
	c, err := reg.Register(&fakeConn{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg.Close()

	if got := reg.Count(); got != 0 {
		t.Errorf("Count after Close = %d", got)
	}
	select {
	case <-c.Done():
	default:
		t.Error("client not stopped by Close")
	}
	if _, err := reg.Register(&fakeConn{}); !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("Register after Close = %v, want ErrRegistryClosed", err)
	}
}

func TestBroadcastEncoded_CountsOnlyCallerEvents(t *testing.T) {
	m := metrics.NewRealtime(prometheus.NewRegistry())
	reg := NewRegistry(WithMetrics(m))
	defer reg.Close()

	conn := &fakeConn{}
	if _, err := reg.Register(conn); err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg.Broadcast(agentCreated("a1"))
	frame, err := Encode(agentCreated("a2"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	reg.BroadcastEncoded(TypeAgentCreated, frame)
	reg.BroadcastFrame(frame)

	waitFrames(t, conn, 4)
	if got := testutil.ToFloat64(m.EventsBroadcast.WithLabelValues(string(TypeAgentCreated))); got != 2 {
		t.Errorf("events_broadcast_total{type=agent_created} = %v, want 2", got)
	}
}
