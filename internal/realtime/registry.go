// Package realtime implements the websocket update channel: a registry of
// open connections, the broadcaster that fans events out to them, and the
// /ws upgrade handler.
package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/apexops/dashboard/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
)

var (
	ErrTooManyConnections = errors.New("too many websocket connections")
	ErrRegistryClosed     = errors.New("registry closed")
)

// Broadcaster is the contract collaborators use to publish events.
type Broadcaster interface {
	Broadcast(ev Event)
}

// Conn is the part of *websocket.Conn the write pump uses.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

const (
	reasonClosed     = "closed"
	reasonSlow       = "slow_consumer"
	reasonWriteError = "write_error"
	reasonShutdown   = "shutdown"
)

// Client is one registered connection.
type Client struct {
	conn Conn
	reg  *Registry
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *Client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed once the client has been unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.reg.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.reg.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.reg.remove(c, reasonWriteError, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.reg.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.reg.remove(c, reasonWriteError, err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// Registry tracks the open connections of one channel instance.
type Registry struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool

	sendBuffer   int
	maxConns     int
	writeTimeout time.Duration
	pingInterval time.Duration
	connected    []byte

	log     zerolog.Logger
	metrics *metrics.Realtime
}

type Option func(*Registry)

// WithSendBuffer sets the per-connection outbound queue length.
func WithSendBuffer(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.sendBuffer = n
		}
	}
}

// WithMaxConnections limits concurrent connections. Zero means unlimited.
func WithMaxConnections(n int) Option {
	return func(r *Registry) { r.maxConns = n }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.pingInterval = d
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

func WithMetrics(m *metrics.Realtime) Option {
	return func(r *Registry) { r.metrics = m }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		clients:      make(map[*Client]struct{}),
		sendBuffer:   defaultSendBuffer,
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	frame, err := Encode(Connected{Message: ConnectedMessage})
	if err != nil {
		panic(err)
	}
	r.connected = frame
	return r
}

// Register adds conn to the active set and starts its write pump. The
// connected notice is queued before the client becomes visible to
// broadcasts, so it is always the first frame.
func (r *Registry) Register(conn Conn) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if r.maxConns > 0 && len(r.clients) >= r.maxConns {
		r.metrics.Reject()
		return nil, ErrTooManyConnections
	}

	c := &Client{
		conn: conn,
		reg:  r,
		send: make(chan []byte, r.sendBuffer),
		done: make(chan struct{}),
	}
	c.send <- r.connected
	r.clients[c] = struct{}{}
	r.metrics.SetActive(len(r.clients))

	go c.writePump()
	return c, nil
}

// Unregister removes c and closes its connection. Calling it again is a no-op.
func (r *Registry) Unregister(c *Client) {
	r.remove(c, reasonClosed, nil)
}

func (r *Registry) remove(c *Client, reason string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(c, reason, cause)
}

func (r *Registry) removeLocked(c *Client, reason string, cause error) {
	if _, ok := r.clients[c]; !ok {
		return
	}
	delete(r.clients, c)
	c.stop()

	r.metrics.SetActive(len(r.clients))
	if reason != reasonClosed {
		r.metrics.Dropped(reason)
	}

	ev := r.log.Debug()
	if reason == reasonSlow || reason == reasonWriteError {
		ev = r.log.Warn()
	}
	ev.Str("reason", reason).Err(cause).Int("active", len(r.clients)).Msg("websocket client unregistered")
}

// Broadcast encodes ev once and fans it out to every registered connection.
func (r *Registry) Broadcast(ev Event) {
	frame, err := Encode(ev)
	if err != nil {
		r.log.Error().Err(err).Msg("broadcast encode failed")
		return
	}
	r.BroadcastEncoded(ev.Type(), frame)
}

// BroadcastEncoded fans out a frame the caller already encoded from an
// event of type t and counts it as a broadcast of that type.
func (r *Registry) BroadcastEncoded(t EventType, frame []byte) {
	r.metrics.Broadcast(string(t))
	r.BroadcastFrame(frame)
}

// BroadcastFrame fans out an already-encoded frame without counting it.
// Enqueueing never blocks; a connection whose queue is full is dropped as
// a slow consumer.
func (r *Registry) BroadcastFrame(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var slow []*Client
	for c := range r.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		r.removeLocked(c, reasonSlow, nil)
	}
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close unregisters every connection. Later calls to Register fail.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for c := range r.clients {
		r.removeLocked(c, reasonShutdown, nil)
	}
}
