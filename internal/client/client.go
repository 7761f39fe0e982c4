// Package client connects to the dashboard's realtime channel and REST API.
//
// Client keeps a best-effort connection to /ws: after an unexpected close it
// retries on a fixed delay up to a bounded number of attempts, and an
// explicit Disconnect never schedules a retry.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/apexops/dashboard/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultRetryDelay = 5 * time.Second
	DefaultMaxRetries = 5

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	pongTimeout      = 60 * time.Second
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Session is a snapshot of the client's connection state.
type Session struct {
	Status    Status
	LastEvent realtime.Event
	Retries   int
	// Exhausted is set once the retry bound is reached and cleared by Connect.
	Exhausted bool
}

// Handlers are invoked from the client's own goroutines. OnDisconnect
// receives the cause, or nil after Disconnect.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnEvent      func(ev realtime.Event)
}

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type DialFunc func(ctx context.Context, endpoint string, header http.Header) (Conn, error)

type Option func(*Client)

func WithHandlers(h Handlers) Option {
	return func(c *Client) { c.handlers = h }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithDialer(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRetry overrides the reconnect delay and attempt bound.
func WithRetry(delay time.Duration, max int) Option {
	return func(c *Client) {
		c.retryDelay = delay
		c.maxRetries = max
	}
}

// WithToken sends token as a bearer credential on every handshake.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

type Client struct {
	endpoint   string
	token      string
	handlers   Handlers
	clock      clockwork.Clock
	dial       DialFunc
	log        zerolog.Logger
	retryDelay time.Duration
	maxRetries int

	writeMu sync.Mutex

	mu          sync.Mutex
	ctx         context.Context
	status      Status
	lastEvent   realtime.Event
	retries     int
	exhausted   bool
	conn        Conn
	gen         uint64
	intentional bool
	timer       clockwork.Timer
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		clock:      clockwork.NewRealClock(),
		dial:       dialWebsocket,
		log:        zerolog.Nop(),
		retryDelay: DefaultRetryDelay,
		maxRetries: DefaultMaxRetries,
		status:     StatusDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect (re)initializes the client: any current connection or pending
// retry is dropped, the retry counter is reset and a connection attempt is
// made immediately. A failed attempt returns its error and still schedules
// a retry. ctx bounds every attempt made by this initialization.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.stopTimerLocked()
	old := c.conn
	c.conn = nil
	c.gen++
	gen := c.gen
	c.retries = 0
	c.exhausted = false
	c.intentional = false
	c.ctx = ctx
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return c.attempt(gen)
}

// Disconnect closes the connection and cancels any pending reconnect. No
// reconnect is scheduled afterwards until Connect is called again.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.gen++
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	was := c.status
	c.status = StatusDisconnected
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}
	if was != StatusDisconnected {
		c.log.Info().Str("endpoint", c.endpoint).Msg("realtime disconnected")
		if c.handlers.OnDisconnect != nil {
			c.handlers.OnDisconnect(nil)
		}
	}
}

// Send transmits v while connected. When the client is not connected the
// call does nothing and returns nil. Events are written in wire format;
// anything else is JSON encoded.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.status == StatusConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return nil
	}

	var (
		frame []byte
		err   error
	)
	if ev, ok := v.(realtime.Event); ok {
		frame, err = realtime.Encode(ev)
	} else {
		frame, err = json.Marshal(v)
	}
	if err != nil {
		return errors.Wrap(err, "encode outbound frame")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errors.Wrap(conn.WriteMessage(websocket.TextMessage, frame), "send")
}

func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Session{Status: c.status, LastEvent: c.lastEvent, Retries: c.retries, Exhausted: c.exhausted}
}

func (c *Client) State() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) MaxRetries() int { return c.maxRetries }

// attempt dials once for generation gen. Stale generations are ignored.
func (c *Client) attempt(gen uint64) error {
	c.mu.Lock()
	if gen != c.gen || c.intentional {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusConnecting
	ctx := c.ctx
	c.mu.Unlock()

	conn, err := c.dial(ctx, c.endpoint, c.header())
	if err != nil {
		c.down(gen, nil, err)
		return err
	}

	c.mu.Lock()
	if gen != c.gen || c.intentional {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.status = StatusConnected
	c.retries = 0
	c.mu.Unlock()

	c.log.Info().Str("endpoint", c.endpoint).Msg("realtime connected")
	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect()
	}
	go c.readLoop(gen, conn)
	return nil
}

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			c.down(gen, conn, err)
			return
		}

		ev, err := realtime.Decode(data)
		if err != nil {
			c.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropped malformed realtime frame")
			continue
		}
		if u, ok := ev.(realtime.Unknown); ok && u.Err != nil {
			c.log.Debug().Err(u.Err).Str("type", string(u.Kind)).Msg("realtime frame data did not match its type")
		}

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.lastEvent = ev
		c.mu.Unlock()

		if c.handlers.OnEvent != nil {
			c.handlers.OnEvent(ev)
		}
	}
}

// down handles a failed dial (conn nil) or a lost connection and schedules
// the next attempt while retries remain.
func (c *Client) down(gen uint64, conn Conn, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.intentional || (conn != nil && c.conn != conn) {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.status = StatusDisconnected

	scheduled := false
	if c.retries < c.maxRetries {
		c.retries++
		scheduled = true
		c.timer = c.clock.AfterFunc(c.retryDelay, func() { c.attempt(gen) })
	} else {
		c.exhausted = true
	}
	retries := c.retries
	c.mu.Unlock()

	if scheduled {
		c.log.Warn().Err(cause).
			Int("attempt", retries).
			Int("max", c.maxRetries).
			Dur("delay", c.retryDelay).
			Msg("realtime connection lost, reconnecting")
	} else {
		c.log.Error().Err(cause).Int("max", c.maxRetries).Msg("max reconnection attempts reached")
	}
	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(cause)
	}
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func dialWebsocket(ctx context.Context, endpoint string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s: status %d", endpoint, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", endpoint)
	}

	// The server pings periodically; silence past pongTimeout means the
	// connection is gone.
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	return conn, nil
}

// EndpointFromOrigin derives the realtime endpoint for a page origin:
// http becomes ws and https becomes wss, with the path set to /ws.
func EndpointFromOrigin(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", errors.Wrapf(err, "parse origin %q", origin)
	}
	if u.Host == "" {
		return "", errors.Errorf("origin %q has no host", origin)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported origin scheme %q", u.Scheme)
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/ws"}).String(), nil
}

// HTTPBaseFromEndpoint is the inverse mapping used to reach the REST API
// on the same host as the realtime endpoint.
func HTTPBaseFromEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrapf(err, "parse endpoint %q", endpoint)
	}
	if u.Host == "" {
		return "", errors.Errorf("endpoint %q has no host", endpoint)
	}
	scheme := "http"
	if u.Scheme == "wss" || u.Scheme == "https" {
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}
