package realtime

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultPongTimeout = 60 * time.Second

	// Frames over the limit are a transport error and end the connection.
	maxMessageSize = 64 << 10
)

// HandlerConfig configures the /ws upgrade endpoint.
type HandlerConfig struct {
	AuthToken      string
	AllowedOrigins []string
	PongTimeout    time.Duration
	Logger         zerolog.Logger
}

// Handler upgrades requests on /ws and registers the resulting connections.
type Handler struct {
	registry       *Registry
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	pongTimeout    time.Duration
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

func NewHandler(reg *Registry, cfg HandlerConfig) *Handler {
	h := &Handler{
		registry:       reg,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.AuthToken,
		pongTimeout:    cfg.PongTimeout,
		log:            cfg.Logger,
	}
	if h.pongTimeout <= 0 {
		h.pongTimeout = defaultPongTimeout
	}

	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		h.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			h.allowedHosts[parsed.Host] = true
		}
	}

	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !Authorize(r, h.authToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	c, err := h.registry.Register(conn)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket connection rejected")
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	h.log.Info().Str("remote", r.RemoteAddr).Msg("websocket client connected")
	go h.readLoop(c, conn, r.RemoteAddr)
}

// readLoop keeps the read deadline fresh and unregisters the client on any
// transport error. Application frames from clients carry no commands;
// they are decoded for logging and otherwise ignored.
func (h *Handler) readLoop(c *Client, conn *websocket.Conn, remote string) {
	defer func() {
		h.registry.Unregister(c)
		h.log.Info().Str("remote", remote).Msg("websocket client disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("remote", remote).Msg("websocket read failed")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		ev, err := Decode(data)
		if err != nil {
			h.log.Debug().Err(err).Str("remote", remote).Msg("dropping malformed frame")
			continue
		}
		h.log.Debug().Str("type", string(ev.Type())).Str("remote", remote).Msg("inbound frame")
	}
}

// Authorize reports whether r carries token in the query string, the
// X-ApexOps-Token header or a bearer Authorization header. An empty token
// authorizes everything.
func Authorize(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	if r.URL.Query().Get("token") == token {
		return true
	}
	if r.Header.Get("X-ApexOps-Token") == token {
		return true
	}

	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == token
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(h.allowedOrigins) > 0 {
		if h.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return h.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	host := parsed.Host
	if host == r.Host {
		return true
	}
	return isLoopback(host)
}

func isLoopback(host string) bool {
	for _, name := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if host == name || strings.HasPrefix(host, name+":") {
			return true
		}
	}
	return host == "::1"
}
