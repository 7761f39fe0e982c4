// Package metrics defines the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "apexops"

// Realtime holds collectors for the websocket channel. A nil *Realtime is
// valid and records nothing.
type Realtime struct {
	ActiveConnections prometheus.Gauge
	EventsBroadcast   *prometheus.CounterVec
	FramesDropped     *prometheus.CounterVec
	Rejected          prometheus.Counter
}

func NewRealtime(reg prometheus.Registerer) *Realtime {
	m := &Realtime{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of registered websocket connections.",
		}),
		EventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "events_broadcast_total",
			Help:      "Events fanned out to connections, by event type.",
		}, []string{"type"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_dropped_total",
			Help:      "Connections removed by the registry, by reason.",
		}, []string{"reason"}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_rejected_total",
			Help:      "Upgrade attempts rejected by the connection limit.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.EventsBroadcast, m.FramesDropped, m.Rejected)
	return m
}

func (m *Realtime) SetActive(n int) {
	if m == nil {
		return
	}
	m.ActiveConnections.Set(float64(n))
}

func (m *Realtime) Broadcast(eventType string) {
	if m == nil {
		return
	}
	m.EventsBroadcast.WithLabelValues(eventType).Inc()
}

func (m *Realtime) Dropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Realtime) Reject() {
	if m == nil {
		return
	}
	m.Rejected.Inc()
}

// HTTP holds request collectors for the REST surface.
type HTTP struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlight        prometheus.Gauge
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlight)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request metrics labelled by the matched mux pattern.
// /metrics, /health and /ws are skipped; /ws is a long-lived upgrade.
func (m *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/ws" || strings.HasPrefix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}

		m.InFlight.Inc()
		defer m.InFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			code := strconv.Itoa(rec.status)
			m.RequestDuration.WithLabelValues(r.Method, route, code).Observe(v)
			m.RequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		}))

		next.ServeHTTP(rec, r)
		timer.ObserveDuration()
	})
}
