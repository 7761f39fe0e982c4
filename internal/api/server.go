// Package api serves the REST surface of the dashboard. Every successful
// mutation is announced on the realtime channel with exactly one event.
package api

import (
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/apexops/dashboard/internal/metrics"
	"github.com/apexops/dashboard/internal/realtime"
	"github.com/apexops/dashboard/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Options struct {
	Store       store.Store
	Broadcaster realtime.Broadcaster
	Logger      zerolog.Logger
	Clock       clockwork.Clock
	Environment string
	AuthToken   string

	// Realtime, when set, is mounted at GET /ws.
	Realtime http.Handler
	// Gatherer, when set, is exposed at GET /metrics.
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTP

	// Jitter returns values in [0,1) for synthetic dashboard fallbacks.
	Jitter func() float64
}

type Server struct {
	store       store.Store
	broadcaster realtime.Broadcaster
	log         zerolog.Logger
	clock       clockwork.Clock
	started     time.Time
	environment string
	authToken   string
	realtime    http.Handler
	gatherer    prometheus.Gatherer
	httpMetrics *metrics.HTTP
	jitter      func() float64
}

func New(opts Options) *Server {
	s := &Server{
		store:       opts.Store,
		broadcaster: opts.Broadcaster,
		log:         opts.Logger,
		clock:       opts.Clock,
		environment: opts.Environment,
		authToken:   opts.AuthToken,
		realtime:    opts.Realtime,
		gatherer:    opts.Gatherer,
		httpMetrics: opts.HTTPMetrics,
		jitter:      opts.Jitter,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.jitter == nil {
		s.jitter = rand.Float64
	}
	if s.environment == "" {
		s.environment = "development"
	}
	s.started = s.clock.Now()
	return s
}

// SetupRoutes registers every route on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.realtime != nil {
		mux.Handle("GET /ws", s.realtime)
	}

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.requireToken(h))
	}

	api("GET /api/agents", s.listAgents)
	api("GET /api/agents/{id}", s.getAgent)
	api("POST /api/agents", s.createAgent)
	api("PATCH /api/agents/{id}", s.updateAgent)
	api("PATCH /api/agents/{id}/status", s.updateAgentStatus)
	api("DELETE /api/agents/{id}", s.deleteAgent)

	api("GET /api/gpu-resources", s.listGPUResources)
	api("POST /api/gpu-resources", s.createGPUResource)
	api("PATCH /api/gpu-resources/{id}/status", s.updateGPUResourceStatus)

	api("GET /api/resource-usage", s.listResourceUsage)
	api("POST /api/resource-usage", s.createResourceUsage)

	api("GET /api/cost-analytics", s.listCostAnalytics)
	api("POST /api/cost-analytics", s.createCostAnalytics)

	api("GET /api/performance-metrics", s.listPerformanceMetrics)
	api("POST /api/performance-metrics", s.createPerformanceMetrics)

	api("GET /api/alerts", s.listAlerts)
	api("POST /api/alerts", s.createAlert)
	api("PATCH /api/alerts/{id}/read", s.markAlertRead)

	api("GET /api/dashboard/stats", s.dashboardStats)
	api("GET /api/analytics", s.analytics)
	api("GET /api/data-lineage/{timeRange}", s.dataLineage)
}

// Handler returns the routed mux wrapped in the standard middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	var h http.Handler = mux
	if s.httpMetrics != nil {
		h = s.httpMetrics.Middleware(h)
	}
	h = s.logRequests(h)
	return securityHeaders(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"timestamp":   now.UTC().Format(time.RFC3339),
		"uptime":      now.Sub(s.started).Seconds(),
		"environment": s.environment,
	})
}
