package api

import (
	"net/http"

	"github.com/apexops/dashboard/internal/apperr"
	"github.com/apexops/dashboard/internal/domain"
	"github.com/apexops/dashboard/internal/realtime"
	"github.com/apexops/dashboard/internal/store"
)

func (s *Server) listCostAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userId")
	if userID == "" {
		s.fail(w, r, apperr.Validation("userId is required"))
		return
	}
	period := domain.Period(q.Get("period"))
	if period != "" && !period.Valid() {
		s.fail(w, r, apperr.Validation("invalid period %q", period))
		return
	}

	costs, err := s.store.ListCostAnalytics(r.Context(), userID, period)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, costs)
}

func (s *Server) createCostAnalytics(w http.ResponseWriter, r *http.Request) {
	var in domain.CostAnalyticsInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	c, err := s.store.CreateCostAnalytics(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcaster.Broadcast(realtime.CostAnalyticsCreated{Analytics: c})
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.store.ListPerformanceMetrics(r.Context(), r.URL.Query().Get("agentId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) createPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	var in domain.PerformanceMetricsInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	m, err := s.store.CreatePerformanceMetrics(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcaster.Broadcast(realtime.PerformanceMetricsCreated{Metrics: m})
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.DashboardStats(r.Context(), s.store, r.URL.Query().Get("userId"), s.jitter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := store.Analytics(r.Context(), s.store, store.AnalyticsQuery{
		TimeRange:  q.Get("timeRange"),
		MetricType: q.Get("metricType"),
		UserID:     q.Get("userId"),
	}, s.clock.Now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) dataLineage(w http.ResponseWriter, r *http.Request) {
	out, err := store.Lineage(r.Context(), s.store, r.PathValue("timeRange"), s.clock.Now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
