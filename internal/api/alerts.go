package api

import (
	"net/http"

	"github.com/apexops/dashboard/internal/apperr"
	"github.com/apexops/dashboard/internal/domain"
	"github.com/apexops/dashboard/internal/realtime"
)

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.fail(w, r, apperr.Validation("userId is required"))
		return
	}

	alerts, err := s.store.ListAlerts(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) createAlert(w http.ResponseWriter, r *http.Request) {
	var in domain.AlertInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	a, err := s.store.CreateAlert(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcaster.Broadcast(realtime.AlertCreated{Alert: a})
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) markAlertRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.MarkAlertRead(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcaster.Broadcast(realtime.AlertRead{ID: id})
	w.WriteHeader(http.StatusNoContent)
}
