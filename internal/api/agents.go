package api

import (
	"net/http"

	"github.com/apexops/dashboard/internal/apperr"
	"github.com/apexops/dashboard/internal/domain"
	"github.com/apexops/dashboard/internal/realtime"
)

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var in domain.AgentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	a, err := s.store.CreateAgent(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcaster.Broadcast(realtime.AgentCreated{Agent: a})
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) updateAgent(w http.ResponseWriter, r *http.Request) {
	var patch domain.AgentPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}

	a, err := s.store.UpdateAgent(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcaster.Broadcast(realtime.AgentUpdated{Agent: a})
	writeJSON(w, http.StatusOK, a)
}

type agentStatusBody struct {
	Status domain.AgentStatus `json:"status"`
}

func (s *Server) updateAgentStatus(w http.ResponseWriter, r *http.Request) {
	var body agentStatusBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Status == "" {
		s.fail(w, r, apperr.Validation("status is required"))
		return
	}

	a, err := s.store.UpdateAgent(r.Context(), r.PathValue("id"), domain.AgentPatch{Status: &body.Status})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcaster.Broadcast(realtime.AgentStatusUpdated{Agent: a})
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deleteAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteAgent(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcaster.Broadcast(realtime.AgentDeleted{ID: id})
	w.WriteHeader(http.StatusNoContent)
}
