package api

import (
	"net/http"

	"github.com/apexops/dashboard/internal/apperr"
	"github.com/apexops/dashboard/internal/domain"
	"github.com/apexops/dashboard/internal/realtime"
)

func (s *Server) listGPUResources(w http.ResponseWriter, r *http.Request) {
	availableOnly := r.URL.Query().Get("available") == "true"
	gpus, err := s.store.ListGPUResources(r.Context(), availableOnly)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gpus)
}

func (s *Server) createGPUResource(w http.ResponseWriter, r *http.Request) {
	var in domain.GPUResourceInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	g, err := s.store.CreateGPUResource(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcaster.Broadcast(realtime.GPUResourceCreated{Resource: g})
	writeJSON(w, http.StatusCreated, g)
}

type gpuStatusBody struct {
	Status domain.GPUStatus `json:"status"`
}

func (s *Server) updateGPUResourceStatus(w http.ResponseWriter, r *http.Request) {
	var body gpuStatusBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Status == "" {
		s.fail(w, r, apperr.Validation("status is required"))
		return
	}

	g, err := s.store.UpdateGPUResourceStatus(r.Context(), r.PathValue("id"), body.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcaster.Broadcast(realtime.GPUResourceUpdated{Resource: g})
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) listResourceUsage(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	usage, err := s.store.ListResourceUsage(r.Context(), r.URL.Query().Get("agentId"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) createResourceUsage(w http.ResponseWriter, r *http.Request) {
	var in domain.ResourceUsageInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	u, err := s.store.CreateResourceUsage(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcaster.Broadcast(realtime.ResourceUsageCreated{Usage: u})
	writeJSON(w, http.StatusCreated, u)
}
