package web

import (
	"net/http"

	"github.com/vbonduro/proplist/internal/domain"
)

// handleListAgents lists agents, or looks one up with ?email=. A failed
// backend listing yields an empty list.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if email := r.URL.Query().Get("email"); email != "" {
		a := s.Agents.FindByEmail(r.Context(), email)
		if a == nil {
			writeMessage(w, http.StatusNotFound, "not found", s.logger)
			return
		}
		writeJSON(w, http.StatusOK, a, s.logger)
		return
	}
	writeJSON(w, http.StatusOK, s.Agents.List(r.Context()), s.logger)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, err, "get agent")
		return
	}
	a, err := s.Agents.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, "get agent")
		return
	}
	writeJSON(w, http.StatusOK, a, s.logger)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, err, "update agent")
		return
	}
	var a domain.Agent
	if err := decodeJSON(w, r, &a); err != nil {
		s.writeError(w, r, err, "update agent")
		return
	}
	a.ID = id
	updated, err := s.Agents.Update(r.Context(), &a)
	if err != nil {
		s.writeError(w, r, err, "update agent")
		return
	}
	writeJSON(w, http.StatusOK, updated, s.logger)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, err, "delete agent")
		return
	}
	if err := s.Agents.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err, "delete agent")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
