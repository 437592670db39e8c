package web

import (
	"net/http"

	"github.com/vbonduro/proplist/internal/domain"
)

func (s *Server) handleRequestInfo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, err, "request info")
		return
	}
	var req domain.RequestInfo
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, "request info")
		return
	}
	req.PropertyID = id

	c, err := s.Inquiries.RequestInfo(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err, "request info")
		return
	}
	writeJSON(w, http.StatusAccepted, c, s.logger)
}

func (s *Server) handleAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, err, "request appointment")
		return
	}
	var req domain.Appointment
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, "request appointment")
		return
	}
	req.PropertyID = id

	c, err := s.Inquiries.RequestAppointment(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err, "request appointment")
		return
	}
	writeJSON(w, http.StatusAccepted, c, s.logger)
}
