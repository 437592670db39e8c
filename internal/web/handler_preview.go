package web

import (
	"net/http"

	"github.com/vbonduro/proplist/internal/service"
)

type previewResponse struct {
	Previews []string `json:"previews"`
	Errors   []string `json:"errors"`
}

// handlePreviews turns uploaded files into data URLs without storing them.
func (s *Server) handlePreviews(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxListingReq)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeMessage(w, http.StatusBadRequest, "failed to parse form", s.logger)
		return
	}
	files, err := s.readFiles(r, "images")
	if err != nil {
		s.writeError(w, r, err, "read images")
		return
	}
	if len(files) == 0 {
		writeMessage(w, http.StatusBadRequest, "images required", s.logger)
		return
	}

	urls, errs := service.Preview(files)
	writeJSON(w, http.StatusOK, previewResponse{Previews: urls, Errors: errs}, s.logger)
}
