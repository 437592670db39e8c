package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vbonduro/proplist/internal/backend"
	"github.com/vbonduro/proplist/internal/service"
)

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

type errorBody struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string, logger *slog.Logger) {
	writeJSON(w, status, errorBody{Error: msg}, logger)
}

// writeError maps err to a status code and a client-safe message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var (
		reqErr  *requestError
		verrs   validator.ValidationErrors
		tooMany *service.TooManyImagesError
		se      *backend.StatusError
	)
	switch {
	case errors.As(err, &reqErr):
		writeMessage(w, http.StatusBadRequest, reqErr.msg, s.logger)
		return
	case errors.As(err, &verrs):
		body := errorBody{Error: "validation failed"}
		for _, fe := range verrs {
			body.Fields = append(body.Fields, fieldError{Field: fe.Namespace(), Rule: fe.Tag()})
		}
		writeJSON(w, http.StatusBadRequest, body, s.logger)
		return
	case errors.As(err, &tooMany):
		writeMessage(w, http.StatusBadRequest, tooMany.Error(), s.logger)
		return
	case errors.Is(err, service.ErrInvalidID), errors.Is(err, service.ErrImageIndex):
		writeMessage(w, http.StatusBadRequest, err.Error(), s.logger)
		return
	case backend.IsNotFound(err):
		writeMessage(w, http.StatusNotFound, "not found", s.logger)
		return
	}

	status := http.StatusInternalServerError
	msg := "failed to " + action
	switch {
	case errors.Is(err, service.ErrNoPropertyID):
		status, msg = http.StatusBadGateway, err.Error()
	case errors.As(err, &se) && se.StatusCode == http.StatusBadRequest:
		status, msg = http.StatusBadRequest, se.Message
	case errors.As(err, &se), errors.Is(err, backend.ErrUnavailable):
		status = http.StatusBadGateway
	}
	s.logger.Error(action+" failed",
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	writeMessage(w, status, msg, s.logger)
}

func parseID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, service.ErrInvalidID
	}
	return id, nil
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
