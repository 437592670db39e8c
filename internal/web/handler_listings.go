package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/vbonduro/proplist/internal/domain"
	"github.com/vbonduro/proplist/internal/mapper"
	"github.com/vbonduro/proplist/internal/preview"
	"github.com/vbonduro/proplist/internal/service"
)

const (
	maxJSONBody   = 1 << 20
	maxListingReq = 5*preview.MaxSize + maxJSONBody
	maxFormMemory = 32 << 20
)

// requestError is a malformed request; its message is safe to show.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

type publishResponse struct {
	*service.Result
	PreviewErrors []string `json:"previewErrors"`
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if raw := q.Get("agentId"); raw != "" {
		agentID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || agentID <= 0 {
			writeMessage(w, http.StatusBadRequest, "invalid agentId", s.logger)
			return
		}
		props, err := s.Properties.ByAgent(r.Context(), agentID)
		if err != nil {
			s.writeError(w, r, err, "list listings")
			return
		}
		writeJSON(w, http.StatusOK, &service.Listing{Properties: props}, s.logger)
		return
	}

	f := service.Filter{Keyword: q.Get("q")}
	if t := q.Get("type"); t != "" {
		f.Type = domain.PropertyType(t)
		if !f.Type.Valid() {
			writeMessage(w, http.StatusBadRequest, "type must be rent or sale", s.logger)
			return
		}
	}
	if raw := q.Get("maxPrice"); raw != "" {
		maxPrice, err := strconv.ParseFloat(raw, 64)
		if err != nil || maxPrice <= 0 {
			writeMessage(w, http.StatusBadRequest, "invalid maxPrice", s.logger)
			return
		}
		f.MaxPrice = maxPrice
	}

	writeJSON(w, http.StatusOK, s.Properties.List(r.Context(), f), s.logger)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, err, "get listing")
		return
	}
	p, err := s.Properties.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, "get listing")
		return
	}
	writeJSON(w, http.StatusOK, p, s.logger)
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	p, files, err := s.readListingForm(w, r)
	if err != nil {
		s.writeError(w, r, err, "read listing")
		return
	}
	p.ID = 0
	p.ImageURLs = nil
	s.publish(w, r, p, files, http.StatusCreated)
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, err, "update listing")
		return
	}
	p, files, err := s.readListingForm(w, r)
	if err != nil {
		s.writeError(w, r, err, "read listing")
		return
	}

	current, err := s.Properties.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, "update listing")
		return
	}
	p.ID = id
	p.ImageURLs = current.ImageURLs
	s.publish(w, r, p, files, http.StatusOK)
}

// publish runs a publish to completion even if the client disconnects.
func (s *Server) publish(w http.ResponseWriter, r *http.Request, p *domain.Property, files []service.SelectedFile, status int) {
	ctx := context.WithoutCancel(r.Context())
	d, err := s.prepareDraft(ctx, p, files)
	if err != nil {
		s.writeError(w, r, err, "stage images")
		return
	}

	res, err := s.Publisher.Publish(ctx, d, nil)
	if err != nil {
		s.writeError(w, r, err, "save listing")
		return
	}
	writeJSON(w, status, publishResponse{Result: res, PreviewErrors: d.Errors}, s.logger)
}

// handleCreateListingStream creates a listing and reports upload progress as
// server-sent events: "progress" after each file, then "done" with the result
// or "error".
func (s *Server) handleCreateListingStream(w http.ResponseWriter, r *http.Request) {
	p, files, err := s.readListingForm(w, r)
	if err != nil {
		s.writeError(w, r, err, "read listing")
		return
	}
	p.ID = 0
	p.ImageURLs = nil

	ctx := context.WithoutCancel(r.Context())
	d, err := s.prepareDraft(ctx, p, files)
	if err != nil {
		s.writeError(w, r, err, "stage images")
		return
	}

	stream := newEventStream(w)
	res, err := s.Publisher.Publish(ctx, d, func(percent int) {
		if r.Context().Err() != nil {
			return
		}
		if err := stream.send("progress", map[string]int{"percent": percent}); err != nil {
			s.logger.Warn("write progress event failed", "error", err)
		}
	})
	if err != nil {
		if !stream.started {
			s.writeError(w, r, err, "save listing")
			return
		}
		s.logger.Error("stream publish failed", "error", err)
		if serr := stream.send("error", errorBody{Error: "failed to save listing"}); serr != nil {
			s.logger.Warn("write error event failed", "error", serr)
		}
		return
	}
	if err := stream.send("done", publishResponse{Result: res, PreviewErrors: d.Errors}); err != nil {
		s.logger.Error("write done event failed", "error", err)
	}
}

func (s *Server) prepareDraft(ctx context.Context, p *domain.Property, files []service.SelectedFile) (*service.Draft, error) {
	d := s.Drafts.NewDraft(p)
	if err := s.Drafts.AddFiles(ctx, d, files); err != nil {
		s.Drafts.Discard(ctx, d)
		return nil, err
	}
	return d, nil
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, err, "delete listing")
		return
	}
	if err := s.Properties.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err, "delete listing")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type imageUpdate struct {
	Description  string `json:"description"`
	DisplayOrder int    `json:"displayOrder"`
}

func (s *Server) handleUpdateImage(w http.ResponseWriter, r *http.Request) {
	imageID, err := parseID(r, "imageId")
	if err != nil {
		s.writeError(w, r, err, "update image")
		return
	}
	var req imageUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, "update image")
		return
	}
	img, err := s.Properties.UpdateImage(r.Context(), imageID, req.Description, req.DisplayOrder)
	if err != nil {
		s.writeError(w, r, err, "update image")
		return
	}
	writeJSON(w, http.StatusOK, img, s.logger)
}

// handleDeleteImage removes one image of a listing. A failed backend delete
// leaves the listing unchanged.
func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, err, "delete image")
		return
	}
	imageID, err := parseID(r, "imageId")
	if err != nil {
		s.writeError(w, r, err, "delete image")
		return
	}

	p, err := s.Properties.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, "delete image")
		return
	}
	d := s.Drafts.NewDraft(p)
	index := -1
	for i, img := range d.Images {
		if got, ok := mapper.ImageIDFromURL(img.ImageURL); ok && got == imageID {
			index = i
			break
		}
	}
	if index < 0 {
		writeMessage(w, http.StatusNotFound, "not found", s.logger)
		return
	}

	if err := s.Drafts.RemoveImage(r.Context(), d, index); err != nil {
		s.writeError(w, r, err, "delete image")
		return
	}
	writeJSON(w, http.StatusOK, d.Property, s.logger)
}

// readListingForm accepts either a JSON property body or a multipart form with
// a "property" JSON field and "images" files.
func (s *Server) readListingForm(w http.ResponseWriter, r *http.Request) (*domain.Property, []service.SelectedFile, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var p domain.Property
		if err := decodeJSON(w, r, &p); err != nil {
			return nil, nil, err
		}
		return &p, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxListingReq)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return nil, nil, badRequest("failed to parse form")
	}
	raw := r.FormValue("property")
	if raw == "" {
		return nil, nil, badRequest("property field required")
	}
	var p domain.Property
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, nil, badRequest("invalid property json")
	}

	files, err := s.readFiles(r, "images")
	if err != nil {
		return nil, nil, err
	}
	return &p, files, nil
}

func (s *Server) readFiles(r *http.Request, field string) ([]service.SelectedFile, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	files := make([]service.SelectedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, badRequest("failed to read %s", fh.Filename)
		}
		data, err := io.ReadAll(io.LimitReader(f, preview.MaxSize+1))
		closeWithLog(f, "upload file", s.logger)
		if err != nil {
			return nil, badRequest("failed to read %s", fh.Filename)
		}
		if len(data) > preview.MaxSize {
			return nil, badRequest("%s is larger than %d MB", fh.Filename, preview.MaxSize>>20)
		}
		files = append(files, service.SelectedFile{Name: fh.Filename, Data: data})
	}
	return files, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("request body too large")
		}
		return badRequest("invalid json body")
	}
	return nil
}
