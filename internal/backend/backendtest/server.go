// Package backendtest runs an in-memory property backend over httptest for
// use in tests of the client, the services and the web layer.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/vbonduro/proplist/internal/backend"
)

// Upload is one received image upload.
type Upload struct {
	PropertyID   int64
	FileName     string
	ContentType  string
	Data         []byte
	Description  string
	DisplayOrder int
}

type Server struct {
	*httptest.Server

	mu         sync.Mutex
	nextID     int64
	agents     map[int64]backend.AgentDTO
	properties map[int64]backend.PropertyDTO
	images     map[int64]backend.ImageDTO
	imageOwner map[int64]int64

	uploadFailures map[string]int
	attempts       map[string]int
	uploads        []Upload
	requests       []string

	FailAgentList   bool
	FailListImages  bool
	FailCreate      bool
	FailList        bool
	FailDeleteImage bool
	// CreateWithoutID makes POST /properties answer without an id.
	CreateWithoutID bool
	// RejectUnknownAgents makes property creates and updates answer 400 when
	// the agent id is not in the directory, as the real backend does.
	RejectUnknownAgents bool
	// ImagesOnList controls whether GET /properties/{id}/images returns the
	// stored images (true) or an empty list (false).
	ImagesOnList bool
}

// New starts a fake backend and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		nextID:         1,
		agents:         map[int64]backend.AgentDTO{},
		properties:     map[int64]backend.PropertyDTO{},
		images:         map[int64]backend.ImageDTO{},
		imageOwner:     map[int64]int64{},
		uploadFailures: map[string]int{},
		attempts:       map[string]int{},
		ImagesOnList:   true,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			s.mu.Lock()
			s.requests = append(s.requests, req.Method+" "+req.URL.Path)
			s.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/agents", s.listAgents)
		r.Post("/agents", s.createAgent)
		r.Get("/agents/{id}", s.getAgent)
		r.Put("/agents/{id}", s.updateAgent)
		r.Delete("/agents/{id}", s.deleteAgent)

		r.Get("/properties", s.listProperties)
		r.Post("/properties", s.createProperty)
		r.Get("/properties/type/{type}", s.propertiesByType)
		r.Get("/properties/search", s.searchProperties)
		r.Get("/properties/price", s.propertiesByPrice)
		r.Get("/properties/agent/{id}", s.propertiesByAgent)
		r.Put("/properties/images/{id}", s.updateImage)
		r.Delete("/properties/images/{id}", s.deleteImage)
		r.Get("/properties/{id}", s.getProperty)
		r.Put("/properties/{id}", s.updateProperty)
		r.Delete("/properties/{id}", s.deleteProperty)
		r.Get("/properties/{id}/images", s.listImages)
		r.Post("/properties/{id}/images", s.uploadImage)
	})
	return r
}

// FailUpload makes the next n uploads of filename answer 500.
func (s *Server) FailUpload(filename string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadFailures[filename] = n
}

// Attempts returns how many upload requests arrived for filename.
func (s *Server) Attempts(filename string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[filename]
}

func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Requests returns "METHOD /path" for every request received, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) AddAgent(a backend.AgentDTO) backend.AgentDTO {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.newID()
	s.agents[a.ID] = a
	return a
}

func (s *Server) Agents() []backend.AgentDTO {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAgents()
}

// AddProperty stores p with a fresh id. Images on p are stored as well.
func (s *Server) AddProperty(p backend.PropertyDTO) backend.PropertyDTO {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.newID()
	images := p.Images
	p.Images = nil
	for _, img := range images {
		img.ID = s.newID()
		if img.ImageURL == "" {
			img.ImageURL = fmt.Sprintf("/images/%d.jpg", img.ID)
		}
		s.images[img.ID] = img
		s.imageOwner[img.ID] = p.ID
	}
	s.properties[p.ID] = p
	return s.withImages(p)
}

func (s *Server) Property(id int64) (backend.PropertyDTO, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.properties[id]
	if !ok {
		return backend.PropertyDTO{}, false
	}
	return s.withImages(p), true
}

func (s *Server) newID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Server) sortedAgents() []backend.AgentDTO {
	out := make([]backend.AgentDTO, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) imagesOf(propertyID int64) []backend.ImageDTO {
	out := []backend.ImageDTO{}
	for id, owner := range s.imageOwner {
		if owner == propertyID {
			out = append(out, s.images[id])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Server) withImages(p backend.PropertyDTO) backend.PropertyDTO {
	p.Images = s.imagesOf(p.ID)
	return p
}

func (s *Server) filtered(keep func(backend.PropertyDTO) bool) []backend.PropertyDTO {
	out := []backend.PropertyDTO{}
	for _, p := range s.properties {
		if keep(p) {
			out = append(out, s.withImages(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAgentList {
		writeError(w, http.StatusInternalServerError, "agent listing unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.sortedAgents())
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var a backend.AgentDTO
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.newID()
	s.agents[a.ID] = a
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, found := s.agents[id]
	if !found {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) updateAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var a backend.AgentDTO
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.agents[id]; !found {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	a.ID = id
	s.agents[id] = a
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deleteAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.agents[id]; !found {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	delete(s.agents, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listProperties(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList {
		writeError(w, http.StatusInternalServerError, "listing unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.filtered(func(backend.PropertyDTO) bool { return true }))
}

func (s *Server) propertiesByType(w http.ResponseWriter, r *http.Request) {
	t := chi.URLParam(r, "type")
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.filtered(func(p backend.PropertyDTO) bool { return strings.EqualFold(p.Type, t) }))
}

func (s *Server) searchProperties(w http.ResponseWriter, r *http.Request) {
	kw := strings.ToLower(r.URL.Query().Get("keyword"))
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.filtered(func(p backend.PropertyDTO) bool {
		return strings.Contains(strings.ToLower(p.Title), kw) ||
			strings.Contains(strings.ToLower(p.Description), kw) ||
			strings.Contains(strings.ToLower(p.Location), kw)
	}))
}

func (s *Server) propertiesByPrice(w http.ResponseWriter, r *http.Request) {
	maxPrice, err := strconv.ParseFloat(r.URL.Query().Get("maxPrice"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid maxPrice")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.filtered(func(p backend.PropertyDTO) bool { return p.Price <= maxPrice }))
}

func (s *Server) propertiesByAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.filtered(func(p backend.PropertyDTO) bool { return p.Agent.ID == id }))
}

func (s *Server) createProperty(w http.ResponseWriter, r *http.Request) {
	var p backend.PropertyDTO
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid property")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate {
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	if a, found := s.agents[p.Agent.ID]; found {
		p.Agent = a
	} else if s.RejectUnknownAgents {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Agent not found with id: %d", p.Agent.ID))
		return
	}
	p.ID = s.newID()
	p.Images = nil
	s.properties[p.ID] = p
	out := s.withImages(p)
	if s.CreateWithoutID {
		out.ID = 0
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) getProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, found := s.properties[id]
	if !found {
		writeError(w, http.StatusNotFound, "property not found")
		return
	}
	writeJSON(w, http.StatusOK, s.withImages(p))
}

func (s *Server) updateProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p backend.PropertyDTO
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid property")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.properties[id]; !found {
		writeError(w, http.StatusNotFound, "property not found")
		return
	}
	if a, found := s.agents[p.Agent.ID]; found {
		p.Agent = a
	} else if s.RejectUnknownAgents {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Agent not found with id: %d", p.Agent.ID))
		return
	}
	p.ID = id
	p.Images = nil
	s.properties[id] = p
	writeJSON(w, http.StatusOK, s.withImages(p))
}

func (s *Server) deleteProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.properties[id]; !found {
		writeError(w, http.StatusNotFound, "property not found")
		return
	}
	delete(s.properties, id)
	for imgID, owner := range s.imageOwner {
		if owner == id {
			delete(s.imageOwner, imgID)
			delete(s.images, imgID)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listImages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailListImages {
		writeError(w, http.StatusInternalServerError, "image listing unavailable")
		return
	}
	if !s.ImagesOnList {
		writeJSON(w, http.StatusOK, []backend.ImageDTO{})
		return
	}
	writeJSON(w, http.StatusOK, s.imagesOf(id))
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}
	order, _ := strconv.Atoi(r.FormValue("displayOrder"))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[header.Filename]++
	if n := s.uploadFailures[header.Filename]; n > 0 {
		s.uploadFailures[header.Filename] = n - 1
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if _, found := s.properties[id]; !found {
		writeError(w, http.StatusNotFound, "property not found")
		return
	}

	s.uploads = append(s.uploads, Upload{
		PropertyID:   id,
		FileName:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Data:         data,
		Description:  r.FormValue("description"),
		DisplayOrder: order,
	})
	img := backend.ImageDTO{
		ID:               s.newID(),
		Description:      r.FormValue("description"),
		DisplayOrder:     order,
		OriginalFileName: header.Filename,
	}
	img.ImageURL = fmt.Sprintf("/images/%d.jpg", img.ID)
	s.images[img.ID] = img
	s.imageOwner[img.ID] = id
	writeJSON(w, http.StatusCreated, img)
}

func (s *Server) updateImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, _ := strconv.Atoi(r.FormValue("displayOrder"))
	s.mu.Lock()
	defer s.mu.Unlock()
	img, found := s.images[id]
	if !found {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	img.Description = r.FormValue("description")
	img.DisplayOrder = order
	s.images[id] = img
	writeJSON(w, http.StatusOK, img)
}

func (s *Server) deleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDeleteImage {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if _, found := s.images[id]; !found {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	delete(s.images, id)
	delete(s.imageOwner, id)
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
