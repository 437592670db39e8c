package web_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/proplist/internal/backend"
	"github.com/vbonduro/proplist/internal/backend/backendtest"
	"github.com/vbonduro/proplist/internal/db"
	"github.com/vbonduro/proplist/internal/domain"
	"github.com/vbonduro/proplist/internal/mapper"
	"github.com/vbonduro/proplist/internal/service"
	"github.com/vbonduro/proplist/internal/staging/local"
	"github.com/vbonduro/proplist/internal/store"
	"github.com/vbonduro/proplist/internal/web"
)

// minimalJPEG is 512 bytes with the JPEG magic bytes header followed by zeros.
var minimalJPEG = func() []byte {
	b := make([]byte, 512)
	b[0] = 0xFF
	b[1] = 0xD8
	b[2] = 0xFF
	b[3] = 0xE0
	return b
}()

type testEnv struct {
	fake  *backendtest.Server
	srv   *httptest.Server
	cache *store.AgentCacheStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := backendtest.New(t)
	client := backend.NewClient(fake.URL, 5*time.Second, slog.Default())

	database, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	stg, err := local.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cache := store.NewAgentCacheStore(database)
	m := mapper.New(client.Agents(), cache, fake.URL, 1, slog.Default())
	props := service.NewPropertyService(client.Properties(), m, slog.Default())
	svc := web.Services{
		Properties: props,
		Publisher:  service.NewPublisher(client.Properties(), m, stg, service.PublisherConfig{Attempts: 3}, slog.Default()),
		Drafts:     service.NewDraftService(stg, client.Properties(), 5, slog.Default()),
		Inquiries:  service.NewInquiryService(props, slog.Default()),
		Agents:     service.NewAgentService(client.Agents(), cache, slog.Default()),
	}
	srv := httptest.NewServer(web.NewServer(svc, []string{"http://localhost:4200"}, slog.Default()))
	t.Cleanup(srv.Close)
	return &testEnv{fake: fake, srv: srv, cache: cache}
}

func listingForm(t *testing.T, p domain.Property, files ...string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("property", string(raw)))
	for _, name := range files {
		fw, err := mw.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = fw.Write(minimalJPEG)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func lakefront() domain.Property {
	return domain.Property{
		Title:    "Lakefront Home",
		Price:    450000,
		Type:     domain.TypeSale,
		Location: "123 Lakeview Dr",
		Agent:    domain.Agent{Name: "Alex Johnson", Email: "alex@mazlogic.com"},
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type publishBody struct {
	RunID         string          `json:"runId"`
	Property      domain.Property `json:"property"`
	UploadErrors  []string        `json:"uploadErrors"`
	PreviewErrors []string        `json:"previewErrors"`
}

func TestCreateListingWithImages(t *testing.T) {
	env := newTestEnv(t)
	env.fake.FailUpload("b.jpg", 10)

	body, ct := listingForm(t, lakefront(), "a.jpg", "b.jpg", "c.jpg")
	resp, err := http.Post(env.srv.URL+"/api/listings", ct, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decode[publishBody](t, resp)
	assert.NotEmpty(t, got.RunID)
	assert.NotZero(t, got.Property.ID)
	assert.Equal(t, []string{"Failed to upload b.jpg"}, got.UploadErrors)
	assert.Empty(t, got.PreviewErrors)
	assert.Len(t, got.Property.ImageURLs, 2)

	resp, err = http.Get(fmt.Sprintf("%s/api/listings/%d", env.srv.URL, got.Property.ID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decode[domain.Property](t, resp)
	assert.Equal(t, got.Property.ImageURLs, fetched.ImageURLs)
}

func TestCreateListingJSON(t *testing.T) {
	env := newTestEnv(t)
	raw, err := json.Marshal(lakefront())
	require.NoError(t, err)

	resp, err := http.Post(env.srv.URL+"/api/listings", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	got := decode[publishBody](t, resp)
	assert.Len(t, got.Property.ImageURLs, 1)
	assert.True(t, strings.HasPrefix(got.Property.ImageURLs[0], "assets/property-images/"))
}

func TestCreateListingValidation(t *testing.T) {
	env := newTestEnv(t)
	p := lakefront()
	p.Price = -1
	body, ct := listingForm(t, p)

	resp, err := http.Post(env.srv.URL+"/api/listings", ct, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	got := decode[map[string]any](t, resp)
	assert.Equal(t, "validation failed", got["error"])
	assert.Empty(t, env.fake.Requests())
}

func TestCreateListingBackendDown(t *testing.T) {
	env := newTestEnv(t)
	env.fake.FailCreate = true
	body, ct := listingForm(t, lakefront(), "a.jpg")

	resp, err := http.Post(env.srv.URL+"/api/listings", ct, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateListingStream(t *testing.T) {
	env := newTestEnv(t)
	body, ct := listingForm(t, lakefront(), "a.jpg", "b.jpg")

	resp, err := http.Post(env.srv.URL+"/api/listings/stream", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events, data []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			events = append(events, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, sc.Err())

	assert.Equal(t, []string{"progress", "progress", "done"}, events)
	require.Len(t, data, 3)
	assert.JSONEq(t, `{"percent":50}`, data[0])
	assert.JSONEq(t, `{"percent":100}`, data[1])

	var done publishBody
	require.NoError(t, json.Unmarshal([]byte(data[2]), &done))
	assert.Len(t, done.Property.ImageURLs, 2)
}

func TestUpdateListing(t *testing.T) {
	env := newTestEnv(t)
	agent := env.fake.AddAgent(backend.AgentDTO{Name: "Alex Johnson", Email: "alex@mazlogic.com"})
	existing := env.fake.AddProperty(backend.PropertyDTO{
		Title: "Lakefront Home", Price: 450000, Type: "sale", Location: "Lake", Agent: agent,
		Images: []backend.ImageDTO{{}},
	})

	p := lakefront()
	p.Title = "Lakefront Villa"
	p.Agent.ID = agent.ID
	body, ct := listingForm(t, p, "new.jpg")
	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/listings/%d", env.srv.URL, existing.ID), body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[publishBody](t, resp)
	assert.Equal(t, existing.ID, got.Property.ID)
	assert.Equal(t, "Lakefront Villa", got.Property.Title)
	assert.Len(t, got.Property.ImageURLs, 2)
}

func TestUpdateListingWithoutImagesAcceptsFullSet(t *testing.T) {
	env := newTestEnv(t)
	existing := env.fake.AddProperty(backend.PropertyDTO{
		Title: "Lakefront Home", Price: 1, Type: "sale", Location: "Lake",
	})

	body, ct := listingForm(t, lakefront(), "a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg")
	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/listings/%d", env.srv.URL, existing.ID), body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[publishBody](t, resp)
	assert.Len(t, env.fake.Uploads(), 5)
	assert.Len(t, got.Property.ImageURLs, 5)
	for _, u := range got.Property.ImageURLs {
		assert.NotContains(t, u, "assets/")
	}
}

func TestUpdateListingTooManyImages(t *testing.T) {
	env := newTestEnv(t)
	existing := env.fake.AddProperty(backend.PropertyDTO{
		Title: "Lakefront Home", Price: 1, Type: "sale", Location: "Lake",
		Images: make([]backend.ImageDTO, 5),
	})

	body, ct := listingForm(t, lakefront(), "a.jpg")
	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/listings/%d", env.srv.URL, existing.ID), body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, "Maximum 5 images allowed", got["error"])
}

func TestListListings(t *testing.T) {
	env := newTestEnv(t)
	env.fake.AddProperty(backend.PropertyDTO{Title: "Lakefront Home", Price: 450000, Type: "sale"})
	env.fake.AddProperty(backend.PropertyDTO{Title: "Downtown Apartment", Price: 2500, Type: "rent"})

	resp, err := http.Get(env.srv.URL + "/api/listings?type=rent")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	l := decode[service.Listing](t, resp)
	require.Len(t, l.Properties, 1)
	assert.Equal(t, "Downtown Apartment", l.Properties[0].Title)

	resp, err = http.Get(env.srv.URL + "/api/listings?type=lease")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(env.srv.URL + "/api/listings?maxPrice=abc")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestListListingsFallsBackToSamples(t *testing.T) {
	env := newTestEnv(t)
	env.fake.FailList = true

	resp, err := http.Get(env.srv.URL + "/api/listings")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	l := decode[service.Listing](t, resp)
	assert.True(t, l.Sample)
	assert.Equal(t, service.NoticeSampleData, l.Notice)
	assert.Len(t, l.Properties, 3)
}

func TestGetListingNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/listings/999")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(env.srv.URL + "/api/listings/abc")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteListing(t *testing.T) {
	env := newTestEnv(t)
	p := env.fake.AddProperty(backend.PropertyDTO{Title: "Lakefront Home", Price: 1, Type: "sale"})

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/listings/%d", env.srv.URL, p.ID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	_, ok := env.fake.Property(p.ID)
	assert.False(t, ok)
}

func TestDeleteListingImage(t *testing.T) {
	env := newTestEnv(t)
	p := env.fake.AddProperty(backend.PropertyDTO{Title: "Lakefront Home", Price: 1, Type: "sale",
		Images: []backend.ImageDTO{{DisplayOrder: 0}, {DisplayOrder: 1}}})
	target := p.Images[1].ID

	url := fmt.Sprintf("%s/api/listings/%d/images/%d", env.srv.URL, p.ID, target)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[domain.Property](t, resp)
	assert.Len(t, got.ImageURLs, 1)

	stored, _ := env.fake.Property(p.ID)
	require.Len(t, stored.Images, 1)
	assert.Equal(t, p.Images[0].ID, stored.Images[0].ID)

	req, err = http.NewRequest(http.MethodDelete, url, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteListingImageFailure(t *testing.T) {
	env := newTestEnv(t)
	p := env.fake.AddProperty(backend.PropertyDTO{Title: "Lakefront Home", Price: 1, Type: "sale",
		Images: []backend.ImageDTO{{}}})
	env.fake.FailDeleteImage = true

	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/listings/%d/images/%d", env.srv.URL, p.ID, p.Images[0].ID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()

	stored, _ := env.fake.Property(p.ID)
	assert.Len(t, stored.Images, 1)
}

func TestUpdateListingImage(t *testing.T) {
	env := newTestEnv(t)
	p := env.fake.AddProperty(backend.PropertyDTO{Title: "Lakefront Home", Price: 1, Type: "sale",
		Images: []backend.ImageDTO{{}}})

	req, err := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/listings/%d/images/%d", env.srv.URL, p.ID, p.Images[0].ID),
		strings.NewReader(`{"description":"Front","displayOrder":2}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	img := decode[domain.Image](t, resp)
	assert.Equal(t, "Front", img.Description)
	assert.Equal(t, 2, img.DisplayOrder)
}

func TestRequestInfoAndAppointment(t *testing.T) {
	env := newTestEnv(t)
	p := env.fake.AddProperty(backend.PropertyDTO{Title: "Lakefront Home", Price: 1, Type: "sale"})

	resp, err := http.Post(fmt.Sprintf("%s/api/listings/%d/request-info", env.srv.URL, p.ID), "application/json",
		strings.NewReader(`{"name":"Jamie","email":"jamie@example.com"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	c := decode[service.Confirmation](t, resp)
	assert.Equal(t, "Request sent for Lakefront Home by Jamie", c.Message)

	resp, err = http.Post(fmt.Sprintf("%s/api/listings/%d/appointments", env.srv.URL, p.ID), "application/json",
		strings.NewReader(`{"name":"Jamie","email":"jamie@example.com","date":"2026-11-02","time":"09:15"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	c = decode[service.Confirmation](t, resp)
	assert.Equal(t, "Appointment requested for Lakefront Home by Jamie on 2026-11-02 at 09:15", c.Message)

	resp, err = http.Post(fmt.Sprintf("%s/api/listings/%d/appointments", env.srv.URL, p.ID), "application/json",
		strings.NewReader(`{"name":"Jamie","email":"jamie@example.com","date":"tomorrow","time":"09:15"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestPreviews(t *testing.T) {
	env := newTestEnv(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("images", "a.jpg")
	require.NoError(t, err)
	_, err = fw.Write(minimalJPEG)
	require.NoError(t, err)
	fw, err = mw.CreateFormFile("images", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.srv.URL+"/api/previews", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[struct {
		Previews []string `json:"previews"`
		Errors   []string `json:"errors"`
	}](t, resp)
	require.Len(t, got.Previews, 1)
	assert.True(t, strings.HasPrefix(got.Previews[0], "data:image/jpeg;base64,"))
	assert.Equal(t, []string{"Failed to generate preview for notes.txt"}, got.Errors)
}

func TestListAgents(t *testing.T) {
	env := newTestEnv(t)
	env.fake.AddAgent(backend.AgentDTO{Name: "Sarah", Email: "sarah@mazlogic.com"})

	resp, err := http.Get(env.srv.URL + "/api/agents")
	require.NoError(t, err)
	agents := decode[[]domain.Agent](t, resp)
	require.Len(t, agents, 1)

	resp, err = http.Get(env.srv.URL + "/api/agents?email=SARAH@mazlogic.com")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	a := decode[domain.Agent](t, resp)
	assert.Equal(t, "Sarah", a.Name)

	env.fake.FailAgentList = true
	resp, err = http.Get(env.srv.URL + "/api/agents")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]domain.Agent](t, resp))
}

func TestAgentUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	sarah := env.fake.AddAgent(backend.AgentDTO{Name: "Sarah", Email: "sarah@mazlogic.com"})
	agentURL := fmt.Sprintf("%s/api/agents/%d", env.srv.URL, sarah.ID)

	resp, err := http.Get(agentURL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Sarah", decode[domain.Agent](t, resp).Name)

	req, err := http.NewRequest(http.MethodPut, agentURL,
		strings.NewReader(`{"name":"Sarah Lee","email":"sarah.lee@mazlogic.com","phone":"555"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sarah.lee@mazlogic.com", decode[domain.Agent](t, resp).Email)

	hit, err := env.cache.Lookup(context.Background(), "sarah.lee@mazlogic.com")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, sarah.ID, hit.AgentID)

	req, err = http.NewRequest(http.MethodDelete, agentURL, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, env.fake.Agents())

	hit, err = env.cache.Lookup(context.Background(), "sarah.lee@mazlogic.com")
	require.NoError(t, err)
	assert.Nil(t, hit)

	resp, err = http.Get(agentURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAgentUpdateRejectsInvalidEmail(t *testing.T) {
	env := newTestEnv(t)
	sarah := env.fake.AddAgent(backend.AgentDTO{Name: "Sarah", Email: "sarah@mazlogic.com"})

	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/agents/%d", env.srv.URL, sarah.ID),
		strings.NewReader(`{"name":"Sarah","email":"nope"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))
	resp.Body.Close()

	resp, err = http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Contains(t, string(raw), "go_goroutines")

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/listings", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:4200", resp.Header.Get("Access-Control-Allow-Origin"))
}
