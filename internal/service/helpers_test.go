package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vbonduro/proplist/internal/backend"
	"github.com/vbonduro/proplist/internal/backend/backendtest"
	"github.com/vbonduro/proplist/internal/db"
	"github.com/vbonduro/proplist/internal/domain"
	"github.com/vbonduro/proplist/internal/mapper"
	"github.com/vbonduro/proplist/internal/staging/local"
	"github.com/vbonduro/proplist/internal/store"
)

var (
	jpegData = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	pngData  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}
)

type harness struct {
	fake    *backendtest.Server
	client  *backend.Client
	mapper  *mapper.Mapper
	staging *local.LocalStore
	cache   *store.AgentCacheStore
	drafts  *DraftService
	props   *PropertyService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := backendtest.New(t)
	client := backend.NewClient(fake.URL, 5*time.Second, slog.Default())

	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	cache := store.NewAgentCacheStore(d)

	stg, err := local.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	m := mapper.New(client.Agents(), cache, fake.URL, 1, slog.Default())
	t.Cleanup(m.Wait)

	return &harness{
		fake:    fake,
		client:  client,
		mapper:  m,
		staging: stg,
		cache:   cache,
		drafts:  NewDraftService(stg, client.Properties(), 5, slog.Default()),
		props:   NewPropertyService(client.Properties(), m, slog.Default()),
	}
}

func (h *harness) publisher(attempts int) *Publisher {
	return NewPublisher(h.client.Properties(), h.mapper, h.staging, PublisherConfig{Attempts: attempts}, slog.Default())
}

func lakefront() *domain.Property {
	return &domain.Property{
		Title:       "Lakefront Home",
		Description: "Lake views",
		Price:       450000,
		Type:        domain.TypeSale,
		Location:    "123 Lakeview Dr",
		Agent:       domain.Agent{Name: "Alex Johnson", Email: "alex@mazlogic.com", Phone: "(555) 123-4567"},
	}
}

func files(names ...string) []SelectedFile {
	out := make([]SelectedFile, 0, len(names))
	for _, n := range names {
		out = append(out, SelectedFile{Name: n, Data: jpegData})
	}
	return out
}

func stagedCount(t *testing.T, h *harness) int {
	t.Helper()
	removed, err := h.staging.Sweep(-time.Hour)
	require.NoError(t, err)
	return removed
}

func draftWith(t *testing.T, h *harness, p *domain.Property, names ...string) *Draft {
	t.Helper()
	d := h.drafts.NewDraft(p)
	require.NoError(t, h.drafts.AddFiles(context.Background(), d, files(names...)))
	return d
}
