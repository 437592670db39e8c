// Package mapper converts properties between the backend wire shape and the
// in-app view, resolving agents by email on the way out.
package mapper

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/vbonduro/proplist/internal/backend"
	"github.com/vbonduro/proplist/internal/domain"
	"github.com/vbonduro/proplist/internal/metrics"
)

const placeholderCount = 5

// AgentSource says where a property's agent id came from when it was mapped
// for the backend.
type AgentSource string

const (
	AgentGiven   AgentSource = "given"
	AgentCache   AgentSource = "cache"
	AgentLookup  AgentSource = "lookup"
	AgentCreated AgentSource = "created"
	AgentDefault AgentSource = "default"
)

// agentDirectory is the subset of backend.AgentDirectory the mapper needs.
type agentDirectory interface {
	FindByEmail(ctx context.Context, email string) *backend.AgentDTO
	Create(ctx context.Context, agent backend.AgentDTO) (*backend.AgentDTO, error)
}

// agentCache is the subset of store.AgentCacheStore the mapper needs.
type agentCache interface {
	Lookup(ctx context.Context, email string) (*domain.CachedAgent, error)
	Remember(ctx context.Context, agent domain.Agent) error
	Forget(ctx context.Context, email string) error
}

type Mapper struct {
	agents         agentDirectory
	cache          agentCache
	origin         string
	defaultAgentID int64
	logger         *slog.Logger

	wg sync.WaitGroup
}

// New returns a mapper. origin is prepended to relative image URLs; cache may
// be nil.
func New(agents agentDirectory, cache agentCache, origin string, defaultAgentID int64, logger *slog.Logger) *Mapper {
	return &Mapper{
		agents:         agents,
		cache:          cache,
		origin:         strings.TrimRight(origin, "/"),
		defaultAgentID: defaultAgentID,
		logger:         logger,
	}
}

func (m *Mapper) ToView(p backend.PropertyDTO) *domain.Property {
	urls := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		if img.ImageURL == "" {
			m.logger.Warn("image without url", "property_id", p.ID, "image_id", img.ID)
			continue
		}
		urls = append(urls, m.ResolveImageURL(img.ImageURL))
	}
	if len(urls) == 0 {
		urls = []string{PlaceholderURL(p.ID)}
	}

	return &domain.Property{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Type:        domain.PropertyType(p.Type),
		Location:    p.Location,
		Agent: domain.Agent{
			ID:    p.Agent.ID,
			Name:  p.Agent.Name,
			Email: p.Agent.Email,
			Phone: p.Agent.Phone,
		},
		ImageURLs: urls,
	}
}

func (m *Mapper) ToViewList(props []backend.PropertyDTO) []*domain.Property {
	out := make([]*domain.Property, 0, len(props))
	for _, p := range props {
		out = append(out, m.ToView(p))
	}
	return out
}

// ResolveImageURL makes a backend-relative URL absolute. Bundled asset paths
// and absolute http(s) URLs are returned unchanged.
func (m *Mapper) ResolveImageURL(u string) string {
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "assets/"),
		strings.HasPrefix(u, "http://"),
		strings.HasPrefix(u, "https://"):
		return u
	case strings.HasPrefix(u, "/"):
		return m.origin + u
	default:
		return m.origin + "/" + u
	}
}

// PlaceholderURL picks one of the bundled sample images for a property.
func PlaceholderURL(id int64) string {
	k := id % placeholderCount
	if k <= 0 {
		k = 1
	}
	return fmt.Sprintf("assets/property-images/property%d.jpg", k)
}

// IsPlaceholder reports whether u is a bundled asset rather than a backend
// image.
func IsPlaceholder(u string) bool {
	return strings.HasPrefix(u, "assets/")
}

// ImageIDFromURL extracts the numeric image id from URLs of the form
// .../<id>.<ext>.
func ImageIDFromURL(u string) (int64, bool) {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	name := path.Base(u)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	id, err := strconv.ParseInt(name, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ToWire prepares p for the backend. An agent without an id is resolved by
// email (local cache, then the backend agent list, then created); when that
// fails the default agent id is used.
func (m *Mapper) ToWire(ctx context.Context, p *domain.Property) backend.PropertyDTO {
	dto, _ := m.Resolve(ctx, p)
	return dto
}

// Resolve is ToWire that also reports where the agent id came from, so a
// caller whose save is rejected can tell a stale cached id from the rest.
func (m *Mapper) Resolve(ctx context.Context, p *domain.Property) (backend.PropertyDTO, AgentSource) {
	agent := p.Agent
	if agent.ID != 0 {
		return wire(p, agent), AgentGiven
	}
	resolved, src, err := m.resolveAgent(ctx, agent)
	if err != nil {
		m.logger.Error("failed to resolve agent, using default",
			"email", agent.Email, "default_agent_id", m.defaultAgentID, "error", err)
		agent.ID = m.defaultAgentID
		metrics.AgentResolutions.WithLabelValues(string(AgentDefault)).Inc()
		return wire(p, agent), AgentDefault
	}
	return wire(p, resolved), src
}

// Forget drops the cached agent id for email; the next Resolve goes to the
// backend directory again.
func (m *Mapper) Forget(ctx context.Context, email string) {
	if m.cache == nil || email == "" {
		return
	}
	if err := m.cache.Forget(ctx, email); err != nil {
		m.logger.Warn("failed to forget cached agent", "email", email, "error", err)
	}
}

// ToWireCached is the non-blocking variant of ToWire. It consults only the
// local cache; on a miss the default agent id is returned immediately and the
// agent is resolved in the background so later calls hit the cache. Prefer
// ToWire: the payload returned here may carry the default id.
func (m *Mapper) ToWireCached(ctx context.Context, p *domain.Property) backend.PropertyDTO {
	agent := p.Agent
	if agent.ID != 0 {
		return wire(p, agent)
	}

	if id, ok := m.cached(ctx, agent.Email); ok {
		agent.ID = id
		return wire(p, agent)
	}

	agent.ID = m.defaultAgentID
	metrics.AgentResolutions.WithLabelValues(string(AgentDefault)).Inc()
	m.logger.Info("agent not cached, using default", "email", p.Agent.Email, "default_agent_id", m.defaultAgentID)

	pending := p.Agent
	bg := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, _, err := m.ensureAgent(bg, pending); err != nil {
			m.logger.Error("background agent resolution failed", "email", pending.Email, "error", err)
		}
	}()
	return wire(p, agent)
}

// Wait blocks until all background agent resolutions have finished.
func (m *Mapper) Wait() {
	m.wg.Wait()
}

func (m *Mapper) resolveAgent(ctx context.Context, agent domain.Agent) (domain.Agent, AgentSource, error) {
	if id, ok := m.cached(ctx, agent.Email); ok {
		agent.ID = id
		return agent, AgentCache, nil
	}
	return m.ensureAgent(ctx, agent)
}

// ensureAgent finds the agent in the backend list by email or creates it,
// then remembers the id locally.
func (m *Mapper) ensureAgent(ctx context.Context, agent domain.Agent) (domain.Agent, AgentSource, error) {
	var resolved domain.Agent
	src := AgentLookup
	if found := m.agents.FindByEmail(ctx, agent.Email); found != nil {
		m.logger.Debug("found existing agent", "email", agent.Email, "agent_id", found.ID)
		resolved = fromDTO(*found)
	} else {
		created, err := m.agents.Create(ctx, backend.AgentDTO{
			Name:  agent.Name,
			Email: agent.Email,
			Phone: agent.Phone,
		})
		if err != nil {
			return agent, "", err
		}
		if created.ID <= 0 {
			return agent, "", fmt.Errorf("backend created agent %s without an id", agent.Email)
		}
		m.logger.Info("created agent", "email", agent.Email, "agent_id", created.ID)
		resolved = fromDTO(*created)
		src = AgentCreated
	}
	metrics.AgentResolutions.WithLabelValues(string(src)).Inc()

	if m.cache != nil {
		if err := m.cache.Remember(ctx, resolved); err != nil {
			m.logger.Warn("failed to cache agent", "email", resolved.Email, "error", err)
		}
	}
	return resolved, src, nil
}

func (m *Mapper) cached(ctx context.Context, email string) (int64, bool) {
	if m.cache == nil || email == "" {
		return 0, false
	}
	hit, err := m.cache.Lookup(ctx, email)
	if err != nil {
		m.logger.Warn("agent cache lookup failed", "email", email, "error", err)
		return 0, false
	}
	if hit == nil {
		return 0, false
	}
	metrics.AgentResolutions.WithLabelValues(string(AgentCache)).Inc()
	return hit.AgentID, true
}

func fromDTO(a backend.AgentDTO) domain.Agent {
	return domain.Agent{ID: a.ID, Name: a.Name, Email: a.Email, Phone: a.Phone}
}

func wire(p *domain.Property, agent domain.Agent) backend.PropertyDTO {
	return backend.PropertyDTO{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Type:        string(p.Type),
		Location:    p.Location,
		Agent: backend.AgentDTO{
			ID:    agent.ID,
			Name:  agent.Name,
			Email: agent.Email,
			Phone: agent.Phone,
		},
		Images: []backend.ImageDTO{},
	}
}
