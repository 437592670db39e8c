package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vbonduro/proplist/internal/backend"
	"github.com/vbonduro/proplist/internal/domain"
)

// agentDirectory is the subset of backend.AgentDirectory the agent service
// requires.
type agentDirectory interface {
	List(ctx context.Context) []backend.AgentDTO
	FindByEmail(ctx context.Context, email string) *backend.AgentDTO
	Get(ctx context.Context, id int64) (*backend.AgentDTO, error)
	Update(ctx context.Context, id int64, agent backend.AgentDTO) (*backend.AgentDTO, error)
	Delete(ctx context.Context, id int64) error
}

// agentCache is the subset of store.AgentCacheStore the agent service
// requires.
type agentCache interface {
	Remember(ctx context.Context, agent domain.Agent) error
	ForgetID(ctx context.Context, agentID int64) error
}

// AgentService manages backend agents and keeps the local email -> id cache
// in step with them.
type AgentService struct {
	agents agentDirectory
	cache  agentCache
	logger *slog.Logger
}

func NewAgentService(agents agentDirectory, cache agentCache, logger *slog.Logger) *AgentService {
	return &AgentService{agents: agents, cache: cache, logger: logger}
}

// List returns every agent; a failed backend listing yields an empty list.
func (s *AgentService) List(ctx context.Context) []domain.Agent {
	dtos := s.agents.List(ctx)
	out := make([]domain.Agent, 0, len(dtos))
	for _, a := range dtos {
		out = append(out, agentFromDTO(a))
	}
	return out
}

// FindByEmail returns the agent with email, or nil.
func (s *AgentService) FindByEmail(ctx context.Context, email string) *domain.Agent {
	dto := s.agents.FindByEmail(ctx, email)
	if dto == nil {
		return nil
	}
	a := agentFromDTO(*dto)
	return &a
}

func (s *AgentService) Get(ctx context.Context, id int64) (*domain.Agent, error) {
	dto, err := s.agents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a := agentFromDTO(*dto)
	return &a, nil
}

// Update saves a on the backend and re-points the cache, dropping the old
// email if it changed.
func (s *AgentService) Update(ctx context.Context, a *domain.Agent) (*domain.Agent, error) {
	if a.ID <= 0 {
		return nil, ErrInvalidID
	}
	if err := validate.Struct(a); err != nil {
		return nil, fmt.Errorf("invalid agent: %w", err)
	}

	dto, err := s.agents.Update(ctx, a.ID, backend.AgentDTO{ID: a.ID, Name: a.Name, Email: a.Email, Phone: a.Phone})
	if err != nil {
		return nil, err
	}
	updated := agentFromDTO(*dto)

	if err := s.cache.ForgetID(ctx, updated.ID); err != nil {
		s.logger.Warn("failed to drop cached agent", "agent_id", updated.ID, "error", err)
	}
	if err := s.cache.Remember(ctx, updated); err != nil {
		s.logger.Warn("failed to cache agent", "agent_id", updated.ID, "error", err)
	}
	s.logger.Info("agent updated", "agent_id", updated.ID)
	return &updated, nil
}

// Delete removes the agent on the backend and every cache entry pointing at
// it, so later saves resolve the email again.
func (s *AgentService) Delete(ctx context.Context, id int64) error {
	if err := s.agents.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.cache.ForgetID(ctx, id); err != nil {
		s.logger.Warn("failed to drop cached agent", "agent_id", id, "error", err)
	}
	s.logger.Info("agent deleted", "agent_id", id)
	return nil
}

func agentFromDTO(a backend.AgentDTO) domain.Agent {
	return domain.Agent{ID: a.ID, Name: a.Name, Email: a.Email, Phone: a.Phone}
}
