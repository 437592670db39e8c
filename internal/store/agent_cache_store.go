package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vbonduro/proplist/internal/domain"
)

// AgentCacheStore remembers which backend agent id belongs to an email so
// property saves do not have to list every agent on each submission.
type AgentCacheStore struct {
	db *sql.DB
}

func NewAgentCacheStore(db *sql.DB) *AgentCacheStore {
	return &AgentCacheStore{db: db}
}

// Lookup returns the cached entry for email, or nil when there is none.
// Emails compare case-insensitively.
func (s *AgentCacheStore) Lookup(ctx context.Context, email string) (*domain.CachedAgent, error) {
	entry := &domain.CachedAgent{}
	err := s.db.QueryRowContext(ctx, `
		SELECT email, agent_id, name, resolved_at FROM agent_cache WHERE email = ?
	`, normalizeEmail(email)).Scan(&entry.Email, &entry.AgentID, &entry.Name, &entry.ResolvedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up agent: %w", err)
	}

	return entry, nil
}

// Remember stores or replaces the agent id for the agent's email.
func (s *AgentCacheStore) Remember(ctx context.Context, agent domain.Agent) error {
	if agent.ID <= 0 {
		return fmt.Errorf("agent id must be positive")
	}
	if strings.TrimSpace(agent.Email) == "" {
		return fmt.Errorf("agent email required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_cache (email, agent_id, name, resolved_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(email) DO UPDATE SET agent_id = excluded.agent_id, name = excluded.name, resolved_at = CURRENT_TIMESTAMP
	`, normalizeEmail(agent.Email), agent.ID, agent.Name)
	if err != nil {
		return fmt.Errorf("failed to remember agent: %w", err)
	}
	return nil
}

// Forget drops the entry for email. Forgetting an unknown email is not an error.
func (s *AgentCacheStore) Forget(ctx context.Context, email string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM agent_cache WHERE email = ?
	`, normalizeEmail(email)); err != nil {
		return fmt.Errorf("failed to forget agent: %w", err)
	}
	return nil
}

// ForgetID drops every entry pointing at agentID, used after the agent is
// deleted on the backend.
func (s *AgentCacheStore) ForgetID(ctx context.Context, agentID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM agent_cache WHERE agent_id = ?
	`, agentID); err != nil {
		return fmt.Errorf("failed to forget agent id: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
