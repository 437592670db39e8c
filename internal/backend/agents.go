package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type AgentDirectory struct {
	client *Client
}

// List returns every agent. A failed listing is logged and degrades to an
// empty list; use ListStrict when the caller must tell the two apart.
func (d *AgentDirectory) List(ctx context.Context) []AgentDTO {
	agents, err := d.ListStrict(ctx)
	if err != nil {
		d.client.logger.Warn("agent listing failed, returning empty list", "error", err)
		return []AgentDTO{}
	}
	return agents
}

func (d *AgentDirectory) ListStrict(ctx context.Context) ([]AgentDTO, error) {
	var agents []AgentDTO
	if err := d.client.doJSON(ctx, http.MethodGet, "/agents", nil, nil, &agents); err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	if agents == nil {
		agents = []AgentDTO{}
	}
	return agents, nil
}

// FindByEmail returns the first listed agent whose email matches, ignoring
// case, or nil.
func (d *AgentDirectory) FindByEmail(ctx context.Context, email string) *AgentDTO {
	want := strings.TrimSpace(email)
	for _, a := range d.List(ctx) {
		if strings.EqualFold(a.Email, want) {
			found := a
			return &found
		}
	}
	return nil
}

func (d *AgentDirectory) Get(ctx context.Context, id int64) (*AgentDTO, error) {
	var agent AgentDTO
	if err := d.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("/agents/%d", id), nil, nil, &agent); err != nil {
		return nil, fmt.Errorf("failed to get agent %d: %w", id, err)
	}
	return &agent, nil
}

func (d *AgentDirectory) Create(ctx context.Context, agent AgentDTO) (*AgentDTO, error) {
	agent.ID = 0
	var created AgentDTO
	if err := d.client.doJSON(ctx, http.MethodPost, "/agents", nil, agent, &created); err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return &created, nil
}

func (d *AgentDirectory) Update(ctx context.Context, id int64, agent AgentDTO) (*AgentDTO, error) {
	var updated AgentDTO
	if err := d.client.doJSON(ctx, http.MethodPut, fmt.Sprintf("/agents/%d", id), nil, agent, &updated); err != nil {
		return nil, fmt.Errorf("failed to update agent %d: %w", id, err)
	}
	return &updated, nil
}

func (d *AgentDirectory) Delete(ctx context.Context, id int64) error {
	if err := d.client.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/agents/%d", id), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete agent %d: %w", id, err)
	}
	return nil
}
