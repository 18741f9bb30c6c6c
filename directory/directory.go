// Package directory resolves session ownership and agent configuration
// for the assembler. It is a read-only collaborator: the memory core
// stays request-scoped and keeps no process-wide mutable state, so any
// caching of these lookups lives here, behind the interface.
package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hollowbrook/mnemo/core"
	"github.com/hollowbrook/mnemo/memory/store/sqlite"
)

// Directory is the session/agent lookup surface the engine consumes.
type Directory interface {
	// AgentForSession resolves a session's owning agent.
	AgentForSession(ctx context.Context, sessionID string) (string, error)

	// SessionsForAgent lists every session owned by an agent.
	SessionsForAgent(ctx context.Context, agentID string) ([]string, error)

	// AgentConfig returns the agent's configuration.
	AgentConfig(ctx context.Context, agentID string) (core.AgentConfig, error)
}

// StoreDirectory serves lookups from the SQLite chunk store's session
// registry plus an in-process agent-config table.
type StoreDirectory struct {
	store *sqlite.Store

	mu     sync.RWMutex
	agents map[string]core.AgentConfig
}

// NewStoreDirectory creates a directory over the given store.
func NewStoreDirectory(store *sqlite.Store) *StoreDirectory {
	return &StoreDirectory{
		store:  store,
		agents: make(map[string]core.AgentConfig),
	}
}

// PutAgent registers or replaces an agent's configuration.
func (d *StoreDirectory) PutAgent(cfg core.AgentConfig) {
	d.mu.Lock()
	d.agents[cfg.AgentID] = cfg
	d.mu.Unlock()
}

func (d *StoreDirectory) AgentForSession(ctx context.Context, sessionID string) (string, error) {
	return d.store.AgentForSession(ctx, sessionID)
}

func (d *StoreDirectory) SessionsForAgent(ctx context.Context, agentID string) ([]string, error) {
	return d.store.SessionsForAgent(ctx, agentID)
}

func (d *StoreDirectory) AgentConfig(ctx context.Context, agentID string) (core.AgentConfig, error) {
	d.mu.RLock()
	cfg, ok := d.agents[agentID]
	d.mu.RUnlock()
	if !ok {
		return core.AgentConfig{}, fmt.Errorf("agent not found: %s", agentID)
	}
	return cfg, nil
}
