package directory

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/hollowbrook/mnemo/core"
)

// DefaultCacheTTL bounds how stale a cached lookup may be.
const DefaultCacheTTL = 5 * time.Minute

// CachedDirectory wraps a Directory with a ristretto read-through
// cache for session-ownership and agent-config lookups. Session lists
// are not cached; they change with every new session.
type CachedDirectory struct {
	inner Directory
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCached wraps a directory with a cache. ttl <= 0 means
// DefaultCacheTTL.
func NewCached(inner Directory, ttl time.Duration) (*CachedDirectory, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedDirectory{inner: inner, cache: cache, ttl: ttl}, nil
}

func (d *CachedDirectory) AgentForSession(ctx context.Context, sessionID string) (string, error) {
	key := "session:" + sessionID
	if v, ok := d.cache.Get(key); ok {
		return v.(string), nil
	}
	agentID, err := d.inner.AgentForSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	d.cache.SetWithTTL(key, agentID, 1, d.ttl)
	return agentID, nil
}

func (d *CachedDirectory) SessionsForAgent(ctx context.Context, agentID string) ([]string, error) {
	return d.inner.SessionsForAgent(ctx, agentID)
}

func (d *CachedDirectory) AgentConfig(ctx context.Context, agentID string) (core.AgentConfig, error) {
	key := "agent:" + agentID
	if v, ok := d.cache.Get(key); ok {
		return v.(core.AgentConfig), nil
	}
	cfg, err := d.inner.AgentConfig(ctx, agentID)
	if err != nil {
		return core.AgentConfig{}, err
	}
	d.cache.SetWithTTL(key, cfg, 1, d.ttl)
	return cfg, nil
}

// Wait blocks until pending cache writes are applied. Sets are
// buffered, so a lookup immediately after a miss may still hit the
// inner directory.
func (d *CachedDirectory) Wait() {
	d.cache.Wait()
}

// Close releases the cache.
func (d *CachedDirectory) Close() {
	d.cache.Close()
}
