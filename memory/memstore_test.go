package memory_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hollowbrook/mnemo/memory"
)

// memStore is an in-memory memory.Store for tests.
type memStore struct {
	mu       sync.Mutex
	chunks   []memory.Chunk
	sessions map[string]string // session id -> agent id
	saveErr  error
	loadErr  error
	nextID   int
	now      time.Time
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]string),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) own(sessionID, agentID string) {
	s.mu.Lock()
	s.sessions[sessionID] = agentID
	s.mu.Unlock()
}

// add inserts a chunk with a fixed timestamp so ordering tests are
// deterministic.
func (s *memStore) add(sessionID, text string, vector []float32, createdAt time.Time) memory.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := memory.Chunk{
		ID:        fmt.Sprintf("chunk-%03d", s.nextID),
		SessionID: sessionID,
		Text:      text,
		Vector:    vector,
		CreatedAt: createdAt,
	}
	s.chunks = append(s.chunks, c)
	return c
}

func (s *memStore) Save(ctx context.Context, sessionID, text string, vector []float32) (memory.Chunk, error) {
	if s.saveErr != nil {
		return memory.Chunk{}, s.saveErr
	}
	s.mu.Lock()
	s.now = s.now.Add(time.Second)
	at := s.now
	s.mu.Unlock()
	return s.add(sessionID, text, vector, at), nil
}

func (s *memStore) LoadForSession(ctx context.Context, sessionID string, limit int) ([]memory.Chunk, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.Chunk
	for _, c := range s.chunks {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) LoadForAgent(ctx context.Context, agentID string, limit int) ([]memory.Chunk, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.Chunk
	for _, c := range s.chunks {
		if s.sessions[c.SessionID] == agentID {
			out = append(out, c)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

func sortNewestFirst(chunks []memory.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].CreatedAt.After(chunks[j].CreatedAt)
	})
}
