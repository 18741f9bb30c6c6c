package chromem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hollowbrook/mnemo/memory"
)

func chunkAt(id, sessionID string, vector []float32, offset time.Duration) memory.Chunk {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return memory.Chunk{
		ID:        id,
		SessionID: sessionID,
		Text:      "text for " + id,
		Vector:    vector,
		CreatedAt: base.Add(offset),
	}
}

func TestQuery_AgentScope(t *testing.T) {
	ctx := context.Background()
	idx := New()

	mustAdd(t, idx, "a1", chunkAt("c1", "s1", []float32{1, 0}, 0))
	mustAdd(t, idx, "a1", chunkAt("c2", "s2", []float32{0.9, 0.1}, time.Second))
	mustAdd(t, idx, "a1", chunkAt("c3", "s1", []float32{0, 1}, 2*time.Second))
	mustAdd(t, idx, "other", chunkAt("c4", "s9", []float32{1, 0}, 0))

	results, err := idx.Query(ctx, []float32{1, 0}, memory.Scope{AgentID: "a1"}, 5, 0.5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0].Chunk.ID != "c1" || results[1].Chunk.ID != "c2" {
		t.Errorf("ranking = %s, %s", results[0].Chunk.ID, results[1].Chunk.ID)
	}
	for _, r := range results {
		if r.Chunk.ID == "c4" {
			t.Error("result leaked from another agent's collection")
		}
	}
}

func TestQuery_SessionScope(t *testing.T) {
	ctx := context.Background()
	idx := New()

	mustAdd(t, idx, "a1", chunkAt("c1", "s1", []float32{1, 0}, 0))
	mustAdd(t, idx, "a1", chunkAt("c2", "s2", []float32{1, 0}, time.Second))
	mustAdd(t, idx, "a1", chunkAt("c3", "s3", []float32{1, 0}, 2*time.Second))

	results, err := idx.Query(ctx, []float32{1, 0}, memory.Scope{SessionIDs: []string{"s1", "s2"}}, 5, 0.5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Chunk.SessionID == "s3" {
			t.Errorf("out-of-scope session in results: %+v", r.Chunk)
		}
	}
}

func TestQuery_UnknownAgentNotIndexed(t *testing.T) {
	idx := New()
	_, err := idx.Query(context.Background(), []float32{1, 0}, memory.Scope{AgentID: "ghost"}, 5, 0.5)
	if !errors.Is(err, ErrNotIndexed) {
		t.Fatalf("want ErrNotIndexed, got %v", err)
	}
}

func TestQuery_UnknownSessionNotIndexed(t *testing.T) {
	ctx := context.Background()
	idx := New()
	mustAdd(t, idx, "a1", chunkAt("c1", "s1", []float32{1, 0}, 0))

	_, err := idx.Query(ctx, []float32{1, 0}, memory.Scope{SessionIDs: []string{"s1", "never-seen"}}, 5, 0.5)
	if !errors.Is(err, ErrNotIndexed) {
		t.Fatalf("partially known session scope must not narrow silently, got %v", err)
	}
}

func TestQuery_TopKLargerThanCollection(t *testing.T) {
	ctx := context.Background()
	idx := New()
	mustAdd(t, idx, "a1", chunkAt("c1", "s1", []float32{1, 0}, 0))

	// chromem rejects nResults above the collection size; the adapter
	// retries with smaller limits.
	results, err := idx.Query(ctx, []float32{1, 0}, memory.Scope{AgentID: "a1"}, 50, 0.5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestQuery_ThresholdFilters(t *testing.T) {
	ctx := context.Background()
	idx := New()
	mustAdd(t, idx, "a1", chunkAt("c1", "s1", []float32{1, 0}, 0))
	mustAdd(t, idx, "a1", chunkAt("c2", "s1", []float32{0, 1}, time.Second))

	results, err := idx.Query(ctx, []float32{1, 0}, memory.Scope{AgentID: "a1"}, 5, 0.9)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "c1" {
		t.Errorf("threshold not applied: %+v", results)
	}
}

func TestQuery_ScoreTieAtCutBreaksByRecency(t *testing.T) {
	ctx := context.Background()
	idx := New()

	// Identical vectors score identically; with topK=1 the cut lands
	// exactly on the tie, which must resolve to the newer chunk.
	mustAdd(t, idx, "a1", chunkAt("older", "s1", []float32{1, 0, 0}, 0))
	mustAdd(t, idx, "a1", chunkAt("newer", "s1", []float32{1, 0, 0}, time.Hour))

	results, err := idx.Query(ctx, []float32{1, 0, 0}, memory.Scope{AgentID: "a1"}, 1, 0.5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Chunk.ID != "newer" {
		t.Errorf("tie at topK boundary resolved to %s, want newer", results[0].Chunk.ID)
	}
}

func TestAdd_SkipsNilVector(t *testing.T) {
	ctx := context.Background()
	idx := New()

	c := chunkAt("c1", "s1", nil, 0)
	if err := idx.Add(ctx, "a1", c); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// The agent stays unknown: nothing indexable was added.
	_, err := idx.Query(ctx, []float32{1, 0}, memory.Scope{AgentID: "a1"}, 5, 0.5)
	if !errors.Is(err, ErrNotIndexed) {
		t.Errorf("want ErrNotIndexed after nil-vector add, got %v", err)
	}
}

func mustAdd(t *testing.T, idx *Index, agentID string, c memory.Chunk) {
	t.Helper()
	if err := idx.Add(context.Background(), agentID, c); err != nil {
		t.Fatalf("Add(%s): %v", c.ID, err)
	}
}
