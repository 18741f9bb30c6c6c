package memory_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hollowbrook/mnemo/memory"
	"github.com/hollowbrook/mnemo/memory/index/chromem"
)

func TestCosine_Bounds(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0.5, 0.5, 0.5},
		{-1, 2, -3},
		{0.001, 0, 100},
	}
	for i, a := range vectors {
		for j, b := range vectors {
			score, err := memory.Cosine(a, b)
			if err != nil {
				t.Fatalf("Cosine(%d,%d): %v", i, j, err)
			}
			if score < -1.0000001 || score > 1.0000001 {
				t.Errorf("Cosine(%d,%d) = %v, out of [-1,1]", i, j, score)
			}
		}
	}
}

func TestCosine_SelfSimilarity(t *testing.T) {
	v := []float32{0.3, -0.7, 0.2, 0.9}
	score, err := memory.Cosine(v, v)
	if err != nil {
		t.Fatalf("Cosine: %v", err)
	}
	if math.Abs(score-1.0) > 1e-6 {
		t.Errorf("self similarity = %v, want 1", score)
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	v := []float32{1, 2, 3}

	for _, pair := range [][2][]float32{{zero, v}, {v, zero}, {zero, zero}} {
		score, err := memory.Cosine(pair[0], pair[1])
		if err != nil {
			t.Fatalf("Cosine with zero vector: %v", err)
		}
		if score != 0 {
			t.Errorf("zero-vector similarity = %v, want 0", score)
		}
		if math.IsNaN(score) {
			t.Error("zero-vector similarity is NaN")
		}
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	_, err := memory.Cosine([]float32{1, 2}, []float32{1, 2, 3})
	var dimErr *memory.DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dimErr.Want != 2 || dimErr.Got != 3 {
		t.Errorf("unexpected dims: want=%d got=%d", dimErr.Want, dimErr.Got)
	}
}

func TestFindSimilar_EmptyQuery(t *testing.T) {
	engine := memory.NewEngine(newMemStore())
	results, err := engine.FindSimilar(context.Background(), nil, memory.Scope{AgentID: "a1"}, 5, 0.5)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for empty query, got %d", len(results))
	}
}

func TestFindSimilar_FallbackRanking(t *testing.T) {
	store := newMemStore()
	store.own("s1", "a1")
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	store.add("s1", "exact", []float32{1, 0, 0}, base.Add(1*time.Hour))
	store.add("s1", "close", []float32{0.9, 0.1, 0}, base.Add(2*time.Hour))
	store.add("s1", "diagonal", []float32{0.7, 0.7, 0}, base.Add(3*time.Hour))
	store.add("s1", "orthogonal", []float32{0, 1, 0}, base.Add(4*time.Hour))
	store.add("s1", "unvectorized", nil, base.Add(5*time.Hour))

	engine := memory.NewEngine(store)
	results, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0}, memory.Scope{AgentID: "a1"}, 5, 0.5)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}

	want := []string{"exact", "close", "diagonal"}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, w := range want {
		if results[i].Chunk.Text != w {
			t.Errorf("result[%d] = %q, want %q", i, results[i].Chunk.Text, w)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted descending at %d", i)
		}
	}
}

func TestFindSimilar_TopKCut(t *testing.T) {
	store := newMemStore()
	store.own("s1", "a1")
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		store.add("s1", "same", []float32{1, 0, 0}, base.Add(time.Duration(i)*time.Hour))
	}

	engine := memory.NewEngine(store)
	results, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0}, memory.Scope{AgentID: "a1"}, 3, 0.5)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestFindSimilar_TieBreakNewestFirst(t *testing.T) {
	store := newMemStore()
	store.own("s1", "a1")
	old := store.add("s1", "old", []float32{1, 0, 0}, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	recent := store.add("s1", "recent", []float32{1, 0, 0}, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	engine := memory.NewEngine(store)
	results, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0}, memory.Scope{AgentID: "a1"}, 5, 0.5)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Chunk.ID != recent.ID || results[1].Chunk.ID != old.ID {
		t.Errorf("tie not broken by recency: got %s then %s", results[0].Chunk.ID, results[1].Chunk.ID)
	}
}

func TestFindSimilar_SkipsDimensionMismatches(t *testing.T) {
	store := newMemStore()
	store.own("s1", "a1")
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store.add("s1", "good", []float32{1, 0, 0}, base)
	store.add("s1", "malformed", []float32{1, 0}, base.Add(time.Hour))

	engine := memory.NewEngine(store)
	results, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0}, memory.Scope{AgentID: "a1"}, 5, 0.5)
	if err != nil {
		t.Fatalf("FindSimilar should tolerate per-candidate mismatches: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Text != "good" {
		t.Errorf("expected only the well-formed chunk, got %+v", results)
	}
}

func TestFindSimilar_SessionScopeUnion(t *testing.T) {
	store := newMemStore()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store.add("s1", "one", []float32{1, 0, 0}, base.Add(1*time.Hour))
	store.add("s2", "two", []float32{1, 0, 0}, base.Add(2*time.Hour))
	store.add("s3", "other", []float32{1, 0, 0}, base.Add(3*time.Hour))

	engine := memory.NewEngine(store)
	scope := memory.Scope{SessionIDs: []string{"s1", "s2"}}
	results, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0}, scope, 5, 0.5)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Chunk.Text != "two" || results[1].Chunk.Text != "one" {
		t.Errorf("unexpected session-scope results: %+v", results)
	}
}

// TestFindSimilar_FastFallbackEquivalence runs the same fixture through
// the chromem fast path and the fallback scan and requires identical
// rankings.
func TestFindSimilar_FastFallbackEquivalence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.own("s1", "a1")
	idx := chromem.New()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	fixtures := []struct {
		text   string
		vector []float32
		at     time.Time
	}{
		{"exact", []float32{1, 0, 0}, base.Add(1 * time.Hour)},
		{"close", []float32{0.9, 0.1, 0}, base.Add(2 * time.Hour)},
		{"diagonal", []float32{0.7, 0.7, 0}, base.Add(3 * time.Hour)},
		{"orthogonal", []float32{0, 1, 0}, base.Add(4 * time.Hour)},
	}
	for _, f := range fixtures {
		chunk := store.add("s1", f.text, f.vector, f.at)
		if err := idx.Add(ctx, "a1", chunk); err != nil {
			t.Fatalf("index add: %v", err)
		}
	}

	query := []float32{1, 0, 0}
	scope := memory.Scope{AgentID: "a1"}

	fast := memory.NewEngine(store, memory.WithIndex(idx))
	fallback := memory.NewEngine(store)

	fastResults, err := fast.FindSimilar(ctx, query, scope, 5, 0.5)
	if err != nil {
		t.Fatalf("fast path: %v", err)
	}
	scanResults, err := fallback.FindSimilar(ctx, query, scope, 5, 0.5)
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}

	if len(fastResults) != len(scanResults) {
		t.Fatalf("result counts differ: fast=%d fallback=%d", len(fastResults), len(scanResults))
	}
	for i := range fastResults {
		if fastResults[i].Chunk.ID != scanResults[i].Chunk.ID {
			t.Errorf("rank %d differs: fast=%s fallback=%s", i, fastResults[i].Chunk.ID, scanResults[i].Chunk.ID)
		}
	}
}

// TestFindSimilar_TieAtCutEquivalence pins the ranking when a score tie
// lands exactly on the topK boundary: both tiers must resolve it to the
// more recent chunk, not whichever the backend happened to rank first.
func TestFindSimilar_TieAtCutEquivalence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.own("s1", "a1")
	idx := chromem.New()

	older := store.add("s1", "older", []float32{1, 0, 0}, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := store.add("s1", "newer", []float32{1, 0, 0}, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	for _, c := range []memory.Chunk{older, newer} {
		if err := idx.Add(ctx, "a1", c); err != nil {
			t.Fatalf("index add: %v", err)
		}
	}

	query := []float32{1, 0, 0}
	scope := memory.Scope{AgentID: "a1"}

	fast := memory.NewEngine(store, memory.WithIndex(idx))
	fallback := memory.NewEngine(store)

	fastResults, err := fast.FindSimilar(ctx, query, scope, 1, 0.5)
	if err != nil {
		t.Fatalf("fast path: %v", err)
	}
	scanResults, err := fallback.FindSimilar(ctx, query, scope, 1, 0.5)
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}

	if len(fastResults) != 1 || len(scanResults) != 1 {
		t.Fatalf("result counts: fast=%d fallback=%d, want 1 each", len(fastResults), len(scanResults))
	}
	if fastResults[0].Chunk.ID != newer.ID {
		t.Errorf("fast path returned %s, want the newer chunk %s", fastResults[0].Chunk.ID, newer.ID)
	}
	if scanResults[0].Chunk.ID != fastResults[0].Chunk.ID {
		t.Errorf("tiers disagree at the cut: fast=%s fallback=%s", fastResults[0].Chunk.ID, scanResults[0].Chunk.ID)
	}
}

// TestFindSimilar_IndexErrorFallsBack proves an unprovisioned index is
// expected, not exceptional.
func TestFindSimilar_IndexErrorFallsBack(t *testing.T) {
	store := newMemStore()
	store.own("s1", "a1")
	store.add("s1", "only", []float32{1, 0, 0}, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	// Empty index: it has never seen agent a1, so its queries fail.
	engine := memory.NewEngine(store, memory.WithIndex(chromem.New()))
	results, err := engine.FindSimilar(context.Background(), []float32{1, 0, 0}, memory.Scope{AgentID: "a1"}, 5, 0.5)
	if err != nil {
		t.Fatalf("index failure must not surface: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Text != "only" {
		t.Errorf("fallback did not serve the query: %+v", results)
	}
}
