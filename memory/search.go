package memory

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"
)

// Search defaults, overridable per call.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.5
)

// Engine runs similarity searches over a Store, delegating to an
// accelerated Index when one is provisioned.
type Engine struct {
	store Store
	index Index
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithIndex provisions the accelerated fast path. Without it every
// search is a full in-scope scan.
func WithIndex(idx Index) EngineOption {
	return func(e *Engine) { e.index = idx }
}

// NewEngine creates a search engine over the given store.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FindSimilar returns the topK chunks in scope with cosine similarity to
// query of at least threshold, ordered by descending score, ties broken
// by most recent CreatedAt.
//
// The index query and the fallback scan are order-equivalent; a failing
// or missing index is expected and silently falls through to the scan.
// An empty query returns no results and no error.
func (e *Engine) FindSimilar(ctx context.Context, query []float32, scope Scope, topK int, threshold float64) ([]SimilarityResult, error) {
	if len(query) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	if e.index != nil {
		results, err := e.index.Query(ctx, query, scope, topK, threshold)
		if err == nil {
			SortResults(results)
			return results, nil
		}
		log.Printf("[SEARCH] fast path unavailable, falling back to scan: %v", err)
	}

	return e.scan(ctx, query, scope, topK, threshold)
}

// scan is the fallback path: load every chunk in scope and rank by
// cosine similarity.
func (e *Engine) scan(ctx context.Context, query []float32, scope Scope, topK int, threshold float64) ([]SimilarityResult, error) {
	chunks, err := e.loadScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	var results []SimilarityResult
	for _, c := range chunks {
		if c.Vector == nil {
			continue
		}
		score, err := Cosine(query, c.Vector)
		if err != nil {
			var dimErr *DimensionMismatchError
			if errors.As(err, &dimErr) {
				log.Printf("[SEARCH] skipping chunk %s (session %s): %v", c.ID, c.SessionID, err)
				continue
			}
			return nil, err
		}
		if score >= threshold {
			results = append(results, SimilarityResult{Chunk: c, Score: score})
		}
	}

	SortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (e *Engine) loadScope(ctx context.Context, scope Scope) ([]Chunk, error) {
	if len(scope.SessionIDs) > 0 {
		var chunks []Chunk
		seen := map[string]bool{}
		for _, sid := range scope.SessionIDs {
			cs, err := e.store.LoadForSession(ctx, sid, 0)
			if err != nil {
				return nil, err
			}
			for _, c := range cs {
				if seen[c.ID] {
					continue
				}
				seen[c.ID] = true
				chunks = append(chunks, c)
			}
		}
		return chunks, nil
	}
	return e.store.LoadForAgent(ctx, scope.AgentID, 0)
}

// SortResults orders results by descending score, ties broken by most
// recent CreatedAt. Both search tiers apply it so rankings stay
// deterministic and equivalent.
func SortResults(results []SimilarityResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.CreatedAt.After(results[j].Chunk.CreatedAt)
	})
}

// Cosine computes the cosine similarity of two vectors: dot(a,b) /
// (||a||*||b||). A zero-norm operand yields 0, not NaN. Length mismatch
// returns a DimensionMismatchError.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Want: len(a), Got: len(b)}
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
