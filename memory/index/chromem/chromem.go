// Package chromem adapts chromem-go as the accelerated similarity
// index. chromem-go is a pure Go, embedded vector database.
//
// The index is a cache over the chunk store, not the source of truth:
// any query it cannot answer is reported as an error so the search
// engine falls back to the authoritative scan.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hollowbrook/mnemo/memory"
)

// ErrNotIndexed reports a query scope the index has no knowledge of.
// The engine treats it like any other index failure: fall back to the
// scan.
var ErrNotIndexed = errors.New("scope not indexed")

// Index implements memory.Index over per-agent chromem collections.
type Index struct {
	db           *chromem.DB
	mu           sync.RWMutex
	collections  map[string]*chromem.Collection // keyed by agent id
	sessionAgent map[string]string              // session id -> agent id
	agentDocs    map[string]int                 // agent id -> indexed chunk count
	sessionDocs  map[string]int                 // session id -> indexed chunk count
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		db:           chromem.NewDB(),
		collections:  make(map[string]*chromem.Collection),
		sessionAgent: make(map[string]string),
		agentDocs:    make(map[string]int),
		sessionDocs:  make(map[string]int),
	}
}

func (x *Index) getOrCreateCollection(agentID string) (*chromem.Collection, error) {
	x.mu.RLock()
	col, exists := x.collections[agentID]
	x.mu.RUnlock()
	if exists {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, exists := x.collections[agentID]; exists {
		return col, nil
	}

	name := fmt.Sprintf("agent_%s", agentID)
	if agentID == "" {
		name = "unowned"
	}

	// nil embedding func: callers always supply embeddings. Default
	// distance is cosine, matching the fallback scan.
	col, err := x.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	x.collections[agentID] = col
	return col, nil
}

// Add registers a chunk under the given agent. Chunks without a vector
// are ignored; the scan path never ranks them either.
func (x *Index) Add(ctx context.Context, agentID string, chunk memory.Chunk) error {
	if chunk.Vector == nil {
		return nil
	}

	col, err := x.getOrCreateCollection(agentID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        chunk.ID,
		Content:   chunk.Text,
		Embedding: chunk.Vector,
		Metadata: map[string]string{
			"session_id": chunk.SessionID,
			"created_at": chunk.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	x.mu.Lock()
	x.sessionAgent[chunk.SessionID] = agentID
	x.agentDocs[agentID]++
	x.sessionDocs[chunk.SessionID]++
	x.mu.Unlock()
	return nil
}

// Query ranks indexed chunks in scope by cosine similarity.
func (x *Index) Query(ctx context.Context, query []float32, scope memory.Scope, topK int, threshold float64) ([]memory.SimilarityResult, error) {
	if len(scope.SessionIDs) > 0 {
		return x.querySessions(ctx, query, scope.SessionIDs, topK, threshold)
	}

	x.mu.RLock()
	col, exists := x.collections[scope.AgentID]
	docs := x.agentDocs[scope.AgentID]
	x.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("agent %s: %w", scope.AgentID, ErrNotIndexed)
	}

	results, err := x.queryCollection(ctx, col, query, nil, docs)
	if err != nil {
		return nil, err
	}
	return finish(results, topK, threshold), nil
}

func (x *Index) querySessions(ctx context.Context, query []float32, sessionIDs []string, topK int, threshold float64) ([]memory.SimilarityResult, error) {
	var merged []memory.SimilarityResult
	seen := map[string]bool{}

	for _, sid := range sessionIDs {
		x.mu.RLock()
		agentID, known := x.sessionAgent[sid]
		x.mu.RUnlock()
		if !known {
			// Never silently narrow the scope; the fallback scan is
			// authoritative for sessions this index has not seen.
			return nil, fmt.Errorf("session %s: %w", sid, ErrNotIndexed)
		}

		x.mu.RLock()
		col := x.collections[agentID]
		docs := x.sessionDocs[sid]
		x.mu.RUnlock()

		results, err := x.queryCollection(ctx, col, query, map[string]string{"session_id": sid}, docs)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if seen[r.Chunk.ID] {
				continue
			}
			seen[r.Chunk.ID] = true
			merged = append(merged, r)
		}
	}

	return finish(merged, topK, threshold), nil
}

// queryCollection runs a chromem query over the whole in-scope
// candidate set. Fetching everything in scope, not just topK, keeps the
// fast path's tie-breaking identical to the fallback scan: chromem
// ranks by score alone, so a topK cut here could resolve a boundary
// score tie differently than finish does. The retry with smaller
// limits covers chromem-go rejecting nResults larger than the
// (filtered) document count.
func (x *Index) queryCollection(ctx context.Context, col *chromem.Collection, query []float32, where map[string]string, docs int) ([]memory.SimilarityResult, error) {
	if docs <= 0 {
		return nil, nil
	}
	var raw []chromem.Result
	for limit := docs; limit >= 1; limit-- {
		var err error
		raw, err = col.QueryEmbedding(ctx, query, limit, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return nil, nil // collection (or filtered set) is empty
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	results := make([]memory.SimilarityResult, 0, len(raw))
	for _, r := range raw {
		createdAt, err := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
		if err != nil {
			log.Printf("[CHROMEM] skipping document %s: bad created_at %q", r.ID, r.Metadata["created_at"])
			continue
		}
		results = append(results, memory.SimilarityResult{
			Chunk: memory.Chunk{
				ID:        r.ID,
				SessionID: r.Metadata["session_id"],
				Text:      r.Content,
				Vector:    r.Embedding,
				CreatedAt: createdAt,
			},
			Score: float64(r.Similarity),
		})
	}
	return results, nil
}

// finish applies the threshold, the deterministic ordering shared with
// the fallback scan, and the topK cut.
func finish(results []memory.SimilarityResult, topK int, threshold float64) []memory.SimilarityResult {
	filtered := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			filtered = append(filtered, r)
		}
	}
	memory.SortResults(filtered)
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered
}

func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
