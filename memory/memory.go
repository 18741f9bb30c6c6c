package memory

import (
	"context"
	"time"
)

// Chunk is a persisted unit of conversational memory.
//
// Chunks are append-only: they are never mutated after creation and are
// deleted only when their owning session is deleted. Vector is nil when
// embedding failed or was skipped; such chunks are still useful for
// non-semantic listing.
type Chunk struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SimilarityResult pairs a chunk with its cosine similarity score.
// Scores are in [-1, 1]. Results are ephemeral, never persisted.
type SimilarityResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Scope selects the sessions a similarity search runs over: either an
// explicit session set, or every session owned by an agent. When both
// are set, the session set wins.
type Scope struct {
	SessionIDs []string
	AgentID    string
}

// Store is the persistent chunk storage backend.
//
// There is no update operation and no per-chunk delete: chunks go away
// only through cascading session deletion. This is deliberate; the chunk
// log is append-only.
type Store interface {
	// Save persists a chunk. Vector may be nil.
	Save(ctx context.Context, sessionID, text string, vector []float32) (Chunk, error)

	// LoadForSession returns a session's chunks, newest first.
	// limit <= 0 means no limit.
	LoadForSession(ctx context.Context, sessionID string, limit int) ([]Chunk, error)

	// LoadForAgent unions the chunks of every session owned by the
	// agent, newest first, deduplicated by id. limit <= 0 means no limit.
	LoadForAgent(ctx context.Context, agentID string, limit int) ([]Chunk, error)

	// Close releases resources.
	Close() error
}

// Index is the accelerated similarity query backend (the fast path).
//
// An Index is optional infrastructure: Engine treats any Index error as
// "fall back to the scan", never as a caller-visible failure.
type Index interface {
	// Add registers a chunk under the given agent so later queries can
	// find it. Chunks without a vector are ignored.
	Add(ctx context.Context, agentID string, chunk Chunk) error

	// Query returns up to topK chunks in scope with similarity >=
	// threshold, ordered by descending score, ties broken by most
	// recent CreatedAt.
	Query(ctx context.Context, query []float32, scope Scope, topK int, threshold float64) ([]SimilarityResult, error)
}

// Embedder converts text to vector embeddings.
type Embedder interface {
	// Embed converts a single text to an embedding vector. Every call
	// is a fresh upstream request; adapters do not cache.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Summarizer compresses chunk text during consolidation. Implemented by
// a model-backed collaborator (engine.Summarizer locally).
type Summarizer interface {
	// Summarize compresses text to at most maxLen characters.
	Summarize(ctx context.Context, text string, maxLen int) (string, error)
}
