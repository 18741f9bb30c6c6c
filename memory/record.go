package memory

import (
	"context"
	"log"
)

// Recorder persists chunks, embedding them when no vector is supplied
// and keeping the accelerated index in step with the store.
type Recorder struct {
	store    Store
	embedder Embedder
	index    Index
}

// RecorderOption configures the recorder.
type RecorderOption func(*Recorder)

// WithRecorderIndex mirrors saved chunks into the accelerated index so
// the fast path sees them.
func WithRecorderIndex(idx Index) RecorderOption {
	return func(r *Recorder) { r.index = idx }
}

// NewRecorder creates a recorder. embedder may be nil, in which case
// chunks saved without a vector persist unvectorized.
func NewRecorder(store Store, embedder Embedder, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, embedder: embedder}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save persists a chunk for the session. When vector is nil the text is
// embedded first; an embedding failure downgrades to a nil-vector save
// rather than failing, since unvectorized chunks still serve listing.
//
// agentID is used only for index placement; pass "" when no index is
// configured.
func (r *Recorder) Save(ctx context.Context, agentID, sessionID, text string, vector []float32) (Chunk, error) {
	if vector == nil && r.embedder != nil {
		emb, err := r.embedder.Embed(ctx, text)
		if err != nil {
			log.Printf("[MEMORY] embed failed for session %s, saving without vector: %v", sessionID, err)
		} else {
			if want := r.embedder.Dimensions(); want > 0 && len(emb) != want {
				log.Printf("[MEMORY] embedding dimension mismatch for session %s: want %d, got %d", sessionID, want, len(emb))
			}
			vector = emb
		}
	}

	chunk, err := r.store.Save(ctx, sessionID, text, vector)
	if err != nil {
		return Chunk{}, err
	}

	if r.index != nil && chunk.Vector != nil {
		if err := r.index.Add(ctx, agentID, chunk); err != nil {
			// Index is a cache over the store; the fallback scan still
			// finds the chunk.
			log.Printf("[MEMORY] index add failed for chunk %s: %v", chunk.ID, err)
		}
	}

	return chunk, nil
}
