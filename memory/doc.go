// Package memory implements long-term conversational memory for agents.
//
// Conversation fragments are persisted as immutable chunks, optionally
// vectorized, and retrieved for new turns by vector similarity. Retrieval
// runs a two-tier strategy: an accelerated index query when an index is
// provisioned (fast path), and a full in-scope cosine scan otherwise
// (fallback). Both tiers produce the same ranking for the same inputs.
//
// Architecture:
//   - Store: persistent chunk storage, scoped by session and agent
//   - Index: optional accelerated similarity index
//   - Embedder: text-to-vector conversion
//   - Engine: similarity search with fast-path/fallback duality
//   - Consolidator: cadence-based chunk creation and summarization
//
// Local implementation:
//   - SQLite chunk store (memory/store/sqlite)
//   - chromem-go index (memory/index/chromem)
//   - OpenAI-compatible HTTP embedder, ONNX embedder for offline use
//
// Memory failures never fail the enclosing chat turn: retrieval degrades
// to an empty result, consolidation logs and swallows its errors.
package memory
