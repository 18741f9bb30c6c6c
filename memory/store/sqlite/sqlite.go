// Package sqlite provides the SQLite-backed chunk store.
//
// Chunks are an append-only log: there is no update statement and the
// only delete path is cascading session deletion. Vectors are stored as
// little-endian float32 blobs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/hollowbrook/mnemo/memory"
)

// Store implements memory.Store over a SQLite database.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New opens or creates a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// newID returns a ULID. Monotonic entropy keeps ids ordered even when
// two saves share a millisecond.
func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		agent_id   TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		text       TEXT NOT NULL,
		vector     BLOB,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_created ON chunks(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RegisterSession records that a session belongs to an agent. Calling
// it again for the same session updates the ownership.
func (s *Store) RegisterSession(ctx context.Context, sessionID, agentID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, agent_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET agent_id = excluded.agent_id`,
		sessionID, agentID, now)
	return err
}

// DeleteSession removes a session and, via cascade, all of its chunks.
// This is the only deletion path for chunks.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

// AgentForSession resolves a session's owning agent.
func (s *Store) AgentForSession(ctx context.Context, sessionID string) (string, error) {
	var agentID string
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id FROM sessions WHERE id = ?`, sessionID).Scan(&agentID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("session not found: %s", sessionID)
	}
	return agentID, err
}

// SessionsForAgent lists the ids of every session owned by an agent.
func (s *Store) SessionsForAgent(ctx context.Context, agentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE agent_id = ? ORDER BY created_at DESC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Save persists a chunk. Unknown sessions are created implicitly with
// no agent ownership; RegisterSession attaches them later.
func (s *Store) Save(ctx context.Context, sessionID, text string, vector []float32) (memory.Chunk, error) {
	now := time.Now().UTC()
	id := s.newID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memory.Chunk{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, agent_id, created_at) VALUES (?, '', ?)`,
		sessionID, now.Format(time.RFC3339Nano))
	if err != nil {
		return memory.Chunk{}, fmt.Errorf("ensure session: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chunks (id, session_id, text, vector, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, sessionID, text, encodeVector(vector), now.Format(time.RFC3339Nano))
	if err != nil {
		return memory.Chunk{}, fmt.Errorf("insert chunk: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return memory.Chunk{}, err
	}

	return memory.Chunk{
		ID:        id,
		SessionID: sessionID,
		Text:      text,
		Vector:    vector,
		CreatedAt: now,
	}, nil
}

// LoadForSession returns a session's chunks, newest first.
func (s *Store) LoadForSession(ctx context.Context, sessionID string, limit int) ([]memory.Chunk, error) {
	query := `SELECT id, session_id, text, vector, created_at FROM chunks
		 WHERE session_id = ? ORDER BY created_at DESC, id DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryChunks(ctx, query, args...)
}

// LoadForAgent unions the chunks of every session owned by the agent,
// newest first. The primary-key join keeps results deduplicated by id.
func (s *Store) LoadForAgent(ctx context.Context, agentID string, limit int) ([]memory.Chunk, error) {
	query := `SELECT c.id, c.session_id, c.text, c.vector, c.created_at
		 FROM chunks c
		 INNER JOIN sessions s ON s.id = c.session_id
		 WHERE s.agent_id = ?
		 ORDER BY c.created_at DESC, c.id DESC`
	args := []interface{}{agentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryChunks(ctx, query, args...)
}

// Search finds chunks whose text contains the query substring, newest
// first. It serves listing and the CLI; vectors are not consulted, so
// unvectorized chunks are searchable too.
func (s *Store) Search(ctx context.Context, sessionID, query string, limit int) ([]memory.Chunk, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	if sessionID != "" {
		return s.queryChunks(ctx,
			`SELECT id, session_id, text, vector, created_at FROM chunks
			 WHERE session_id = ? AND text LIKE ?
			 ORDER BY created_at DESC, id DESC LIMIT ?`,
			sessionID, like, limit)
	}
	return s.queryChunks(ctx,
		`SELECT id, session_id, text, vector, created_at FROM chunks
		 WHERE text LIKE ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		like, limit)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...interface{}) ([]memory.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []memory.Chunk
	for rows.Next() {
		var c memory.Chunk
		var vec []byte
		var createdAt string
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Text, &vec, &createdAt); err != nil {
			return nil, err
		}
		c.Vector = decodeVector(vec)
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// encodeVector packs a float32 vector into a little-endian blob. Nil in,
// nil out, so nil-vector chunks round-trip as nil.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
