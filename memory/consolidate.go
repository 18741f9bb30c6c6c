package memory

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/hollowbrook/mnemo/core"
)

// Consolidation defaults.
const (
	DefaultSaveInterval      = 10
	DefaultSummarizeInterval = 10
	DefaultWindowSize        = 5
	DefaultMaxMemoryLength   = 2000
)

// ConsolidatorConfig tunes the consolidation cadences.
type ConsolidatorConfig struct {
	// SaveInterval saves a chunk every N messages in a session.
	SaveInterval int

	// SummarizeInterval summarizes every N saved chunks.
	SummarizeInterval int

	// WindowSize is how many trailing messages make up a chunk.
	WindowSize int

	// MaxMemoryLength caps summarized chunk text, in characters.
	MaxMemoryLength int
}

func (c ConsolidatorConfig) withDefaults() ConsolidatorConfig {
	if c.SaveInterval <= 0 {
		c.SaveInterval = DefaultSaveInterval
	}
	if c.SummarizeInterval <= 0 {
		c.SummarizeInterval = DefaultSummarizeInterval
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.MaxMemoryLength <= 0 {
		c.MaxMemoryLength = DefaultMaxMemoryLength
	}
	return c
}

// Consolidator turns raw message history into persisted chunks on a
// message-count cadence and periodically compresses them.
//
// It runs synchronously at the tail of a turn and must never fail it:
// every error is logged and swallowed.
type Consolidator struct {
	recorder   *Recorder
	store      Store
	summarizer Summarizer
	cfg        ConsolidatorConfig
}

// NewConsolidator creates a consolidator. summarizer may be nil, in
// which case summarization is skipped.
func NewConsolidator(recorder *Recorder, store Store, summarizer Summarizer, cfg ConsolidatorConfig) *Consolidator {
	return &Consolidator{
		recorder:   recorder,
		store:      store,
		summarizer: summarizer,
		cfg:        cfg.withDefaults(),
	}
}

// ShouldSaveChunk reports whether a session at the given message count
// is due for a chunk save.
func (c *Consolidator) ShouldSaveChunk(messageCount int) bool {
	return messageCount > 0 && messageCount%c.cfg.SaveInterval == 0
}

// ShouldSummarize reports whether the given chunk-save count is due for
// a summarization pass.
func (c *Consolidator) ShouldSummarize(updateCount int) bool {
	return updateCount > 0 && updateCount%c.cfg.SummarizeInterval == 0
}

// Record runs the per-turn consolidation decision after an assistant
// turn is persisted. messageCount is the session's total message count;
// updateCount is how many chunk saves the session has accumulated
// (including the one Record may perform). window holds the most recent
// messages, oldest first.
//
// Record never returns an error; consolidation is a non-critical
// feature and must not fail the enclosing turn.
func (c *Consolidator) Record(ctx context.Context, agentID, sessionID string, messageCount, updateCount int, window []core.Message) {
	if !c.ShouldSaveChunk(messageCount) {
		return
	}

	text := BuildChunkText(window, c.cfg.WindowSize)
	if text == "" {
		return
	}

	if _, err := c.recorder.Save(ctx, agentID, sessionID, text, nil); err != nil {
		log.Printf("[CONSOLIDATE] chunk save failed for session %s: %v", sessionID, err)
		return
	}
	updateCount++

	if c.summarizer != nil && c.ShouldSummarize(updateCount) {
		if err := c.summarize(ctx, agentID, sessionID); err != nil {
			log.Printf("[CONSOLIDATE] summarization failed for session %s: %v", sessionID, err)
		}
	}
}

// summarize compresses the session's most recent chunk group into a
// single chunk. Originals are not deleted: the chunk log is append-only,
// so summarized and raw chunks coexist.
func (c *Consolidator) summarize(ctx context.Context, agentID, sessionID string) error {
	chunks, err := c.store.LoadForSession(ctx, sessionID, c.cfg.SummarizeInterval)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	// LoadForSession is newest-first; summarize in chronological order.
	var parts []string
	for i := len(chunks) - 1; i >= 0; i-- {
		parts = append(parts, chunks[i].Text)
	}

	summary, err := c.summarizer.Summarize(ctx, strings.Join(parts, "\n\n"), c.cfg.MaxMemoryLength)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if summary = strings.TrimSpace(summary); summary == "" {
		return nil
	}

	if _, err := c.recorder.Save(ctx, agentID, sessionID, summary, nil); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	log.Printf("[CONSOLIDATE] summarized %d chunks for session %s", len(chunks), sessionID)
	return nil
}

// BuildChunkText renders the last windowSize messages of window as
// "{role}: {content}" lines.
func BuildChunkText(window []core.Message, windowSize int) string {
	if windowSize > 0 && len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	var lines []string
	for _, m := range window {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, content))
	}
	return strings.Join(lines, "\n")
}
