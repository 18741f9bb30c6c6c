// Package engine orchestrates a chat turn: it resolves relevant
// memories, composes the instruction header, assembles the final
// message sequence and invokes the model.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/hollowbrook/mnemo/compose"
	"github.com/hollowbrook/mnemo/core"
	"github.com/hollowbrook/mnemo/memory"
)

// memoryBlockHeader introduces retrieved memories in the instruction
// header.
const memoryBlockHeader = "Relevant context from previous conversations:"

// Assembler builds the ordered message sequence for a turn.
//
// Per-turn flow is a fixed pipeline: CollectingMemory,
// ComposingInstructions, AssemblingMessages. No step retries; each
// non-critical step degrades to "skip this enhancement" on failure
// rather than aborting the turn.
type Assembler struct {
	embedder  memory.Embedder
	search    *memory.Engine
	config    compose.RuleApplicationConfig
	topK      int
	threshold float64
}

// AssemblerOption configures the assembler.
type AssemblerOption func(*Assembler)

// WithTopK overrides how many memories a turn retrieves.
func WithTopK(k int) AssemblerOption {
	return func(a *Assembler) { a.topK = k }
}

// WithThreshold overrides the minimum similarity for retrieval.
func WithThreshold(t float64) AssemblerOption {
	return func(a *Assembler) { a.threshold = t }
}

// NewAssembler creates an assembler. embedder and search may be nil,
// in which case turns run without memory retrieval.
func NewAssembler(embedder memory.Embedder, search *memory.Engine, config compose.RuleApplicationConfig, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		embedder:  embedder,
		search:    search,
		config:    config,
		topK:      memory.DefaultTopK,
		threshold: memory.DefaultThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Input is one turn's raw material.
type Input struct {
	// AgentID scopes memory retrieval across all of the agent's
	// sessions.
	AgentID string

	// SessionID identifies the current conversation.
	SessionID string

	// UserMessage is the incoming user message.
	UserMessage string

	// History is the prior message sequence, chronological order.
	History []core.Message

	// Agent supplies per-agent generation parameters and the
	// attributes that derive behavior rules.
	Agent core.AgentConfig

	// PromptTexts binds prompt origins to text. The agent's own
	// system prompt fills the client_config slot unless the caller
	// bound it explicitly.
	PromptTexts map[compose.Origin]string

	// RulePayloads binds rule origins to raw rule payloads. The
	// agent's behavior_rules fill the client_config slot unless bound
	// explicitly.
	RulePayloads map[compose.Origin]any
}

// Output is the assembled turn.
type Output struct {
	// Messages is the final ordered sequence: system prompt (when any
	// prompt source is bound), memory context (if any), behavior rules
	// (if any), prior history, new user message.
	Messages []core.Message

	// Memories are the retrieved similarity results, for callers that
	// log or persist retrieval decisions.
	Memories []memory.SimilarityResult
}

// Assemble runs one turn's pipeline and returns the ordered messages.
//
// Memory retrieval failures degrade to an empty memory list. A missing
// required prompt source or an invalid rule payload is a configuration
// error and propagates.
func (a *Assembler) Assemble(ctx context.Context, input *Input) (*Output, error) {
	// === COLLECTING MEMORY ===
	memories := a.collectMemories(ctx, input)

	// === COMPOSING INSTRUCTIONS ===
	systemPrompt, err := a.composePrompt(input)
	if err != nil {
		return nil, err
	}
	rulesBlock, err := a.composeRules(input)
	if err != nil {
		return nil, err
	}
	memoryBlock := FormatMemoryBlock(memories)

	// === ASSEMBLING MESSAGES ===
	messages := make([]core.Message, 0, len(input.History)+4)
	if systemPrompt != "" {
		messages = append(messages, core.NewSystemMessage(systemPrompt))
	}
	if memoryBlock != "" {
		messages = append(messages, core.NewSystemMessage(memoryBlock))
	}
	if rulesBlock != "" {
		messages = append(messages, core.NewSystemMessage(rulesBlock))
	}
	messages = append(messages, input.History...)
	messages = append(messages, core.NewUserMessage(input.UserMessage))

	return &Output{Messages: messages, Memories: memories}, nil
}

// collectMemories embeds the user message and searches the agent's
// sessions. Any failure here, including cancellation of the slow
// operations, degrades to no memories; it never blocks the turn.
func (a *Assembler) collectMemories(ctx context.Context, input *Input) []memory.SimilarityResult {
	if a.embedder == nil || a.search == nil || input.UserMessage == "" {
		return nil
	}

	query, err := a.embedder.Embed(ctx, input.UserMessage)
	if err != nil {
		log.Printf("[ASSEMBLE] embed failed for agent %s session %s: %v", input.AgentID, input.SessionID, err)
		return nil
	}

	scope := memory.Scope{AgentID: input.AgentID}
	results, err := a.search.FindSimilar(ctx, query, scope, a.topK, a.threshold)
	if err != nil {
		log.Printf("[ASSEMBLE] memory retrieval failed for agent %s session %s: %v", input.AgentID, input.SessionID, err)
		return nil
	}
	return results
}

func (a *Assembler) composePrompt(input *Input) (string, error) {
	texts := make(map[compose.Origin]string, len(input.PromptTexts)+1)
	for origin, text := range input.PromptTexts {
		texts[origin] = text
	}
	if _, bound := texts[compose.OriginClientConfig]; !bound && input.Agent.SystemPrompt != "" {
		texts[compose.OriginClientConfig] = input.Agent.SystemPrompt
	}

	sources := a.config.PromptSourcesFor(texts)
	return compose.MergePromptSources(sources, a.config.PromptMerge)
}

func (a *Assembler) composeRules(input *Input) (string, error) {
	payloads := make(map[compose.Origin]any, len(input.RulePayloads)+1)
	for origin, payload := range input.RulePayloads {
		payloads[origin] = payload
	}
	if _, bound := payloads[compose.OriginClientConfig]; !bound && len(input.Agent.BehaviorRules) > 0 {
		payloads[compose.OriginClientConfig] = input.Agent.BehaviorRules
	}

	rules, err := compose.CollectRules(a.config.RuleSourcesFor(payloads))
	if err != nil {
		return "", err
	}

	// Derived rules always follow explicit sources.
	rules = append(rules, compose.DerivedRules(input.Agent)...)
	return compose.RenderRules(rules, a.config.RulesTransform), nil
}

// FormatMemoryBlock renders retrieved memories as a single numbered
// system block. Empty input renders nothing.
func FormatMemoryBlock(memories []memory.SimilarityResult) string {
	if len(memories) == 0 {
		return ""
	}
	parts := make([]string, 0, len(memories)+1)
	parts = append(parts, memoryBlockHeader)
	for i, m := range memories {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, strings.TrimSpace(m.Chunk.Text)))
	}
	return strings.Join(parts, "\n")
}
