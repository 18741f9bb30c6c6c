package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/hollowbrook/mnemo/core"
	"github.com/hollowbrook/mnemo/memory"
)

// Generation defaults, used when the agent config leaves them unset.
const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 4096
)

// Runner executes a full chat turn: assemble, invoke the model, then
// run tail consolidation.
type Runner struct {
	client       *anthropic.Client
	assembler    *Assembler
	consolidator *memory.Consolidator
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithConsolidator enables tail-of-turn memory consolidation.
func WithConsolidator(c *memory.Consolidator) RunnerOption {
	return func(r *Runner) { r.consolidator = c }
}

// NewRunner creates a runner around an Anthropic client and an
// assembler.
func NewRunner(client *anthropic.Client, assembler *Assembler, opts ...RunnerOption) *Runner {
	r := &Runner{client: client, assembler: assembler}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TurnInput extends the assembler input with the session counters the
// consolidation cadence needs.
type TurnInput struct {
	Input

	// MessageCount is the session's total message count including the
	// incoming user message and the assistant reply of this turn.
	MessageCount int

	// UpdateCount is how many chunk saves the session has accumulated
	// so far.
	UpdateCount int
}

// TurnOutput is the completed turn.
type TurnOutput struct {
	// TurnID identifies this turn in logs.
	TurnID string

	// Text is the assistant's response.
	Text string

	// Messages is the assembled sequence that was sent to the model.
	Messages []core.Message
}

// RunTurn assembles the turn, calls the model and consolidates memory.
//
// Model invocation errors propagate unmodified. Consolidation runs
// synchronously at the tail of the turn and can add latency, but it is
// never allowed to fail the turn.
func (r *Runner) RunTurn(ctx context.Context, input *TurnInput) (*TurnOutput, error) {
	turnID := uuid.New().String()

	assembled, err := r.assembler.Assemble(ctx, &input.Input)
	if err != nil {
		return nil, err
	}

	params := buildParams(assembled.Messages, input.Agent)

	resp, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("model invocation: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	if r.consolidator != nil {
		window := append(append([]core.Message{}, input.History...),
			core.NewUserMessage(input.UserMessage),
			core.NewAssistantMessage(text))
		r.consolidator.Record(ctx, input.AgentID, input.SessionID, input.MessageCount, input.UpdateCount, window)
	}

	log.Printf("[ENGINE] turn %s complete for agent %s session %s", turnID, input.AgentID, input.SessionID)

	return &TurnOutput{
		TurnID:   turnID,
		Text:     text,
		Messages: assembled.Messages,
	}, nil
}

// buildParams converts the assembled sequence into Anthropic request
// parameters. Leading system messages become system blocks; the rest
// map onto user and assistant messages.
func buildParams(messages []core.Message, agent core.AgentConfig) anthropic.MessageNewParams {
	model := agent.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := agent.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	var system []anthropic.TextBlockParam
	var rest []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case core.RoleAssistant:
			rest = append(rest, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			rest = append(rest, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  rest,
		System:    system,
	}
	if agent.Temperature > 0 {
		params.Temperature = anthropic.Float(agent.Temperature)
	}
	return params
}
