package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

const summarizerPrompt = `You compress conversational memory. Rewrite the provided chunks as a single dense summary that preserves concrete facts, names, preferences and decisions. Respond with the summary only, at most %d characters.`

// Summarizer compresses memory chunks through the Anthropic Messages
// API. It implements memory.Summarizer.
type Summarizer struct {
	client *anthropic.Client
	model  string
}

// NewSummarizer creates a summarizer. model defaults to DefaultModel.
func NewSummarizer(client *anthropic.Client, model string) *Summarizer {
	if model == "" {
		model = DefaultModel
	}
	return &Summarizer{client: client, model: model}
}

// Summarize compresses text to at most maxLen characters.
func (s *Summarizer) Summarize(ctx context.Context, text string, maxLen int) (string, error) {
	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: fmt.Sprintf(summarizerPrompt, maxLen)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	var summary string
	for _, block := range resp.Content {
		if block.Type == "text" {
			summary += block.Text
		}
	}
	summary = strings.TrimSpace(summary)

	// The model is asked for maxLen but not trusted to honor it.
	return truncateRunes(summary, maxLen), nil
}

// truncateRunes cuts s to at most max characters. The cap counts
// characters, so the cut is on runes, never mid-sequence through a
// multi-byte rune. max <= 0 means no cap.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
