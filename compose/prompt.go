package compose

import (
	"sort"
	"strings"
	"time"

	"github.com/hollowbrook/mnemo/core"
)

// DefaultPromptSeparator joins merged prompt sources.
const DefaultPromptSeparator = "\n\n---\n\n"

// Timestamp embedding positions.
const (
	TimeAtNone  = "none"
	TimeAtStart = "start"
	TimeAtEnd   = "end"
)

// PromptMergeOptions controls the system prompt merge.
type PromptMergeOptions struct {
	// Separator joins surviving source texts. Empty means
	// DefaultPromptSeparator.
	Separator string `yaml:"separator"`

	// EmbedTimeAt is "start", "end" or "none".
	EmbedTimeAt string `yaml:"embed_time_at"`

	// TimeFormat is "iso" (ISO-8601) or a Go time layout.
	TimeFormat string `yaml:"time_format"`

	// Now overrides the clock; nil means time.Now. Tests pin it so
	// merge output is byte-identical.
	Now func() time.Time `yaml:"-"`
}

// MergePromptSources merges system-prompt sources in ascending priority
// order. Empty optional sources are skipped; an empty required source
// returns a MissingRequiredSourceError.
//
// Given identical sources and options the output is byte-identical
// across calls; only the timestamp component follows the clock.
func MergePromptSources(sources []Source, opts PromptMergeOptions) (string, error) {
	sep := opts.Separator
	if sep == "" {
		sep = DefaultPromptSeparator
	}

	ordered := make([]Source, 0, len(sources))
	for _, s := range sources {
		// Role zero value counts as system-applicable.
		if s.Role == "" || s.Role == core.RoleSystem {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	var parts []string
	for _, s := range ordered {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			if s.Required {
				return "", &MissingRequiredSourceError{Origin: s.Origin}
			}
			continue
		}
		parts = append(parts, text)
	}

	merged := strings.Join(parts, sep)

	switch opts.EmbedTimeAt {
	case TimeAtStart:
		merged = timeInstruction(opts) + sep + merged
	case TimeAtEnd:
		merged = merged + sep + timeInstruction(opts)
	}

	return merged, nil
}

func timeInstruction(opts PromptMergeOptions) string {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	layout := time.RFC3339
	if opts.TimeFormat != "" && opts.TimeFormat != "iso" {
		layout = opts.TimeFormat
	}
	return "Current time: " + now().Format(layout)
}
