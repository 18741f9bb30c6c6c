package compose

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourceRef names a configured source slot: which origin feeds the
// merge, at what priority, and whether it may be empty.
type SourceRef struct {
	Origin   Origin `yaml:"origin"`
	Priority int    `yaml:"priority"`
	Required bool   `yaml:"required"`
}

// RuleApplicationConfig enumerates, in fixed order, which sources feed
// the system prompt and which feed behavior rules, plus the transform
// options for each merge.
//
// It is built once at process start and treated as immutable for the
// process lifetime.
type RuleApplicationConfig struct {
	PromptSources  []SourceRef           `yaml:"prompt_sources"`
	RuleSources    []SourceRef           `yaml:"rule_sources"`
	PromptMerge    PromptMergeOptions    `yaml:"prompt_merge"`
	RulesTransform RulesTransformOptions `yaml:"rules_transform"`
}

// DefaultRuleApplicationConfig returns the built-in source wiring: the
// main prompt is required, everything else optional, priorities running
// main < agent type < archetype < client config < client user.
func DefaultRuleApplicationConfig() RuleApplicationConfig {
	return RuleApplicationConfig{
		PromptSources: []SourceRef{
			{Origin: OriginMain, Priority: 10, Required: true},
			{Origin: OriginAgentType, Priority: 20},
			{Origin: OriginArchetype, Priority: 30},
			{Origin: OriginClientConfig, Priority: 40},
			{Origin: OriginClientUser, Priority: 50},
		},
		RuleSources: []SourceRef{
			{Origin: OriginAgentType, Priority: 10},
			{Origin: OriginArchetype, Priority: 20},
			{Origin: OriginClientConfig, Priority: 30},
			{Origin: OriginClientUser, Priority: 40},
		},
		PromptMerge: PromptMergeOptions{
			Separator:   DefaultPromptSeparator,
			EmbedTimeAt: TimeAtNone,
			TimeFormat:  "iso",
		},
		RulesTransform: RulesTransformOptions{
			Format: RulesFormatNumbered,
		},
	}
}

// LoadRuleApplicationConfig reads a YAML config file, filling omitted
// fields from the defaults.
func LoadRuleApplicationConfig(path string) (RuleApplicationConfig, error) {
	cfg := DefaultRuleApplicationConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// PromptSourcesFor binds the configured prompt slots to actual text,
// producing sources ready for MergePromptSources. Origins missing from
// texts become empty sources, which the merge skips or rejects per
// their Required flag.
func (c RuleApplicationConfig) PromptSourcesFor(texts map[Origin]string) []Source {
	sources := make([]Source, 0, len(c.PromptSources))
	for _, ref := range c.PromptSources {
		sources = append(sources, Source{
			Origin:   ref.Origin,
			Priority: ref.Priority,
			Required: ref.Required,
			Text:     texts[ref.Origin],
		})
	}
	return sources
}

// RuleSourcesFor binds the configured rule slots to raw rule payloads.
func (c RuleApplicationConfig) RuleSourcesFor(payloads map[Origin]any) []Source {
	sources := make([]Source, 0, len(c.RuleSources))
	for _, ref := range c.RuleSources {
		sources = append(sources, Source{
			Origin:   ref.Origin,
			Priority: ref.Priority,
			Required: ref.Required,
			Rules:    payloads[ref.Origin],
		})
	}
	return sources
}
