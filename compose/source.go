// Package compose merges configured prompt and behavior-rule sources
// into the instruction text sent to the model.
//
// Merging is deterministic: sources are ordered by ascending priority,
// empty optional sources are skipped, empty required sources are an
// error. Rule payloads stored in varying shapes (JSON string, array,
// {"rules": [...]}) are normalized once, here, so nothing downstream
// branches on shape again.
package compose

import (
	"fmt"

	"github.com/hollowbrook/mnemo/core"
)

// Origin identifies where a prompt or rule source is configured.
type Origin string

const (
	OriginMain         Origin = "main"
	OriginAgentType    Origin = "agent_type"
	OriginArchetype    Origin = "archetype"
	OriginClientConfig Origin = "client_config"
	OriginClientUser   Origin = "client_user"
)

// Source is one configured origin of instruction text.
//
// Prompt sources carry Text; rule sources carry Rules, a raw payload in
// any of the accepted shapes (string, []string, map with a "rules"
// key, or raw JSON bytes of those).
type Source struct {
	Origin   Origin
	Priority int
	Role     core.Role
	Required bool
	Text     string
	Rules    any
}

// MissingRequiredSourceError reports a required source with no text.
// It is fatal: the turn must not proceed with an incomplete persona.
type MissingRequiredSourceError struct {
	Origin Origin
}

func (e *MissingRequiredSourceError) Error() string {
	return fmt.Sprintf("required prompt source %q has no text", e.Origin)
}

// InvalidRuleFormatError reports a rule payload in none of the accepted
// shapes. It is fatal for that source; remaining sources are still
// merged before the error surfaces.
type InvalidRuleFormatError struct {
	Origin Origin
	Value  any
}

func (e *InvalidRuleFormatError) Error() string {
	if e.Origin != "" {
		return fmt.Sprintf("rule source %q: unsupported rule payload %T", e.Origin, e.Value)
	}
	return fmt.Sprintf("unsupported rule payload %T", e.Value)
}
