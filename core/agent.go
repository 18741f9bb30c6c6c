package core

import "encoding/json"

// AgentConfig is the per-agent configuration supplied by the persistence
// collaborator. The composer consumes it read-only.
//
// BehaviorRules is kept raw because stored configs are not uniform: the
// payload may be a JSON string, a JSON array of strings, or an object
// {"rules": [...]}. Normalization happens once, in the compose package.
type AgentConfig struct {
	AgentID        string          `json:"agent_id"`
	Model          string          `json:"model,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int64           `json:"max_tokens,omitempty"`
	SystemPrompt   string          `json:"system_prompt,omitempty"`
	BehaviorRules  json.RawMessage `json:"behavior_rules,omitempty"`
	Language       string          `json:"language,omitempty"`
	Age            int             `json:"age,omitempty"`
	Gender         string          `json:"gender,omitempty"`
	Personality    string          `json:"personality,omitempty"`
	Sentiment      string          `json:"sentiment,omitempty"`
	Interests      []string        `json:"interests,omitempty"`
	ResponseLength string          `json:"response_length,omitempty"`
}
