package compose

import (
	"fmt"
	"strings"

	"github.com/hollowbrook/mnemo/core"
)

// ageBand maps an age range to a canned speech-style instruction.
type ageBand struct {
	min, max int
	rule     string
}

// Bands are checked in order; max is inclusive.
var ageBands = []ageBand{
	{0, 12, "Speak in a simple, playful way a child would use, with short sentences and easy words."},
	{13, 17, "Speak casually like a teenager, with current slang used naturally but not excessively."},
	{18, 29, "Speak in a relaxed, contemporary way typical of someone in their twenties."},
	{30, 49, "Speak in a confident, grounded adult voice, balancing warmth and directness."},
	{50, 69, "Speak in a measured, experienced voice, occasionally drawing on life experience."},
	{70, 1 << 30, "Speak in a warm, unhurried elder voice, patient and reflective."},
}

var responseLengthRules = map[string]string{
	"short":  "Keep responses brief: one to three sentences.",
	"medium": "Keep responses moderate in length: a short paragraph.",
	"long":   "Respond thoroughly, with detailed multi-paragraph answers when the topic warrants it.",
}

// DerivedRules maps structured agent attributes to behavior-rule lines.
// Field order is fixed: language, response length, age, gender,
// personality, sentiment, interests. Absent fields contribute nothing.
func DerivedRules(cfg core.AgentConfig) []string {
	var rules []string

	if cfg.Language != "" {
		rules = append(rules, fmt.Sprintf("Always respond in %s.", cfg.Language))
	}

	if cfg.ResponseLength != "" {
		if rule, ok := responseLengthRules[strings.ToLower(cfg.ResponseLength)]; ok {
			rules = append(rules, rule)
		} else {
			rules = append(rules, fmt.Sprintf("Keep responses %s in length.", cfg.ResponseLength))
		}
	}

	if cfg.Age > 0 {
		for _, band := range ageBands {
			if cfg.Age >= band.min && cfg.Age <= band.max {
				rules = append(rules, band.rule)
				break
			}
		}
	}

	if cfg.Gender != "" {
		rules = append(rules, fmt.Sprintf("Your gender identity is %s.", cfg.Gender))
	}

	if cfg.Personality != "" {
		rules = append(rules, fmt.Sprintf("Your personality: %s.", cfg.Personality))
	}

	if cfg.Sentiment != "" {
		rules = append(rules, fmt.Sprintf("Maintain a %s emotional tone.", cfg.Sentiment))
	}

	if len(cfg.Interests) > 0 {
		rules = append(rules, "These are your interests: "+strings.Join(cfg.Interests, ", "))
	}

	return rules
}
