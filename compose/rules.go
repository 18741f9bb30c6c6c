package compose

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Rule rendering formats.
const (
	RulesFormatNumbered = "numbered"
	RulesFormatPlain    = "plain"
)

// RulesTransformOptions controls behavior-rule rendering.
type RulesTransformOptions struct {
	// Format is "numbered" or "plain". Empty means numbered.
	Format string `yaml:"format"`

	// Separator joins plain-format rules. Empty means newline.
	Separator string `yaml:"separator"`
}

// NormalizeRules converts a rule payload of any accepted shape into a
// canonical []string:
//
//   - []string or []any of strings, used as-is
//   - map with a "rules" key holding one of the above
//   - a JSON string encoding one of the above
//   - a plain string, treated as newline-separated rule lines
//   - json.RawMessage / []byte of any of the above
//
// Anything else returns an InvalidRuleFormatError. Normalizing an
// already-normalized value is a no-op, so the operation is idempotent.
func NormalizeRules(payload any) ([]string, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil

	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil

	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &InvalidRuleFormatError{Value: item}
			}
			out = append(out, s)
		}
		return out, nil

	case map[string]any:
		rules, ok := v["rules"]
		if !ok {
			return nil, &InvalidRuleFormatError{Value: v}
		}
		return NormalizeRules(rules)

	case map[string][]string:
		rules, ok := v["rules"]
		if !ok {
			return nil, &InvalidRuleFormatError{Value: v}
		}
		return NormalizeRules(rules)

	case json.RawMessage:
		return normalizeJSON([]byte(v))

	case []byte:
		return normalizeJSON(v)

	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		// A string payload may itself be JSON from storage.
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			return normalizeJSON([]byte(trimmed))
		}
		return strings.Split(v, "\n"), nil

	default:
		return nil, &InvalidRuleFormatError{Value: payload}
	}
}

func normalizeJSON(data []byte) ([]string, error) {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, &InvalidRuleFormatError{Value: string(data)}
	}
	// A decoded string is a plain rule payload, not JSON again;
	// recursing on it would loop on inputs like `"[x"`.
	if s, ok := decoded.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return strings.Split(s, "\n"), nil
	}
	return NormalizeRules(decoded)
}

// MergeRuleSources merges behavior-rule sources in ascending priority
// order into rendered text. Per-source rule order is preserved; blank
// rules are dropped; numbering runs across the merged list.
//
// A source with an invalid payload is skipped, the remaining sources
// are still merged, and the accumulated error is returned alongside the
// rendered text of the valid sources.
func MergeRuleSources(sources []Source, opts RulesTransformOptions) (string, error) {
	rules, err := CollectRules(sources)
	return RenderRules(rules, opts), err
}

// CollectRules normalizes every source payload and concatenates the
// results in ascending priority order, preserving per-source rule
// order. Invalid sources are skipped; their errors are joined and
// returned after all sources have been attempted.
func CollectRules(sources []Source) ([]string, error) {
	ordered := make([]Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	var merged []string
	var errs []error
	for _, s := range ordered {
		rules, err := NormalizeRules(s.Rules)
		if err != nil {
			var invalid *InvalidRuleFormatError
			if errors.As(err, &invalid) && invalid.Origin == "" {
				invalid.Origin = s.Origin
			}
			errs = append(errs, err)
			continue
		}
		merged = append(merged, rules...)
	}

	return merged, errors.Join(errs...)
}

// RenderRules renders a normalized rule list per the transform options.
func RenderRules(rules []string, opts RulesTransformOptions) string {
	var kept []string
	for _, r := range rules {
		if r = strings.TrimSpace(r); r != "" {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	if opts.Format == RulesFormatPlain {
		sep := opts.Separator
		if sep == "" {
			sep = "\n"
		}
		return strings.Join(kept, sep)
	}

	lines := make([]string, len(kept))
	for i, r := range kept {
		lines[i] = fmt.Sprintf("%d. %s", i+1, r)
	}
	return strings.Join(lines, "\n")
}
