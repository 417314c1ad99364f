package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/opinionated/internal/compiler"
	"github.com/roach88/opinionated/internal/ir"
)

// RuleTable holds the rules of one run, indexed by old key.
//
// The table is immutable after construction and safe for concurrent reads.
// Candidates for a key are kept in registration order; the table never
// re-sorts them (see compiler.PrioritizeSpecific for the loader-side
// ordering that puts fixed-value rules first).
type RuleTable struct {
	rules    []ir.Rule
	byKey    map[string][]ir.Rule
	shadowed []ShadowedRule
	hash     string
}

// ShadowedRule is a registered rule that can never match because an earlier
// rule for the same key accepts every value it would.
type ShadowedRule struct {
	Rule ir.Rule `json:"rule"`
	By   ir.Rule `json:"by"`
}

// NewRuleTable validates rules and indexes them by old key.
// The first malformed rule is returned as a *compiler.MalformedRuleError.
func NewRuleTable(rules []ir.Rule) (*RuleTable, error) {
	t := &RuleTable{
		rules: make([]ir.Rule, len(rules)),
		byKey: make(map[string][]ir.Rule),
	}
	copy(t.rules, rules)

	for _, r := range t.rules {
		if err := compiler.CheckRule(r); err != nil {
			return nil, err
		}
		if by, ok := shadowedBy(t.byKey[r.OldKey], r); ok {
			t.shadowed = append(t.shadowed, ShadowedRule{Rule: r, By: by})
			slog.Warn("rule shadowed",
				"old_key", r.OldKey,
				"old_value", r.OldValue.String(),
				"rule", r.SourceID,
				"by", by.SourceID,
			)
		}
		t.byKey[r.OldKey] = append(t.byKey[r.OldKey], r)
	}

	hash, err := ir.RuleSetHash(t.rules)
	if err != nil {
		return nil, fmt.Errorf("hash rule set: %w", err)
	}
	t.hash = hash
	return t, nil
}

func shadowedBy(earlier []ir.Rule, r ir.Rule) (ir.Rule, bool) {
	for _, e := range earlier {
		if e.OldValue.Carry || (!r.OldValue.Carry && e.OldValue.Value == r.OldValue.Value) {
			return e, true
		}
	}
	return ir.Rule{}, false
}

// Candidates returns the rules for key in registration order. The returned
// slice is shared; callers must not modify it.
func (t *RuleTable) Candidates(key string) []ir.Rule {
	return t.byKey[key]
}

// Has reports whether any rule targets key.
func (t *RuleTable) Has(key string) bool {
	_, ok := t.byKey[key]
	return ok
}

// Len returns the number of registered rules.
func (t *RuleTable) Len() int {
	return len(t.rules)
}

// Keys returns the number of distinct old keys.
func (t *RuleTable) Keys() int {
	return len(t.byKey)
}

// Rules returns a copy of the rules in registration order.
func (t *RuleTable) Rules() []ir.Rule {
	out := make([]ir.Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Shadowed lists rules that can never match.
func (t *RuleTable) Shadowed() []ShadowedRule {
	return t.shadowed
}

// Hash identifies the ordered rule set. Recorded with each run.
func (t *RuleTable) Hash() string {
	return t.hash
}
