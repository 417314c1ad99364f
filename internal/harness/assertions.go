package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the ledger to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Ledger   []ir.Action // Full ledger for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Ledger) > 0 {
		fmt.Fprintf(&buf, "\nLedger:\n")
		for _, a := range e.Ledger {
			fmt.Fprintf(&buf, "  [%d] %s/%d %s %s=%s -> %s\n",
				a.Seq, a.EntityType, a.EntityID, a.Kind, a.TriggerKey, a.TriggerValue, a.Detail)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertActionCount:
		return assertActionCount(result.Ledger, a)
	case AssertActionContains:
		return assertActionContains(result.Ledger, a)
	case AssertActionOrder:
		return assertActionOrder(result.Ledger, a)
	case AssertStats:
		return assertStats(result.Stats, a)
	case AssertReplay:
		return assertReplay(result)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// matchAction reports whether a matches every field set in the assertion.
func matchAction(act ir.Action, a Assertion) bool {
	if a.Entity != "" && (engine.EntityKey{Type: act.EntityType, ID: act.EntityID}).String() != a.Entity {
		return false
	}
	if a.Kind != "" && string(act.Kind) != a.Kind {
		return false
	}
	if a.TriggerKey != "" && act.TriggerKey != a.TriggerKey {
		return false
	}
	if a.TriggerValue != "" && act.TriggerValue != a.TriggerValue {
		return false
	}
	if a.Detail != "" && act.Detail != a.Detail {
		return false
	}
	return true
}

func describe(a Assertion) string {
	var parts []string
	for _, f := range [][2]string{
		{"entity", a.Entity},
		{"kind", a.Kind},
		{"trigger_key", a.TriggerKey},
		{"trigger_value", a.TriggerValue},
		{"detail", a.Detail},
	} {
		if f[1] != "" {
			parts = append(parts, f[0]+"="+f[1])
		}
	}
	if len(parts) == 0 {
		return "any action"
	}
	return strings.Join(parts, " ")
}

// assertActionCount checks that exactly Count actions match.
func assertActionCount(ledger []ir.Action, a Assertion) error {
	n := 0
	for _, act := range ledger {
		if matchAction(act, a) {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertActionCount,
			Expected: fmt.Sprintf("%d x %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d", n),
			Ledger:   ledger,
		}
	}
	return nil
}

// assertActionContains checks that at least one action matches.
func assertActionContains(ledger []ir.Action, a Assertion) error {
	for _, act := range ledger {
		if matchAction(act, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertActionContains,
		Expected: describe(a),
		Actual:   "not found in ledger",
		Ledger:   ledger,
	}
}

// assertActionOrder checks that the details appear in ledger order.
// Details don't need to be consecutive (intervening actions are allowed).
func assertActionOrder(ledger []ir.Action, a Assertion) error {
	next := 0
	for _, act := range ledger {
		if next < len(a.Details) && act.Detail == a.Details[next] {
			next++
		}
	}
	if next < len(a.Details) {
		return &AssertionError{
			Type:     AssertActionOrder,
			Expected: fmt.Sprintf("details in order %v", a.Details),
			Actual:   fmt.Sprintf("matched %d of %d, missing %q", next, len(a.Details), a.Details[next]),
			Ledger:   ledger,
		}
	}
	return nil
}

// assertStats checks per-type or run-wide counters.
func assertStats(stats engine.Stats, a Assertion) error {
	processed, mutated := stats.Processed(), stats.Mutated()
	scope := "run"
	if a.EntityType != "" {
		ts := stats.Types[a.EntityType]
		processed, mutated = ts.Processed, ts.Mutated
		scope = a.EntityType
	}

	var mismatches []string
	if a.Processed != nil && *a.Processed != processed {
		mismatches = append(mismatches, fmt.Sprintf("processed %d, want %d", processed, *a.Processed))
	}
	if a.Mutated != nil && *a.Mutated != mutated {
		mismatches = append(mismatches, fmt.Sprintf("mutated %d, want %d", mutated, *a.Mutated))
	}
	if a.MissingReferences != nil && *a.MissingReferences != stats.MissingReferences {
		mismatches = append(mismatches, fmt.Sprintf("missing_references %d, want %d", stats.MissingReferences, *a.MissingReferences))
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertStats,
			Expected: scope + " counters",
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

// assertReplay checks that replaying each entity's ledger entries over its
// input tags reproduces the output tags.
func assertReplay(result *Result) error {
	groups := engine.GroupByEntity(result.Ledger)
	for _, o := range result.Outcomes {
		key := engine.EntityKey{Type: o.Type, ID: o.ID}
		replayed, err := engine.ReplayTags(o.Input, groups[key], result.Enricher)
		if err != nil {
			return &AssertionError{Type: AssertReplay, Expected: key.String() + " replays", Actual: err.Error()}
		}
		if !replayed.Equal(o.Tags) {
			return &AssertionError{
				Type:     AssertReplay,
				Expected: fmt.Sprintf("%s %s", key, formatTags(o.Tags)),
				Actual:   formatTags(replayed),
				Ledger:   groups[key],
			}
		}
	}
	return nil
}
