package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/opinionated/internal/ir"
)

// Snapshot renders a result as canonical JSON lines: a header naming the
// scenario and run, one line per ledger action, then one line per output
// entity. Every line is newline terminated.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	var buf bytes.Buffer

	write := func(v map[string]any) error {
		line, err := ir.MarshalCanonical(v)
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
		return nil
	}

	if err := write(map[string]any{
		"scenario": scenarioName,
		"run_id":   result.RunID,
		"actions":  len(result.Ledger),
	}); err != nil {
		return nil, err
	}

	for _, a := range result.Ledger {
		line := map[string]any{
			"seq":           a.Seq,
			"entity":        a.EntityType.String(),
			"id":            a.EntityID,
			"action":        string(a.Kind),
			"trigger_key":   a.TriggerKey,
			"trigger_value": a.TriggerValue,
			"detail":        a.Detail,
		}
		if a.RuleKind != "" {
			line["rule_kind"] = a.RuleKind
			line["rule_source"] = a.RuleSource
		}
		if err := write(line); err != nil {
			return nil, err
		}
	}

	for _, o := range result.Outcomes {
		pairs := make([]any, 0, o.Tags.Len())
		for _, t := range o.Tags.Tags() {
			pairs = append(pairs, []any{t.Key, t.Value})
		}
		if err := write(map[string]any{
			"entity":    o.Type.String(),
			"id":        o.ID,
			"directive": o.Directive.String(),
			"tags":      pairs,
		}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
