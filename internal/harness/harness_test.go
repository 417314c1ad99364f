package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/ir"
)

func TestScenarios(t *testing.T) {
	for _, name := range []string{"ford", "labels", "priority", "legacy"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestScenarios_Golden(t *testing.T) {
	for _, name := range []string{"ford", "labels"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/priority.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/ford.yaml")
	require.NoError(t, err)

	seq, err := Run(s)
	require.NoError(t, err)

	s.Options.Workers = 3
	s.Options.Buffer = 1
	par, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, seq.Ledger, par.Ledger)
	a, _ := Snapshot(s.Name, seq)
	b, _ := Snapshot(s.Name, par)
	assert.Equal(t, string(a), string(b))
}

func TestRun_PersistsRun(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: persisted
description: run id and ledger come back from the store
run_id: run-42
rules:
  - {id: "1", kind: KeyValueToYes, old_key: disused, old_value: "yes", new_key_1: "disused:amenity"}
entities:
  - {type: node, id: 9, tags: {disused: "yes"}}
assertions:
  - {type: action_count, count: 1}
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "run-42", result.RunID)
	require.Len(t, result.Ledger, 1)
	assert.Equal(t, ir.Action{
		Seq:          1,
		EntityType:   ir.Node,
		EntityID:     9,
		TriggerKey:   "disused",
		TriggerValue: "yes",
		Kind:         ir.ActionUpdateDeprecatedTag,
		Detail:       "disused:amenity=yes",
		RuleKind:     "KeyValueToYes",
		RuleSource:   "1",
	}, result.Ledger[0])
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong
description: every expectation here is wrong
rules:
  - {id: "101", kind: KeyValueToFixedFixed, old_key: highway, old_value: ford, new_key_1: ford, new_value_1: "yes"}
entities:
  - {type: node, id: 1, tags: {highway: ford}}
  - {type: node, id: 2, tags: {highway: primary}}
expect:
  - {type: node, id: 1, directive: replace, tags: {ford: "no"}}
  - {type: node, id: 2, directive: replace}
  - {type: node, id: 3, directive: unchanged}
assertions:
  - {type: action_count, count: 2}
  - {type: stats, mutated: 2}
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "expected tags [ford=no], got [ford=yes]")
	assert.Contains(t, result.Errors[1], "expected replace, got unchanged")
	assert.Contains(t, result.Errors[2], "node/3 not in input")
	assert.Contains(t, result.Errors[3], "Assertion failed: action_count")
	assert.Contains(t, result.Errors[4], "mutated 1, want 2")
}

func TestRun_MalformedRule(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: malformed
description: a carry rule without a target key
rules:
  - {id: "1", kind: KeyToCarry, old_key: a}
entities:
  - {type: node, id: 1, tags: {a: x}}
assertions:
  - {type: replay}
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to normalize rules")
}

func TestRun_PrioritizeSpecificDisabled(t *testing.T) {
	off := false
	s := &Scenario{
		Name:        "registration-order",
		Description: "with prioritization off the carry rule registered first wins",
		Rules: []RuleSpec{
			{ID: "1", Kind: "KeyToCarry", OldKey: "building:type", NewKey1: "building"},
			{ID: "2", Kind: "KeyValueToFixedFixed", OldKey: "building:type", OldValue: "bunker", NewKey1: "military", NewValue1: "bunker"},
		},
		Options:  Options{PrioritizeSpecific: &off},
		Entities: []EntitySpec{{Type: "node", ID: 1, Tags: TagList{{Key: "building:type", Value: "bunker"}}}},
		Expect:   []ExpectSpec{{Type: "node", ID: 1, Directive: DirectiveReplace, Tags: TagList{{Key: "building", Value: "bunker"}}}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, engine.Replace, result.Outcomes[0].Directive)
	assert.Equal(t, "1", result.Ledger[0].RuleSource)
}
