package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opinionated/internal/ir"
)

func testRun(id string) Run {
	return Run{
		ID:            id,
		Input:         "in.jsonl",
		Output:        "out.jsonl",
		RuleSetHash:   "hash",
		RuleCount:     3,
		LabelCount:    2,
		Workers:       1,
		EngineVersion: "0.1.0",
		LedgerVersion: "1",
		StatsValue:    map[string]any{"types": map[string]any{"node": map[string]int{"processed": 2, "mutated": 1}}},
	}
}

func testActions() []ir.Action {
	return []ir.Action{
		{Seq: 1, EntityType: ir.Node, EntityID: 1, TriggerKey: "highway", TriggerValue: "ford", Kind: ir.ActionUpdateDeprecatedTag, Detail: "ford=yes", RuleKind: "KeyValueToFixedFixed", RuleSource: "101"},
		{Seq: 2, EntityType: ir.Way, EntityID: 7, TriggerKey: "created_by", TriggerValue: "JOSM", Kind: ir.ActionUpdateDeprecatedTag, Detail: "source=JOSM", RuleKind: "KeyToCarry", RuleSource: "102"},
		{Seq: 3, EntityType: ir.Way, EntityID: 7, TriggerKey: "wikidata", TriggerValue: "Q64", Kind: ir.ActionAddLabel, Detail: "de,ru"},
	}
}

func TestWriteRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRun(ctx, testRun("run-1"), testActions()))

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "in.jsonl", run.Input)
	assert.Equal(t, 3, run.ActionCount)
	assert.Equal(t, `{"types":{"node":{"mutated":1,"processed":2}}}`, run.Stats)

	var stats struct {
		Types map[string]struct{ Processed int } `json:"types"`
	}
	require.NoError(t, UnmarshalStats(run.Stats, &stats))
	assert.Equal(t, 2, stats.Types["node"].Processed)

	actions, err := s.ReadActions(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, testActions(), actions)
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRun(ctx, testRun("run-1"), testActions()))
	require.NoError(t, s.WriteRun(ctx, testRun("run-1"), testActions()))

	actions, err := s.ReadActions(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, actions, 3)
}

func TestWriteRun_AtomicOnFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	actions := testActions()
	actions = append(actions, ir.Action{Seq: 1, EntityType: ir.Node, EntityID: 99, TriggerKey: "x", Kind: ir.ActionUpdateDeprecatedTag, Detail: "y=z"})

	// The unique index would skip the duplicate silently; force a hard failure.
	_, err := s.db.Exec(`CREATE TRIGGER fail_dup BEFORE INSERT ON actions
		WHEN EXISTS (SELECT 1 FROM actions WHERE run_id = NEW.run_id AND seq = NEW.seq)
		BEGIN SELECT RAISE(ABORT, 'duplicate seq'); END`)
	require.NoError(t, err)

	err = s.WriteRun(ctx, testRun("run-2"), actions)
	require.Error(t, err)

	_, err = s.ReadRun(ctx, "run-2")
	assert.True(t, errors.Is(err, ErrRunNotFound), "run must not exist after a failed write")
	left, err := s.ReadActions(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns_OrderedByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"0193-b", "0193-a", "0193-c"} {
		require.NoError(t, s.WriteRun(ctx, testRun(id), nil))
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "0193-a", runs[0].ID)
	assert.Equal(t, 0, runs[0].ActionCount)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0193-c", latest.ID)
}

func TestReadEntityActions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, testRun("run-1"), testActions()))

	actions, err := s.ReadEntityActions(ctx, "run-1", ir.Way, 7)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, int64(2), actions[0].Seq)
	assert.Equal(t, ir.ActionAddLabel, actions[1].Kind)

	none, err := s.ReadEntityActions(ctx, "run-1", ir.Node, 7)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWriteRun_RawStats(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := testRun("run-raw")
	run.StatsValue = nil
	run.Stats = `{"x":1}`
	require.NoError(t, s.WriteRun(ctx, run, nil))

	got, err := s.ReadRun(ctx, "run-raw")
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, got.Stats)
}
