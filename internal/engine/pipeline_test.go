package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opinionated/internal/ir"
)

func TestTransform_UnchangedAppendsNothing(t *testing.T) {
	p := newTestPipeline(t, testLabels())

	e := ir.Entity{Type: ir.Node, ID: 1, Tags: ir.TagsOf("highway", "primary", "name", "X")}
	res, err := p.Transform(e)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, res.Directive)
	assert.Nil(t, res.Tags)
	assert.Empty(t, res.Actions)
	assert.Zero(t, p.Ledger().Len())

	stats := p.Stats()
	assert.Equal(t, TypeStats{Processed: 1}, stats.Types["node"])
}

func TestPipeline_Touches(t *testing.T) {
	p := newTestPipeline(t, testLabels())

	assert.False(t, p.touches(ir.TagsOf("building", "yes", "name", "X").KeySet()))
	assert.False(t, p.touches(ir.NewTagSet().KeySet()))
	assert.True(t, p.touches(ir.TagsOf("building", "yes", "created_by", "JOSM").KeySet()))
	assert.True(t, p.touches(ir.TagsOf("wikidata", "Q1").KeySet()))

	res, err := p.Transform(ir.Entity{Type: ir.Way, ID: 3, Tags: ir.TagsOf("building", "yes")})
	require.NoError(t, err)
	assert.Equal(t, Unchanged, res.Directive)
	assert.Equal(t, TypeStats{Processed: 1}, p.Stats().Types["way"])
	assert.Zero(t, p.Stats().MissingReferences)
}

func TestTransform_FordFixedRewrite(t *testing.T) {
	p := newTestPipeline(t, nil)

	res, err := p.Transform(ir.Entity{Type: ir.Node, ID: 1, Tags: ir.TagsOf("highway", "ford")})
	require.NoError(t, err)
	assert.Equal(t, Replace, res.Directive)
	assert.True(t, ir.TagsOf("ford", "yes").Equal(res.Tags))

	actions := p.Ledger().Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, ir.ActionUpdateDeprecatedTag, actions[0].Kind)
	assert.Equal(t, "ford=yes", actions[0].Detail)
	assert.Equal(t, int64(1), actions[0].Seq)
}

func TestTransform_CarryKeepsOtherTags(t *testing.T) {
	p := newTestPipeline(t, nil)

	res, err := p.Transform(ir.Entity{Type: ir.Way, ID: 2, Tags: ir.TagsOf("created_by", "JOSM", "name", "X")})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"source": "JOSM", "name": "X"}, res.Tags.Map())
}

func TestTransform_LabelsEqualToNameSkipped(t *testing.T) {
	p := NewPipeline(RunContext{
		Rules: mustTable(t, testRules()...),
		Labels: NewLabelTable([]ir.LabelRow{
			{ReferenceID: "Q42", Lang: "en", Key: "name:en", Label: "Douglas Adams"},
			{ReferenceID: "Q42", Lang: "fr", Key: "name:fr", Label: "Douglas Adams"},
		}),
		ReferenceKey: "wikidata",
		NameKey:      "name",
	})

	res, err := p.Transform(ir.Entity{Type: ir.Node, ID: 42, Tags: ir.TagsOf("wikidata", "Q42", "name", "Douglas Adams")})
	require.NoError(t, err)
	assert.Equal(t, Unchanged, res.Directive)
	assert.Zero(t, p.Ledger().Len())
}

func TestTransform_DifferingLabelAdded(t *testing.T) {
	p := NewPipeline(RunContext{
		Rules: mustTable(t, testRules()...),
		Labels: NewLabelTable([]ir.LabelRow{
			{ReferenceID: "Q42", Lang: "de", Key: "name:de", Label: "Douglas Noel Adams"},
		}),
		ReferenceKey: "wikidata",
		NameKey:      "name",
	})

	res, err := p.Transform(ir.Entity{Type: ir.Node, ID: 42, Tags: ir.TagsOf("wikidata", "Q42", "name", "Douglas Adams")})
	require.NoError(t, err)
	assert.Equal(t, Replace, res.Directive)
	v, _ := res.Tags.Get("name:de")
	assert.Equal(t, "Douglas Noel Adams", v)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, ir.ActionAddLabel, res.Actions[0].Kind)
	assert.Equal(t, "de", res.Actions[0].Detail)
}

func TestTransform_RewriteThenEnrich(t *testing.T) {
	p := newTestPipeline(t, testLabels())

	res, err := p.Transform(ir.Entity{Type: ir.Node, ID: 5, Tags: ir.TagsOf("highway", "ford", "wikidata", "Q64")})
	require.NoError(t, err)
	require.Len(t, res.Actions, 2)
	assert.Equal(t, ir.ActionUpdateDeprecatedTag, res.Actions[0].Kind)
	assert.Equal(t, ir.ActionAddLabel, res.Actions[1].Kind)
	assert.Equal(t, int64(1), res.Actions[0].Seq)
	assert.Equal(t, int64(2), res.Actions[1].Seq)
	assert.Equal(t, []string{"wikidata", "ford", "name:de", "name:ru"}, res.Tags.Keys())
}

func TestTransform_Idempotent(t *testing.T) {
	p := newTestPipeline(t, testLabels())

	inputs := []*ir.TagSet{
		ir.TagsOf("highway", "ford"),
		ir.TagsOf("amenity", "register_office", "name", "Office"),
		ir.TagsOf("shop", "organic"),
		ir.TagsOf("created_by", "JOSM", "wikidata", "Q42"),
	}
	for i, tags := range inputs {
		first, err := p.Transform(ir.Entity{Type: ir.Node, ID: int64(i), Tags: tags})
		require.NoError(t, err)
		require.Equal(t, Replace, first.Directive)

		second, err := p.Transform(ir.Entity{Type: ir.Node, ID: int64(i), Tags: first.Tags})
		require.NoError(t, err)
		assert.Equal(t, Unchanged, second.Directive, "input %d", i)
	}
}

func TestTransform_FixedFixedFixedProperty(t *testing.T) {
	p := newTestPipeline(t, nil)

	res, err := p.Transform(ir.Entity{Type: ir.Way, ID: 1, Tags: ir.TagsOf("amenity", "register_office", "office", "x")})
	require.NoError(t, err)
	assert.False(t, res.Tags.Has("amenity"))
	v1, _ := res.Tags.Get("office")
	v2, _ := res.Tags.Get("government")
	assert.Equal(t, "government", v1)
	assert.Equal(t, "register_office", v2)
}

func TestTransform_Stats(t *testing.T) {
	p := newTestPipeline(t, testLabels())

	entities := []ir.Entity{
		{Type: ir.Node, ID: 1, Tags: ir.TagsOf("highway", "ford")},
		{Type: ir.Node, ID: 2, Tags: ir.TagsOf("name", "X")},
		{Type: ir.Way, ID: 3, Tags: ir.TagsOf("wikidata", "Q999")},
		{Type: ir.Relation, ID: 4, Tags: ir.TagsOf("wikidata", "Q64", "created_by", "x")},
	}
	for _, e := range entities {
		_, err := p.Transform(e)
		require.NoError(t, err)
	}

	stats := p.Stats()
	assert.Equal(t, TypeStats{Processed: 2, Mutated: 1}, stats.Types["node"])
	assert.Equal(t, TypeStats{Processed: 1, Mutated: 0}, stats.Types["way"])
	assert.Equal(t, TypeStats{Processed: 1, Mutated: 1}, stats.Types["relation"])
	assert.Equal(t, int64(2), stats.Actions[string(ir.ActionUpdateDeprecatedTag)])
	assert.Equal(t, int64(1), stats.Actions[string(ir.ActionAddLabel)])
	assert.Equal(t, int64(1), stats.MissingReferences)
	assert.Equal(t, int64(4), stats.Processed())
	assert.Equal(t, int64(2), stats.Mutated())

	stats.Types["node"] = TypeStats{}
	assert.Equal(t, int64(2), p.Stats().Types["node"].Processed, "snapshot is a copy")
}

type recordingObserver struct {
	mu       sync.Mutex
	entities []bool
	actions  []ir.ActionKind
	missing  int
}

func (o *recordingObserver) EntityProcessed(_ ir.EntityType, mutated bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entities = append(o.entities, mutated)
}

func (o *recordingObserver) ActionRecorded(_ ir.EntityType, kind ir.ActionKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions = append(o.actions, kind)
}

func (o *recordingObserver) ReferenceMissing(ir.EntityType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.missing++
}

func TestTransform_Observer(t *testing.T) {
	obs := &recordingObserver{}
	p := NewPipeline(RunContext{
		Rules:        mustTable(t, testRules()...),
		Labels:       testLabels(),
		ReferenceKey: "wikidata",
		NameKey:      "name",
	}, WithObserver(obs))

	for _, tags := range []*ir.TagSet{
		ir.TagsOf("highway", "ford", "wikidata", "Q64"),
		ir.TagsOf("wikidata", "Q1"),
	} {
		_, err := p.Transform(ir.Entity{Type: ir.Node, ID: 1, Tags: tags})
		require.NoError(t, err)
	}

	assert.Equal(t, []bool{true, false}, obs.entities)
	assert.Equal(t, []ir.ActionKind{ir.ActionUpdateDeprecatedTag, ir.ActionAddLabel}, obs.actions)
	assert.Equal(t, 1, obs.missing)
}

func TestTransform_WithClockResumes(t *testing.T) {
	p := NewPipeline(RunContext{Rules: mustTable(t, testRules()...)}, WithClock(NewClockAt(41)))

	res, err := p.Transform(ir.Entity{Type: ir.Node, ID: 1, Tags: ir.TagsOf("highway", "ford")})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Actions[0].Seq)
}

func TestTransform_FaultIsPipelineAbort(t *testing.T) {
	p := NewPipeline(RunContext{})

	_, err := p.Transform(ir.Entity{Type: ir.Way, ID: 9, Tags: ir.TagsOf("a", "b")})
	require.Error(t, err)
	assert.True(t, IsPipelineAbort(err))

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ir.Way, pe.EntityType)
	assert.Equal(t, int64(9), pe.EntityID)
	assert.Contains(t, err.Error(), "way/9")
}

func TestDirective_String(t *testing.T) {
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "replace", Replace.String())
	assert.Equal(t, "drop", Drop.String())
}
