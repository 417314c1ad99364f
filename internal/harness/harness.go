package harness

import (
	"context"
	"fmt"
	"io"

	"github.com/roach88/opinionated/internal/compiler"
	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/ir"
	"github.com/roach88/opinionated/internal/store"
	"github.com/roach88/opinionated/internal/testutil"
)

// Outcome is the pipeline's directive for one input entity.
type Outcome struct {
	Type      ir.EntityType
	ID        int64
	Directive engine.Directive
	Input     *ir.TagSet
	Tags      *ir.TagSet // Output tags; Input when Unchanged
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool

	// RunID is the id the run was persisted under.
	RunID string

	// Outcomes holds one entry per input entity, in input order.
	Outcomes []Outcome

	// Ledger is the run's ledger as read back from the store.
	Ledger []ir.Action

	// Stats are the pipeline's run statistics.
	Stats engine.Stats

	// Enricher merges labels the way the run did. Replay assertions use it.
	Enricher *engine.Enricher

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. The
// returned error reports problems with the scenario itself (bad rules, a
// pipeline abort); failed expectations are reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	rules, err := loadScenarioRules(scenario)
	if err != nil {
		return nil, err
	}
	table, err := engine.NewRuleTable(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule table: %w", err)
	}

	rows := make([]ir.LabelRow, 0, len(scenario.Labels))
	for _, l := range scenario.Labels {
		rows = append(rows, l.Row())
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if _, err := st.ImportLabels(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to import labels: %w", err)
	}
	stored, err := st.LoadLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	labels := engine.NewLabelTable(stored)

	opts := scenario.Options
	if opts.ReferenceKey == "" {
		opts.ReferenceKey = "wikidata"
	}
	if opts.NameKey == "" {
		opts.NameKey = "name"
	}

	p := engine.NewPipeline(engine.RunContext{
		Rules:        table,
		Labels:       labels,
		ReferenceKey: opts.ReferenceKey,
		NameKey:      opts.NameKey,
	})

	src, err := newScenarioSource(scenario.Entities)
	if err != nil {
		return nil, err
	}
	sink := &outcomeSink{}

	if err := p.Run(ctx, src, sink, engine.RunOptions{Workers: opts.Workers, Buffer: opts.Buffer}); err != nil {
		return nil, fmt.Errorf("failed to run pipeline: %w", err)
	}

	runID := testutil.NewFixedRunIDGenerator(scenario.RunID).Generate()
	stats := p.Stats()
	run := store.Run{
		ID:            runID,
		Input:         scenario.Name,
		RuleSetHash:   table.Hash(),
		RuleCount:     table.Len(),
		LabelCount:    labels.Len(),
		Workers:       opts.Workers,
		EngineVersion: "test",
		LedgerVersion: ir.LedgerVersion,
		StatsValue:    stats,
	}
	if err := st.WriteRun(ctx, run, p.Ledger().Actions()); err != nil {
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}
	ledger, err := st.ReadActions(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	result := &Result{
		Pass:     true,
		RunID:    runID,
		Outcomes: sink.outcomes,
		Ledger:   ledger,
		Stats:    stats,
		Enricher: engine.NewEnricher(labels, opts.ReferenceKey, opts.NameKey),
		Errors:   []string{},
	}

	for _, msg := range checkExpectations(result, scenario.Expect) {
		result.AddError(msg)
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// loadScenarioRules normalizes the rule file followed by the inline rules.
func loadScenarioRules(s *Scenario) ([]ir.Rule, error) {
	var rules []ir.Rule
	if s.RuleFile != "" {
		res, errs := compiler.LoadRules(s.RuleFile, compiler.LoadModeFailFast)
		if len(errs) > 0 {
			return nil, fmt.Errorf("failed to load rule file: %w", errs[0])
		}
		rules = append(rules, res.Rules...)
	}

	recs := make([]ir.RuleRecord, 0, len(s.Rules))
	for _, r := range s.Rules {
		recs = append(recs, r.Record())
	}
	inline, err := compiler.NormalizeAll(recs)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize rules: %w", err)
	}
	rules = append(rules, inline...)

	if s.Options.PrioritizeSpecific == nil || *s.Options.PrioritizeSpecific {
		rules = compiler.PrioritizeSpecific(rules)
	}
	return rules, nil
}

// scenarioSource feeds scenario entities to the pipeline.
type scenarioSource struct {
	records []engine.Record
	next    int
}

func newScenarioSource(specs []EntitySpec) (*scenarioSource, error) {
	records := make([]engine.Record, 0, len(specs))
	for i, e := range specs {
		typ, err := ir.ParseEntityType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("entities[%d]: %w", i, err)
		}
		records = append(records, engine.Record{
			Entity: ir.Entity{Type: typ, ID: e.ID, Tags: e.Tags.TagSet()},
		})
	}
	return &scenarioSource{records: records}, nil
}

func (s *scenarioSource) Next() (engine.Record, error) {
	if s.next >= len(s.records) {
		return engine.Record{}, io.EOF
	}
	rec := s.records[s.next]
	s.next++
	return rec, nil
}

// outcomeSink collects one outcome per emitted record.
type outcomeSink struct {
	outcomes []Outcome
}

func (s *outcomeSink) Emit(rec engine.Record, res engine.Result) error {
	out := rec.Entity.Tags
	if res.Directive == engine.Replace {
		out = res.Tags
	}
	s.outcomes = append(s.outcomes, Outcome{
		Type:      rec.Entity.Type,
		ID:        rec.Entity.ID,
		Directive: res.Directive,
		Input:     rec.Entity.Tags,
		Tags:      out,
	})
	return nil
}

// checkExpectations compares outcomes against the scenario's expect clauses.
func checkExpectations(result *Result, expect []ExpectSpec) []string {
	var errs []string
	for i, e := range expect {
		typ, _ := ir.ParseEntityType(e.Type)
		var got *Outcome
		for j := range result.Outcomes {
			if result.Outcomes[j].Type == typ && result.Outcomes[j].ID == e.ID {
				got = &result.Outcomes[j]
				break
			}
		}
		if got == nil {
			errs = append(errs, fmt.Sprintf("expect[%d]: %s/%d not in input", i, e.Type, e.ID))
			continue
		}

		switch e.Directive {
		case DirectiveUnchanged:
			if got.Directive != engine.Unchanged {
				errs = append(errs, fmt.Sprintf("expect[%d]: %s/%d: expected unchanged, got %s %s",
					i, e.Type, e.ID, got.Directive, formatTags(got.Tags)))
			}
		case DirectiveReplace:
			if got.Directive != engine.Replace {
				errs = append(errs, fmt.Sprintf("expect[%d]: %s/%d: expected replace, got %s", i, e.Type, e.ID, got.Directive))
				continue
			}
			if want := e.Tags.TagSet(); !want.Equal(got.Tags) {
				errs = append(errs, fmt.Sprintf("expect[%d]: %s/%d: expected tags %s, got %s",
					i, e.Type, e.ID, formatTags(want), formatTags(got.Tags)))
			}
		}
	}
	return errs
}

func formatTags(ts *ir.TagSet) string {
	return "[" + ir.FormatTags(ts.Tags()...) + "]"
}
