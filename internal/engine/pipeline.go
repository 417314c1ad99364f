package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/opinionated/internal/ir"
)

// Directive tells the sink what to do with an entity.
type Directive int

const (
	// Unchanged passes the original encoding through untouched.
	Unchanged Directive = iota
	// Replace re-encodes the entity with Result.Tags.
	Replace
	// Drop removes the entity. The pipeline never returns it; the value
	// exists so sinks can handle the full directive set.
	Drop
)

func (d Directive) String() string {
	switch d {
	case Unchanged:
		return "unchanged"
	case Replace:
		return "replace"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("Directive(%d)", int(d))
	}
}

// Result is the outcome of transforming one entity.
type Result struct {
	Directive Directive
	Tags      *ir.TagSet  // New tags when Directive is Replace
	Actions   []ir.Action // Actions in the order they were applied
	missing   bool
}

// RunContext owns everything a pipeline reads or writes during a run.
// Rules and Labels are read-only for the pass; Ledger grows monotonically.
type RunContext struct {
	Rules        *RuleTable
	Labels       *LabelTable
	Ledger       *Ledger
	ReferenceKey string // Tag holding the external reference, e.g. "wikidata"
	NameKey      string // Primary display name tag, e.g. "name"
}

// Pipeline transforms entities and accumulates run statistics and the
// action ledger.
//
// Thread-safety: Transform may be called from several goroutines; Run
// drives a pass over a Source and preserves input order for the sink.
type Pipeline struct {
	rewriter *Rewriter
	enricher *Enricher
	ledger   *Ledger
	clock    *Clock
	observer Observer

	mu    sync.Mutex
	stats Stats
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithObserver reports committed entities and actions to o.
func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithClock sets the clock used to stamp actions. Replaying a run into an
// existing ledger resumes from its last sequence number.
func WithClock(c *Clock) PipelineOption {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// NewPipeline creates a pipeline over rc. A nil Ledger is replaced by a
// fresh one; a nil Labels table disables enrichment.
func NewPipeline(rc RunContext, opts ...PipelineOption) *Pipeline {
	if rc.Ledger == nil {
		rc.Ledger = NewLedger()
	}
	p := &Pipeline{
		rewriter: NewRewriter(rc.Rules),
		enricher: NewEnricher(rc.Labels, rc.ReferenceKey, rc.NameKey),
		ledger:   rc.Ledger,
		clock:    NewClock(),
		stats:    newStats(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Transform computes the directive for one entity and records its actions.
//
// An entity whose tags are not changed by either stage is Unchanged and
// appends nothing to the ledger. The returned error is a PipelineError and
// is fatal for the run.
func (p *Pipeline) Transform(e ir.Entity) (Result, error) {
	res, err := p.compute(e)
	if err != nil {
		return Result{}, err
	}
	p.commit(e, &res)
	return res, nil
}

// compute is the pure part of Transform: it reads only e and the read-only
// tables, so it runs concurrently on the worker pool.
func (p *Pipeline) compute(e ir.Entity) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PipelineError{
				Code:       ErrCodePipelineAbort,
				Message:    fmt.Sprintf("transform panicked: %v", r),
				EntityType: e.Type,
				EntityID:   e.ID,
			}
		}
	}()

	if !p.touches(e.Tags.KeySet()) {
		res.Directive = Unchanged
		return res, nil
	}

	working, actions := p.rewriter.Rewrite(e.Type, e.ID, e.Tags)

	enriched, labelActions, outcome := p.enricher.enrich(e.Type, e.ID, working)
	actions = append(actions, labelActions...)
	res.missing = outcome == outcomeMissingReference

	if enriched == e.Tags {
		res.Directive = Unchanged
		return res, nil
	}
	res.Directive = Replace
	res.Tags = enriched
	res.Actions = actions
	return res, nil
}

// touches reports whether any stage can change an entity with these keys:
// a key some rule targets, or the reference key.
func (p *Pipeline) touches(keys map[string]struct{}) bool {
	if _, ok := keys[p.enricher.referenceKey]; ok {
		return true
	}
	for k := range keys {
		if p.rewriter.table.Has(k) {
			return true
		}
	}
	return false
}

// commit stamps actions, appends them to the ledger and updates stats.
// Called in input order.
func (p *Pipeline) commit(e ir.Entity, res *Result) {
	for i := range res.Actions {
		res.Actions[i].Seq = p.clock.Next()
	}
	if len(res.Actions) > 0 {
		p.ledger.Append(res.Actions...)
	}

	mutated := res.Directive != Unchanged
	p.mu.Lock()
	ts := p.stats.Types[e.Type.String()]
	ts.Processed++
	if mutated {
		ts.Mutated++
	}
	p.stats.Types[e.Type.String()] = ts
	for _, a := range res.Actions {
		p.stats.Actions[string(a.Kind)]++
	}
	if res.missing {
		p.stats.MissingReferences++
	}
	p.mu.Unlock()

	if p.observer != nil {
		p.observer.EntityProcessed(e.Type, mutated)
		for _, a := range res.Actions {
			p.observer.ActionRecorded(e.Type, a.Kind)
		}
		if res.missing {
			p.observer.ReferenceMissing(e.Type)
		}
	}

	if mutated {
		slog.Debug("entity transformed",
			"type", e.Type.String(),
			"id", e.ID,
			"actions", len(res.Actions),
		)
	}
}

// Stats returns a snapshot of the run statistics.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.clone()
}

// Ledger returns the run's ledger.
func (p *Pipeline) Ledger() *Ledger {
	return p.ledger
}
