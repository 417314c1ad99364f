package engine

import (
	"sync"

	"github.com/roach88/opinionated/internal/ir"
)

// Ledger is the append-only action log of one run. Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	actions []ir.Action
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds actions in order.
func (l *Ledger) Append(actions ...ir.Action) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, actions...)
}

// Actions returns a copy of the ledger in append order.
func (l *Ledger) Actions() []ir.Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ir.Action, len(l.actions))
	copy(out, l.actions)
	return out
}

// Len returns the number of actions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actions)
}

// TypeStats counts entities of one type.
type TypeStats struct {
	Processed int64 `json:"processed"`
	Mutated   int64 `json:"mutated"`
}

// Stats summarizes a run.
type Stats struct {
	Types             map[string]TypeStats `json:"types"`
	Actions           map[string]int64     `json:"actions"`
	MissingReferences int64                `json:"missing_references"`
}

func newStats() Stats {
	s := Stats{
		Types:   make(map[string]TypeStats, len(ir.EntityTypes)),
		Actions: map[string]int64{string(ir.ActionUpdateDeprecatedTag): 0, string(ir.ActionAddLabel): 0},
	}
	for _, t := range ir.EntityTypes {
		s.Types[t.String()] = TypeStats{}
	}
	return s
}

func (s Stats) clone() Stats {
	c := Stats{
		Types:             make(map[string]TypeStats, len(s.Types)),
		Actions:           make(map[string]int64, len(s.Actions)),
		MissingReferences: s.MissingReferences,
	}
	for k, v := range s.Types {
		c.Types[k] = v
	}
	for k, v := range s.Actions {
		c.Actions[k] = v
	}
	return c
}

// Processed returns the total number of entities seen.
func (s Stats) Processed() int64 {
	var n int64
	for _, t := range s.Types {
		n += t.Processed
	}
	return n
}

// Mutated returns the total number of entities changed.
func (s Stats) Mutated() int64 {
	var n int64
	for _, t := range s.Types {
		n += t.Mutated
	}
	return n
}

// Observer receives per-entity events as they are committed, in input order.
// Used to feed metrics; implementations must be safe for concurrent use.
type Observer interface {
	EntityProcessed(t ir.EntityType, mutated bool)
	ActionRecorded(t ir.EntityType, kind ir.ActionKind)
	ReferenceMissing(t ir.EntityType)
}
