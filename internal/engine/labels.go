package engine

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/opinionated/internal/ir"
)

// LabelTable holds candidate labels indexed by reference id.
// Immutable after construction and safe for concurrent reads.
type LabelTable struct {
	byRef map[string][]ir.LabelRow
	rows  int
}

// NewLabelTable indexes rows by reference id, keeping their order.
func NewLabelTable(rows []ir.LabelRow) *LabelTable {
	t := &LabelTable{byRef: make(map[string][]ir.LabelRow)}
	for _, r := range rows {
		t.byRef[r.ReferenceID] = append(t.byRef[r.ReferenceID], r)
	}
	t.rows = len(rows)
	return t
}

// Lookup returns the rows for ref in table order. The returned slice is
// shared; callers must not modify it.
func (t *LabelTable) Lookup(ref string) []ir.LabelRow {
	if t == nil {
		return nil
	}
	return t.byRef[ref]
}

// Len returns the number of rows.
func (t *LabelTable) Len() int {
	if t == nil {
		return 0
	}
	return t.rows
}

// References returns the number of distinct reference ids.
func (t *LabelTable) References() int {
	if t == nil {
		return 0
	}
	return len(t.byRef)
}

// Enricher merges labels from a LabelTable into tag sets.
// Safe for concurrent use.
type Enricher struct {
	labels       *LabelTable
	referenceKey string
	nameKey      string
}

// NewEnricher creates an enricher that looks up the value of referenceKey
// and compares candidate labels against the value of nameKey.
func NewEnricher(labels *LabelTable, referenceKey, nameKey string) *Enricher {
	return &Enricher{labels: labels, referenceKey: referenceKey, nameKey: nameKey}
}

// enrichOutcome tells the pipeline what happened to the reference lookup.
type enrichOutcome int

const (
	outcomeNoReference enrichOutcome = iota
	outcomeMissingReference
	outcomeFiltered
	outcomeAdded
)

// Enrich merges the labels for the entity's reference into tags.
//
// Rows whose key is already present are skipped, as are rows whose label
// equals the existing name case-insensitively. Surviving rows are added in
// table order and recorded as a single AddLabel action listing their
// language codes. When nothing survives, tags itself is returned.
func (e *Enricher) Enrich(typ ir.EntityType, id int64, tags *ir.TagSet) (*ir.TagSet, []ir.Action) {
	out, actions, _ := e.enrich(typ, id, tags)
	return out, actions
}

func (e *Enricher) enrich(typ ir.EntityType, id int64, tags *ir.TagSet) (*ir.TagSet, []ir.Action, enrichOutcome) {
	raw, ok := tags.Get(e.referenceKey)
	if !ok {
		return tags, nil, outcomeNoReference
	}
	ref := ir.PrimaryReference(raw)
	rows := e.labels.Lookup(ref)
	if len(rows) == 0 {
		return tags, nil, outcomeMissingReference
	}

	out, langs := e.merge(tags, rows)
	if out == tags {
		return tags, nil, outcomeFiltered
	}

	return out, []ir.Action{{
		EntityType:   typ,
		EntityID:     id,
		TriggerKey:   e.referenceKey,
		TriggerValue: raw,
		Kind:         ir.ActionAddLabel,
		Detail:       strings.Join(langs, ","),
	}}, outcomeAdded
}

// merge adds the rows that pass the key and name filters to a clone of tags
// and returns it with the languages added, in row order. When no row passes,
// tags itself is returned.
func (e *Enricher) merge(tags *ir.TagSet, rows []ir.LabelRow) (*ir.TagSet, []string) {
	fold := cases.Fold()
	name, hasName := tags.Get(e.nameKey)
	if hasName {
		name = fold.String(name)
	}

	out := tags
	var langs []string
	for _, row := range rows {
		if out.Has(row.Key) {
			continue
		}
		if hasName && fold.String(row.Label) == name {
			continue
		}
		if out == tags {
			out = tags.Clone()
		}
		out.Set(row.Key, row.Label)
		langs = append(langs, row.Lang)
	}
	return out, langs
}
