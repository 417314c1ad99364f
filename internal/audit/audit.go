// Package audit exports a run's action ledger as a flat delimited table
// for external review.
package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/opinionated/internal/ir"
)

// DefaultPermalinkBase is the entity browser the url column points at.
const DefaultPermalinkBase = "https://www.openstreetmap.org"

// Columns is the header of an exported ledger.
var Columns = []string{"type", "id", "key", "value", "action", "details", "url"}

// ProvenanceColumns are appended when Options.Provenance is set.
var ProvenanceColumns = []string{"rule_kind", "rule_source"}

// Options control an export.
type Options struct {
	// PermalinkBase is joined with type and id to build the url column.
	// Empty means DefaultPermalinkBase.
	PermalinkBase string

	// Provenance appends the rule kind and source id of each migration.
	Provenance bool
}

// Permalink returns the browse url of an entity.
func Permalink(base string, typ ir.EntityType, id int64) string {
	if base == "" {
		base = DefaultPermalinkBase
	}
	return strings.TrimSuffix(base, "/") + "/" + typ.String() + "/" + strconv.FormatInt(id, 10)
}

// ExportCSV writes one row per action in ledger order.
func ExportCSV(w io.Writer, actions []ir.Action, opts Options) error {
	cw := csv.NewWriter(w)

	header := Columns
	if opts.Provenance {
		header = append(append([]string{}, Columns...), ProvenanceColumns...)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write audit header: %w", err)
	}

	row := make([]string, 0, len(header))
	for _, a := range actions {
		row = append(row[:0],
			a.EntityType.String(),
			strconv.FormatInt(a.EntityID, 10),
			a.TriggerKey,
			a.TriggerValue,
			string(a.Kind),
			a.Detail,
			Permalink(opts.PermalinkBase, a.EntityType, a.EntityID),
		)
		if opts.Provenance {
			row = append(row, a.RuleKind, a.RuleSource)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write audit row %d: %w", a.Seq, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Count is one line of a ledger summary.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Summary aggregates a ledger the way a reviewer reads it: which deprecated
// keys were migrated most and how many entities each action kind touched.
type Summary struct {
	Actions  int     `json:"actions"`
	Entities int     `json:"entities"`
	ByKind   []Count `json:"by_kind"`
	ByKey    []Count `json:"by_key"`
}

// Summarize counts actions by kind and migrations by trigger key. Both
// lists are sorted by descending count, then key.
func Summarize(actions []ir.Action) Summary {
	kinds := map[string]int{}
	keys := map[string]int{}
	type entity struct {
		typ ir.EntityType
		id  int64
	}
	entities := map[entity]struct{}{}

	for _, a := range actions {
		kinds[string(a.Kind)]++
		if a.Kind == ir.ActionUpdateDeprecatedTag {
			keys[a.TriggerKey]++
		}
		entities[entity{a.EntityType, a.EntityID}] = struct{}{}
	}

	return Summary{
		Actions:  len(actions),
		Entities: len(entities),
		ByKind:   sortedCounts(kinds),
		ByKey:    sortedCounts(keys),
	}
}

func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, n := range m {
		out = append(out, Count{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
