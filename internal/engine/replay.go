package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/opinionated/internal/ir"
)

// ReplayTags reconstructs an entity's output tags from its ledger actions,
// without consulting any rule table.
//
// UpdateDeprecatedTag actions delete the trigger key and set the pairs parsed
// from the detail. AddLabel actions merge the enricher's label rows over the
// tags as rebuilt so far, with the same filters the pipeline applied, and
// fail unless the merged languages are the ones the detail records. Actions
// are applied in Seq order. With no actions, tags itself is returned.
func ReplayTags(tags *ir.TagSet, actions []ir.Action, enricher *Enricher) (*ir.TagSet, error) {
	if len(actions) == 0 {
		return tags, nil
	}

	ordered := slices.Clone(actions)
	slices.SortStableFunc(ordered, func(a, b ir.Action) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})

	out := tags.Clone()
	for _, a := range ordered {
		switch a.Kind {
		case ir.ActionUpdateDeprecatedTag:
			kind, ok := ir.ParseRuleKind(a.RuleKind)
			if !ok {
				return nil, fmt.Errorf("replay action %d: unknown rule kind %q", a.Seq, a.RuleKind)
			}
			written, err := ir.ParseDetail(a.Detail, ir.DetailPairs(kind))
			if err != nil {
				return nil, fmt.Errorf("replay action %d: %w", a.Seq, err)
			}
			out.Delete(a.TriggerKey)
			for _, t := range written {
				out.Set(t.Key, t.Value)
			}

		case ir.ActionAddLabel:
			if enricher == nil {
				return nil, fmt.Errorf("replay action %d: no label table", a.Seq)
			}
			rows := enricher.labels.Lookup(ir.PrimaryReference(a.TriggerValue))
			merged, langs := enricher.merge(out, rows)
			if want := ir.ParseLangs(a.Detail); !slices.Equal(langs, want) {
				return nil, fmt.Errorf("replay action %d: labels for %s add %q, ledger has %q",
					a.Seq, a.TriggerValue, strings.Join(langs, ","), a.Detail)
			}
			out = merged

		default:
			return nil, fmt.Errorf("replay action %d: unknown action kind %q", a.Seq, a.Kind)
		}
	}
	return out, nil
}

// GroupByEntity splits a ledger into per-entity action lists keyed by
// EntityKey, preserving order.
func GroupByEntity(actions []ir.Action) map[EntityKey][]ir.Action {
	out := make(map[EntityKey][]ir.Action)
	for _, a := range actions {
		k := EntityKey{Type: a.EntityType, ID: a.EntityID}
		out[k] = append(out[k], a)
	}
	return out
}

// EntityKey identifies an entity within a stream.
type EntityKey struct {
	Type ir.EntityType
	ID   int64
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%s/%d", k.Type, k.ID)
}
