package engine

import "github.com/roach88/opinionated/internal/ir"

// Rewriter applies migration rules to tag sets. Safe for concurrent use.
type Rewriter struct {
	table *RuleTable
}

// NewRewriter creates a rewriter over table.
func NewRewriter(table *RuleTable) *Rewriter {
	return &Rewriter{table: table}
}

// Rewrite applies the matching rule for every deprecated key in tags and
// returns the resulting tag set with one UpdateDeprecatedTag action per
// applied rule.
//
// Keys are visited once, in their original order. A key's value is read from
// the working set, so a tag overwritten by an earlier rule is migrated with
// its new value. New tags overwrite existing keys (last writer wins).
//
// When no rule applies, tags itself is returned and actions is nil. The input
// is never modified.
func (rw *Rewriter) Rewrite(typ ir.EntityType, id int64, tags *ir.TagSet) (*ir.TagSet, []ir.Action) {
	out := tags
	var actions []ir.Action

	for _, key := range tags.Keys() {
		if !rw.table.Has(key) {
			continue
		}
		value, ok := out.Get(key)
		if !ok {
			continue
		}
		rule, ok := Match(key, value, rw.table)
		if !ok {
			continue
		}

		if out == tags {
			out = tags.Clone()
		}
		out.Delete(key)
		written := apply(rule.Recipe, value)
		for _, t := range written {
			out.Set(t.Key, t.Value)
		}

		actions = append(actions, ir.Action{
			EntityType:   typ,
			EntityID:     id,
			TriggerKey:   key,
			TriggerValue: value,
			Kind:         ir.ActionUpdateDeprecatedTag,
			Detail:       ir.FormatTags(written...),
			RuleKind:     rule.Kind().String(),
			RuleSource:   rule.SourceID,
		})
	}

	return out, actions
}

// apply returns the tags a recipe writes for an old tag carrying value.
func apply(recipe ir.Recipe, value string) []ir.Tag {
	switch rc := recipe.(type) {
	case ir.FixedFixed:
		return []ir.Tag{{Key: rc.Key, Value: rc.Value}}
	case ir.FixedFixedFixed:
		return []ir.Tag{{Key: rc.Key1, Value: rc.Value1}, {Key: rc.Key2, Value: rc.Value2}}
	case ir.Yes:
		return []ir.Tag{{Key: rc.Key, Value: "yes"}}
	case ir.FixedPlusCarry:
		return []ir.Tag{{Key: rc.Key1, Value: rc.Value1}, {Key: rc.Key2, Value: value}}
	case ir.CarryTo:
		return []ir.Tag{{Key: rc.Key, Value: value}}
	default:
		panic("engine: unknown recipe " + recipe.Kind().String())
	}
}
