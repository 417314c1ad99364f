package compiler

import (
	"strings"

	"github.com/roach88/opinionated/internal/ir"
)

// CheckRule validates an already normalized rule. Rules built by Normalize
// always pass; rules assembled by hand are checked before they are
// registered in a rule table.
func CheckRule(r ir.Rule) error {
	id := r.SourceID
	if strings.TrimSpace(r.OldKey) == "" {
		return malformed(ErrMissingOldKey, "old_key", id, "old_key is required")
	}
	if err := checkKey("old_key", r.OldKey, id); err != nil {
		return err
	}
	if r.Recipe == nil {
		return malformed(ErrUnknownKind, "kind", id, "rule has no recipe")
	}

	f := fields{id: id, rec: ir.RuleRecord{Kind: r.Kind().String()}}
	switch rc := r.Recipe.(type) {
	case ir.FixedFixed:
		f.key("new_key_1", rc.Key)
		f.fixed("new_value_1", rc.Value)
	case ir.FixedFixedFixed:
		f.key("new_key_1", rc.Key1)
		f.fixed("new_value_1", rc.Value1)
		f.key("new_key_2", rc.Key2)
		f.fixed("new_value_2", rc.Value2)
	case ir.Yes:
		f.key("new_key_1", rc.Key)
	case ir.FixedPlusCarry:
		f.carriedOld(r.OldValue)
		f.key("new_key_1", rc.Key1)
		f.fixed("new_value_1", rc.Value1)
		f.key("new_key_2", rc.Key2)
	case ir.CarryTo:
		f.carriedOld(r.OldValue)
		f.key("new_key_1", rc.Key)
	}
	if !r.OldValue.Carry && r.OldValue.Value == "" {
		f.fail(ErrInvalidOldValue, "old_value", "fixed old value is empty")
	}
	if f.err != nil {
		return f.err
	}
	return nil
}
