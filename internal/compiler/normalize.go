package compiler

import (
	"strings"

	"github.com/roach88/opinionated/internal/ir"
)

// Legacy rule type names produced by the wiki extraction.
const (
	LegacyDkeyDvalueFixed      = "dkey_dvalue_fixed"
	LegacyDkeyDvalueFixedFixed = "dkey_dvalue_fixed_fixed"
	LegacyDkeyDvalueYes        = "dkey_dvalue_yes"
	LegacyDkeyDvalueSquareYes  = "dkey_dvalue_square_yes"
	LegacyDkeyFixedCarry       = "dkey_fixed_carry"
	LegacyDkeyCarry            = "dkey_carry"
)

// resolveKind maps a record's kind (canonical or legacy) to a RuleKind.
//
// Legacy extraction emits the two-tag variants even when the optional second
// suggestion was absent; those rows collapse to the single-tag form.
func resolveKind(rec ir.RuleRecord) (ir.RuleKind, bool) {
	kind := strings.TrimSpace(rec.Kind)
	if k, ok := ir.ParseRuleKind(kind); ok {
		return k, true
	}
	hasKey2 := strings.TrimSpace(rec.NewKey2) != ""
	switch strings.ToLower(kind) {
	case LegacyDkeyDvalueFixed:
		return ir.KindKeyValueToFixedFixed, true
	case LegacyDkeyDvalueFixedFixed:
		if !hasKey2 {
			return ir.KindKeyValueToFixedFixed, true
		}
		return ir.KindKeyValueToFixedFixedFixed, true
	case LegacyDkeyDvalueYes, LegacyDkeyDvalueSquareYes:
		return ir.KindKeyValueToYes, true
	case LegacyDkeyFixedCarry:
		if !hasKey2 {
			// Nowhere to carry the value to: the key is replaced whatever its value.
			return ir.KindKeyValueToFixedFixed, true
		}
		return ir.KindKeyToFixedPlusCarry, true
	case LegacyDkeyCarry:
		return ir.KindKeyToCarry, true
	}
	return 0, false
}

// Normalize validates a flat rule record and converts it into a Rule whose
// recipe carries only the fields its kind uses.
//
// An empty or carry old value matches any value. Kinds that carry the old
// value forward (KeyToFixedPlusCarry, KeyToCarry) require it.
func Normalize(rec ir.RuleRecord) (ir.Rule, error) {
	id := strings.TrimSpace(rec.SourceID)

	oldKey := strings.TrimSpace(rec.OldKey)
	if oldKey == "" {
		return ir.Rule{}, malformed(ErrMissingOldKey, "old_key", id, "old_key is required")
	}
	if err := checkKey("old_key", oldKey, id); err != nil {
		return ir.Rule{}, err
	}

	kind, ok := resolveKind(rec)
	if !ok {
		return ir.Rule{}, malformed(ErrUnknownKind, "kind", id, "unknown rule kind %q", rec.Kind)
	}

	oldValue := ir.Carry()
	if v := rec.OldValue; v != "" && !ir.IsCarry(v) {
		oldValue = ir.Fixed(v)
	}

	f := fields{id: id, rec: rec}
	var recipe ir.Recipe
	switch kind {
	case ir.KindKeyValueToFixedFixed:
		key, value := f.key("new_key_1", rec.NewKey1), f.fixed("new_value_1", rec.NewValue1)
		f.absent("new_key_2", rec.NewKey2)
		f.absentOrCarry("new_value_2", rec.NewValue2)
		recipe = ir.FixedFixed{Key: key, Value: value}

	case ir.KindKeyValueToFixedFixedFixed:
		recipe = ir.FixedFixedFixed{
			Key1:   f.key("new_key_1", rec.NewKey1),
			Value1: f.fixed("new_value_1", rec.NewValue1),
			Key2:   f.key("new_key_2", rec.NewKey2),
			Value2: f.fixed("new_value_2", rec.NewValue2),
		}

	case ir.KindKeyValueToYes:
		key := f.key("new_key_1", rec.NewKey1)
		if v := strings.TrimSpace(rec.NewValue1); v != "" && v != "yes" {
			f.fail(ErrInvalidNewValue, "new_value_1", "KeyValueToYes writes \"yes\", got %q", v)
		}
		f.absent("new_key_2", rec.NewKey2)
		f.absent("new_value_2", rec.NewValue2)
		recipe = ir.Yes{Key: key}

	case ir.KindKeyToFixedPlusCarry:
		f.carriedOld(oldValue)
		recipe = ir.FixedPlusCarry{
			Key1:   f.key("new_key_1", rec.NewKey1),
			Value1: f.fixed("new_value_1", rec.NewValue1),
			Key2:   f.key("new_key_2", rec.NewKey2),
		}
		f.absentOrCarry("new_value_2", rec.NewValue2)

	case ir.KindKeyToCarry:
		f.carriedOld(oldValue)
		key := f.key("new_key_1", rec.NewKey1)
		f.absentOrCarry("new_value_1", rec.NewValue1)
		f.absent("new_key_2", rec.NewKey2)
		f.absent("new_value_2", rec.NewValue2)
		recipe = ir.CarryTo{Key: key}
	}

	if f.err != nil {
		return ir.Rule{}, f.err
	}

	return ir.Rule{
		OldKey:   oldKey,
		OldValue: oldValue,
		Recipe:   recipe,
		SourceID: id,
		Date:     strings.TrimSpace(rec.Date),
	}, nil
}

// NormalizeAll normalizes records in order and stops at the first malformed
// one.
func NormalizeAll(recs []ir.RuleRecord) ([]ir.Rule, error) {
	rules := make([]ir.Rule, 0, len(recs))
	for _, rec := range recs {
		r, err := Normalize(rec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// PrioritizeSpecific reorders rules so that, for each old key, rules with a
// fixed old value come before carry rules. Relative order is otherwise kept,
// and each key keeps the positions it had.
func PrioritizeSpecific(rules []ir.Rule) []ir.Rule {
	positions := make(map[string][]int)
	var keys []string
	for i, r := range rules {
		if _, seen := positions[r.OldKey]; !seen {
			keys = append(keys, r.OldKey)
		}
		positions[r.OldKey] = append(positions[r.OldKey], i)
	}

	out := make([]ir.Rule, len(rules))
	for _, key := range keys {
		idx := positions[key]
		group := make([]ir.Rule, 0, len(idx))
		for _, i := range idx {
			if !rules[i].OldValue.Carry {
				group = append(group, rules[i])
			}
		}
		for _, i := range idx {
			if rules[i].OldValue.Carry {
				group = append(group, rules[i])
			}
		}
		for j, i := range idx {
			out[i] = group[j]
		}
	}
	return out
}

// fields accumulates the first validation failure while a record is decoded.
type fields struct {
	id  string
	rec ir.RuleRecord
	err *MalformedRuleError
}

func (f *fields) fail(code, field, format string, args ...any) {
	if f.err == nil {
		f.err = malformed(code, field, f.id, format, args...)
	}
}

func (f *fields) key(field, raw string) string {
	key := strings.TrimSpace(raw)
	if key == "" || ir.IsCarry(key) {
		f.fail(ErrMissingNewKey, field, "%s is required for kind %s", field, f.rec.Kind)
		return ""
	}
	if err := checkKey(field, key, f.id); err != nil && f.err == nil {
		f.err = err
	}
	return key
}

func (f *fields) fixed(field, raw string) string {
	if raw == "" {
		f.fail(ErrInvalidNewValue, field, "%s is required for kind %s", field, f.rec.Kind)
		return ""
	}
	if ir.IsCarry(raw) {
		f.fail(ErrInvalidNewValue, field, "%s must be a fixed value for kind %s", field, f.rec.Kind)
		return ""
	}
	if strings.Contains(raw, ir.DetailSeparator) {
		f.fail(ErrInvalidCharacters, field, "fixed value %q contains %q", raw, ir.DetailSeparator)
	}
	return raw
}

func (f *fields) absent(field, raw string) {
	if strings.TrimSpace(raw) != "" {
		f.fail(ErrUnexpectedField, field, "%s is not used by kind %s", field, f.rec.Kind)
	}
}

func (f *fields) absentOrCarry(field, raw string) {
	if raw != "" && !ir.IsCarry(raw) {
		f.fail(ErrUnexpectedField, field, "%s must be empty or %s for kind %s", field, ir.CarryToken, f.rec.Kind)
	}
}

func (f *fields) carriedOld(v ir.ValueMatch) {
	if !v.Carry {
		f.fail(ErrInvalidOldValue, "old_value", "kind %s carries the old value and cannot match the fixed value %q", f.rec.Kind, v.Value)
	}
}

func checkKey(field, key, id string) *MalformedRuleError {
	if strings.Contains(key, "=") {
		return malformed(ErrInvalidCharacters, field, id, "key %q contains '='", key)
	}
	if strings.Contains(key, ir.DetailSeparator) {
		return malformed(ErrInvalidCharacters, field, id, "key %q contains %q", key, ir.DetailSeparator)
	}
	return nil
}
