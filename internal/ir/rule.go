package ir

import (
	"fmt"
	"strings"
)

// CarryToken is the placeholder used by rule sources for a carried value:
// "match any value" on the old side, "propagate the old value" on the new side.
const CarryToken = "__CARRY__"

// RuleKind names the rewrite recipe of a rule.
type RuleKind int

const (
	// KindKeyValueToFixedFixed replaces old_key=old_value with one fixed tag.
	KindKeyValueToFixedFixed RuleKind = iota + 1
	// KindKeyValueToFixedFixedFixed replaces old_key=old_value with two fixed tags.
	KindKeyValueToFixedFixedFixed
	// KindKeyValueToYes replaces old_key=old_value with new_key=yes.
	KindKeyValueToYes
	// KindKeyToFixedPlusCarry replaces old_key with a fixed tag and a tag carrying the old value.
	KindKeyToFixedPlusCarry
	// KindKeyToCarry renames old_key, keeping its value.
	KindKeyToCarry
)

var ruleKindNames = map[RuleKind]string{
	KindKeyValueToFixedFixed:      "KeyValueToFixedFixed",
	KindKeyValueToFixedFixedFixed: "KeyValueToFixedFixedFixed",
	KindKeyValueToYes:             "KeyValueToYes",
	KindKeyToFixedPlusCarry:       "KeyToFixedPlusCarry",
	KindKeyToCarry:                "KeyToCarry",
}

// String returns the canonical kind name.
func (k RuleKind) String() string {
	if name, ok := ruleKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("RuleKind(%d)", int(k))
}

// ParseRuleKind parses a canonical kind name.
func ParseRuleKind(s string) (RuleKind, bool) {
	for k, name := range ruleKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// ValueMatch is the old-value side of a rule: either a fixed value compared
// byte-exactly, or Carry which matches any value.
type ValueMatch struct {
	Value string `json:"value,omitempty"`
	Carry bool   `json:"carry,omitempty"`
}

// Carry returns a ValueMatch that accepts any value.
func Carry() ValueMatch { return ValueMatch{Carry: true} }

// Fixed returns a ValueMatch that accepts exactly v.
func Fixed(v string) ValueMatch { return ValueMatch{Value: v} }

// Matches reports whether value is accepted. Comparison is case-sensitive.
func (m ValueMatch) Matches(value string) bool {
	return m.Carry || m.Value == value
}

func (m ValueMatch) String() string {
	if m.Carry {
		return CarryToken
	}
	return m.Value
}

// Recipe is the rewrite half of a rule. The set of implementations is closed:
// FixedFixed, FixedFixedFixed, Yes, FixedPlusCarry and CarryTo.
type Recipe interface {
	Kind() RuleKind
	recipe()
}

// FixedFixed sets Key=Value.
type FixedFixed struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FixedFixedFixed sets Key1=Value1 and Key2=Value2.
type FixedFixedFixed struct {
	Key1   string `json:"key_1"`
	Value1 string `json:"value_1"`
	Key2   string `json:"key_2"`
	Value2 string `json:"value_2"`
}

// Yes sets Key=yes.
type Yes struct {
	Key string `json:"key"`
}

// FixedPlusCarry sets Key1=Value1 and Key2=<old value>.
type FixedPlusCarry struct {
	Key1   string `json:"key_1"`
	Value1 string `json:"value_1"`
	Key2   string `json:"key_2"`
}

// CarryTo sets Key=<old value>.
type CarryTo struct {
	Key string `json:"key"`
}

func (FixedFixed) Kind() RuleKind      { return KindKeyValueToFixedFixed }
func (FixedFixedFixed) Kind() RuleKind { return KindKeyValueToFixedFixedFixed }
func (Yes) Kind() RuleKind             { return KindKeyValueToYes }
func (FixedPlusCarry) Kind() RuleKind  { return KindKeyToFixedPlusCarry }
func (CarryTo) Kind() RuleKind         { return KindKeyToCarry }

func (FixedFixed) recipe()      {}
func (FixedFixedFixed) recipe() {}
func (Yes) recipe()             {}
func (FixedPlusCarry) recipe()  {}
func (CarryTo) recipe()         {}

// Rule is one normalized migration instruction. Rules are produced by the
// compiler package and are immutable once registered in a rule table.
type Rule struct {
	OldKey   string     `json:"old_key"`
	OldValue ValueMatch `json:"old_value"`
	Recipe   Recipe     `json:"-"`
	SourceID string     `json:"source_id"`
	Date     string     `json:"date,omitempty"`
}

// Kind returns the recipe kind.
func (r Rule) Kind() RuleKind {
	if r.Recipe == nil {
		return 0
	}
	return r.Recipe.Kind()
}

func (r Rule) String() string {
	return fmt.Sprintf("%s %s=%s (%s)", r.Kind(), r.OldKey, r.OldValue, r.SourceID)
}

// RuleRecord is the flat, un-normalized form of a rule as supplied by a rule
// source. Empty strings mean "absent"; CarryToken marks carried values.
// Kind holds either a canonical RuleKind name or a legacy type name.
type RuleRecord struct {
	Date      string `json:"date,omitempty"`
	OldKey    string `json:"old_key"`
	OldValue  string `json:"old_value,omitempty"`
	NewKey1   string `json:"new_key_1,omitempty"`
	NewValue1 string `json:"new_value_1,omitempty"`
	NewKey2   string `json:"new_key_2,omitempty"`
	NewValue2 string `json:"new_value_2,omitempty"`
	SourceID  string `json:"source_id"`
	Kind      string `json:"kind"`
}

// Record flattens a normalized rule back into its record form.
func (r Rule) Record() RuleRecord {
	rec := RuleRecord{
		Date:     r.Date,
		OldKey:   r.OldKey,
		OldValue: r.OldValue.String(),
		SourceID: r.SourceID,
		Kind:     r.Kind().String(),
	}
	switch rc := r.Recipe.(type) {
	case FixedFixed:
		rec.NewKey1, rec.NewValue1 = rc.Key, rc.Value
	case FixedFixedFixed:
		rec.NewKey1, rec.NewValue1 = rc.Key1, rc.Value1
		rec.NewKey2, rec.NewValue2 = rc.Key2, rc.Value2
	case Yes:
		rec.NewKey1, rec.NewValue1 = rc.Key, "yes"
	case FixedPlusCarry:
		rec.NewKey1, rec.NewValue1 = rc.Key1, rc.Value1
		rec.NewKey2, rec.NewValue2 = rc.Key2, CarryToken
	case CarryTo:
		rec.NewKey1, rec.NewValue1 = rc.Key, CarryToken
	}
	return rec
}

// IsCarry reports whether a raw record value is the carry placeholder.
func IsCarry(s string) bool {
	return strings.TrimSpace(s) == CarryToken
}
