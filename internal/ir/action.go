package ir

import (
	"fmt"
	"strings"
)

// ActionKind classifies ledger entries.
type ActionKind string

const (
	// ActionUpdateDeprecatedTag records one applied migration rule.
	ActionUpdateDeprecatedTag ActionKind = "update_deprecated_tag"
	// ActionAddLabel records labels merged from the label table.
	ActionAddLabel ActionKind = "add_wikidata_label"
)

// DetailSeparator joins multiple key=value pairs in an action detail.
const DetailSeparator = " + "

// Action is one audit record. Actions are append-only; Seq orders them within
// a run.
//
// Detail is the human-readable result of the mutation:
//   - UpdateDeprecatedTag: "k=v" or "k1=v1 + k2=v2" (see FormatTags)
//   - AddLabel: comma-separated language codes in label table order
type Action struct {
	Seq          int64      `json:"seq"`
	EntityType   EntityType `json:"entity_type"`
	EntityID     int64      `json:"entity_id"`
	TriggerKey   string     `json:"trigger_key"`
	TriggerValue string     `json:"trigger_value"`
	Kind         ActionKind `json:"action_kind"`
	Detail       string     `json:"detail"`

	// RuleKind and RuleSource identify the rule behind an UpdateDeprecatedTag
	// action. Both are empty for AddLabel.
	RuleKind   string `json:"rule_kind,omitempty"`
	RuleSource string `json:"rule_source,omitempty"`
}

// FormatTags renders tags as an UpdateDeprecatedTag detail.
func FormatTags(tags ...Tag) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.Key + "=" + t.Value
	}
	return strings.Join(parts, DetailSeparator)
}

// ParseDetail reconstructs the tags written by an UpdateDeprecatedTag action.
//
// pairs is the number of key=value pairs the detail holds (1 or 2, see
// DetailPairs). The last value is taken verbatim so carried values containing
// the separator survive.
func ParseDetail(detail string, pairs int) ([]Tag, error) {
	if pairs < 1 || pairs > 2 {
		return nil, fmt.Errorf("parse detail %q: unsupported pair count %d", detail, pairs)
	}
	segments := []string{detail}
	if pairs == 2 {
		first, rest, ok := strings.Cut(detail, DetailSeparator)
		if !ok {
			return nil, fmt.Errorf("parse detail %q: missing %q separator", detail, DetailSeparator)
		}
		segments = []string{first, rest}
	}
	tags := make([]Tag, 0, len(segments))
	for _, seg := range segments {
		key, value, ok := strings.Cut(seg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parse detail %q: malformed pair %q", detail, seg)
		}
		tags = append(tags, Tag{Key: key, Value: value})
	}
	return tags, nil
}

// DetailPairs returns how many key=value pairs a rule of the given kind
// writes to its action detail.
func DetailPairs(kind RuleKind) int {
	switch kind {
	case KindKeyValueToFixedFixedFixed, KindKeyToFixedPlusCarry:
		return 2
	default:
		return 1
	}
}

// ParseLangs splits an AddLabel detail into language codes.
func ParseLangs(detail string) []string {
	if detail == "" {
		return nil
	}
	return strings.Split(detail, ",")
}
