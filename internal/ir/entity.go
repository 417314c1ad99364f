package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntityType distinguishes nodes, ways and relations.
type EntityType int

const (
	Node EntityType = iota + 1
	Way
	Relation
)

// EntityTypes lists the types in container order.
var EntityTypes = []EntityType{Node, Way, Relation}

func (t EntityType) String() string {
	switch t {
	case Node:
		return "node"
	case Way:
		return "way"
	case Relation:
		return "relation"
	default:
		return fmt.Sprintf("EntityType(%d)", int(t))
	}
}

// ParseEntityType parses "node", "way" or "relation".
func ParseEntityType(s string) (EntityType, error) {
	switch s {
	case "node":
		return Node, nil
	case "way":
		return Way, nil
	case "relation":
		return Relation, nil
	default:
		return 0, fmt.Errorf("unknown entity type %q", s)
	}
}

// MarshalJSON encodes the type as its name.
func (t EntityType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes the type from its name.
func (t *EntityType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEntityType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Entity is one map record. Type and ID are opaque to the engine and used
// for logging and the ledger only.
type Entity struct {
	Type EntityType `json:"type"`
	ID   int64      `json:"id"`
	Tags *TagSet    `json:"tags"`
}

// LabelRow is one candidate localized name for an external reference.
// Key is the tag the label would populate, e.g. "name:de".
type LabelRow struct {
	ReferenceID string `json:"reference_id"`
	Lang        string `json:"lang"`
	Key         string `json:"key"`
	Label       string `json:"label"`
}

// PrimaryReference returns the first ';'-separated element of a reference
// tag value, trimmed. Multi-valued reference tags are resolved to their
// first entry.
func PrimaryReference(value string) string {
	first, _, _ := strings.Cut(value, ";")
	return strings.TrimSpace(first)
}
