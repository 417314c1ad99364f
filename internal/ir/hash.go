package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRuleSet = "opinionated/ruleset/v1"
	DomainAction  = "opinionated/action/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RuleSetHash identifies an ordered rule set. Registration order is part of
// the identity because it decides which rule wins.
func RuleSetHash(rules []Rule) (string, error) {
	list := make([]any, len(rules))
	for i, r := range rules {
		rec := r.Record()
		list[i] = map[string]any{
			"old_key":     rec.OldKey,
			"old_value":   rec.OldValue,
			"new_key_1":   rec.NewKey1,
			"new_value_1": rec.NewValue1,
			"new_key_2":   rec.NewKey2,
			"new_value_2": rec.NewValue2,
			"kind":        rec.Kind,
			"source_id":   rec.SourceID,
		}
	}
	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleSet, canonical), nil
}

// ActionID computes the content-addressed ID of an action within a run.
// The ID is stable across replays of the same run.
func ActionID(runID string, a Action) (string, error) {
	obj := map[string]any{
		"run_id":        runID,
		"seq":           a.Seq,
		"entity_type":   a.EntityType.String(),
		"entity_id":     a.EntityID,
		"trigger_key":   a.TriggerKey,
		"trigger_value": a.TriggerValue,
		"action_kind":   string(a.Kind),
		"detail":        a.Detail,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ActionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainAction, canonical), nil
}

// MustActionID is like ActionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustActionID(runID string, a Action) string {
	id, err := ActionID(runID, a)
	if err != nil {
		panic(err)
	}
	return id
}
