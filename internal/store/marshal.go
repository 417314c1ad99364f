package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalStats converts run statistics to JSON TEXT for storage.
// Map keys are sorted by encoding/json and HTML escaping is disabled so the
// stored text is stable across runs.
func marshalStats(stats any) (string, error) {
	if stats == nil {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(stats); err != nil {
		return "", fmt.Errorf("marshal stats: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// UnmarshalStats decodes a run's stored statistics into v.
func UnmarshalStats(data string, v any) error {
	if data == "" {
		data = "{}"
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal stats: %w", err)
	}
	return nil
}
