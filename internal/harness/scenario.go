package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/opinionated/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RuleFile is a CSV or CUE rule source, relative to the scenario file.
	// Its rules come before the inline Rules.
	RuleFile string `yaml:"rule_file,omitempty"`

	// Rules are inline rule records in the flat rule-table layout.
	Rules []RuleSpec `yaml:"rules,omitempty"`

	// Labels is the label table for the run.
	Labels []LabelSpec `yaml:"labels,omitempty"`

	// Options configure the pipeline.
	Options Options `yaml:"options,omitempty"`

	// Entities is the input stream, in order.
	Entities []EntitySpec `yaml:"entities"`

	// Expect lists per-entity outcomes. Entities not listed are not checked.
	Expect []ExpectSpec `yaml:"expect,omitempty"`

	// Assertions validate the ledger and statistics.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RunID is the fixed run id. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`
}

// RuleSpec is one rule record.
type RuleSpec struct {
	ID        string `yaml:"id"`
	Date      string `yaml:"date,omitempty"`
	Kind      string `yaml:"kind"`
	OldKey    string `yaml:"old_key"`
	OldValue  string `yaml:"old_value,omitempty"`
	NewKey1   string `yaml:"new_key_1,omitempty"`
	NewValue1 string `yaml:"new_value_1,omitempty"`
	NewKey2   string `yaml:"new_key_2,omitempty"`
	NewValue2 string `yaml:"new_value_2,omitempty"`
}

// Record converts r to an un-normalized rule record.
func (r RuleSpec) Record() ir.RuleRecord {
	return ir.RuleRecord{
		Date:      r.Date,
		OldKey:    r.OldKey,
		OldValue:  r.OldValue,
		NewKey1:   r.NewKey1,
		NewValue1: r.NewValue1,
		NewKey2:   r.NewKey2,
		NewValue2: r.NewValue2,
		SourceID:  r.ID,
		Kind:      r.Kind,
	}
}

// LabelSpec is one label row. An empty key means "name:" + lang.
type LabelSpec struct {
	ID    string `yaml:"id"`
	Lang  string `yaml:"lang"`
	Label string `yaml:"label"`
	Key   string `yaml:"key,omitempty"`
}

// Row converts l to a label row.
func (l LabelSpec) Row() ir.LabelRow {
	key := l.Key
	if key == "" {
		key = "name:" + l.Lang
	}
	return ir.LabelRow{ReferenceID: l.ID, Lang: l.Lang, Key: key, Label: l.Label}
}

// Options configure the pipeline for a scenario.
type Options struct {
	ReferenceKey string `yaml:"reference_key,omitempty"`
	NameKey      string `yaml:"name_key,omitempty"`
	Workers      int    `yaml:"workers,omitempty"`
	Buffer       int    `yaml:"buffer,omitempty"`

	// PrioritizeSpecific defaults to true.
	PrioritizeSpecific *bool `yaml:"prioritize_specific,omitempty"`
}

// EntitySpec is one input entity.
type EntitySpec struct {
	Type string  `yaml:"type"`
	ID   int64   `yaml:"id"`
	Tags TagList `yaml:"tags"`
}

// ExpectSpec is the expected outcome for one entity.
type ExpectSpec struct {
	Type string `yaml:"type"`
	ID   int64  `yaml:"id"`

	// Directive is "unchanged" or "replace".
	Directive string `yaml:"directive"`

	// Tags are the exact output tags, in order. Checked for replace only.
	Tags TagList `yaml:"tags,omitempty"`
}

// TagList is an ordered tag mapping. It decodes a YAML mapping in document
// order and keeps every value as its literal text, so yes stays "yes".
type TagList []ir.Tag

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *TagList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: tags must be a mapping", n.Line)
	}
	out := make(TagList, 0, len(n.Content)/2)
	seen := make(map[string]bool, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: tag %q must have a scalar value", v.Line, k.Value)
		}
		if seen[k.Value] {
			return fmt.Errorf("line %d: duplicate tag %q", k.Line, k.Value)
		}
		seen[k.Value] = true
		out = append(out, ir.Tag{Key: k.Value, Value: v.Value})
	}
	*l = out
	return nil
}

// TagSet returns the list as a tag set.
func (l TagList) TagSet() *ir.TagSet {
	return ir.NewTagSet(l...)
}

// Assertion validates the ledger or the run statistics.
type Assertion struct {
	// Type specifies the assertion type:
	// - "action_count": Count actions matching Kind and TriggerKey
	// - "action_contains": Check an action matching every set field exists
	// - "action_order": Check Details appear in ledger order
	// - "stats": Check per-type counters
	// - "replay": Check the ledger reproduces every output
	Type string `yaml:"type"`

	// Entity is "type/id" (action_contains).
	Entity string `yaml:"entity,omitempty"`

	Kind         string `yaml:"kind,omitempty"`
	TriggerKey   string `yaml:"trigger_key,omitempty"`
	TriggerValue string `yaml:"trigger_value,omitempty"`
	Detail       string `yaml:"detail,omitempty"`

	// Count is the expected number of matching actions (action_count).
	Count int `yaml:"count,omitempty"`

	// Details is the expected detail order (action_order).
	Details []string `yaml:"details,omitempty"`

	// EntityType selects the stats row (stats).
	EntityType        string `yaml:"entity_type,omitempty"`
	Processed         *int64 `yaml:"processed,omitempty"`
	Mutated           *int64 `yaml:"mutated,omitempty"`
	MissingReferences *int64 `yaml:"missing_references,omitempty"`
}

// Assertion type constants.
const (
	AssertActionCount    = "action_count"
	AssertActionContains = "action_contains"
	AssertActionOrder    = "action_order"
	AssertStats          = "stats"
	AssertReplay         = "replay"
)

// Directive names used in expect clauses.
const (
	DirectiveUnchanged = "unchanged"
	DirectiveReplace   = "replace"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative rule_file is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.RuleFile != "" && !filepath.IsAbs(scenario.RuleFile) {
		scenario.RuleFile = filepath.Join(filepath.Dir(path), scenario.RuleFile)
	}
	if scenario.RuleFile != "" {
		if _, err := os.Stat(scenario.RuleFile); err != nil {
			return nil, fmt.Errorf("invalid scenario: rule file not found: %s", scenario.RuleFile)
		}
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Rules) == 0 && s.RuleFile == "" && len(s.Labels) == 0 {
		return fmt.Errorf("rules, rule_file or labels is required")
	}
	if len(s.Entities) == 0 {
		return fmt.Errorf("entities list is required and must be non-empty")
	}
	if len(s.Expect) == 0 && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions is required")
	}

	for i, e := range s.Entities {
		if _, err := ir.ParseEntityType(e.Type); err != nil {
			return fmt.Errorf("entities[%d]: %w", i, err)
		}
	}
	for i, e := range s.Expect {
		if _, err := ir.ParseEntityType(e.Type); err != nil {
			return fmt.Errorf("expect[%d]: %w", i, err)
		}
		switch e.Directive {
		case DirectiveUnchanged:
			if len(e.Tags) > 0 {
				return fmt.Errorf("expect[%d]: tags are not allowed for unchanged", i)
			}
		case DirectiveReplace:
		default:
			return fmt.Errorf("expect[%d]: directive must be %q or %q, got %q", i, DirectiveUnchanged, DirectiveReplace, e.Directive)
		}
	}
	for i, l := range s.Labels {
		if l.ID == "" || l.Lang == "" || l.Label == "" {
			return fmt.Errorf("labels[%d]: id, lang and label are required", i)
		}
	}
	if s.Options.Workers < 0 {
		return fmt.Errorf("options.workers must be non-negative")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertActionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for action_count", index)
		}
	case AssertActionContains:
		if a.Entity == "" && a.Kind == "" && a.TriggerKey == "" && a.Detail == "" {
			return fmt.Errorf("assertions[%d]: at least one of entity, kind, trigger_key or detail is required for action_contains", index)
		}
	case AssertActionOrder:
		if len(a.Details) == 0 {
			return fmt.Errorf("assertions[%d]: details list is required for action_order", index)
		}
	case AssertStats:
		if a.EntityType != "" {
			if _, err := ir.ParseEntityType(a.EntityType); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
		if a.Processed == nil && a.Mutated == nil && a.MissingReferences == nil {
			return fmt.Errorf("assertions[%d]: stats needs processed, mutated or missing_references", index)
		}
	case AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
