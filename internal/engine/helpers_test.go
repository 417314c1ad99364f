package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/opinionated/internal/ir"
)

func mustTable(t *testing.T, rules ...ir.Rule) *RuleTable {
	t.Helper()
	table, err := NewRuleTable(rules)
	require.NoError(t, err)
	return table
}

func fixedFixed(id, oldKey, oldValue, key, value string) ir.Rule {
	return ir.Rule{OldKey: oldKey, OldValue: ir.Fixed(oldValue), Recipe: ir.FixedFixed{Key: key, Value: value}, SourceID: id}
}

func carryTo(id, oldKey, key string) ir.Rule {
	return ir.Rule{OldKey: oldKey, OldValue: ir.Carry(), Recipe: ir.CarryTo{Key: key}, SourceID: id}
}

// testRules is a small rule set exercising every recipe kind.
func testRules() []ir.Rule {
	return []ir.Rule{
		fixedFixed("1", "highway", "ford", "ford", "yes"),
		carryTo("2", "created_by", "source"),
		{OldKey: "amenity", OldValue: ir.Fixed("register_office"), Recipe: ir.FixedFixedFixed{Key1: "office", Value1: "government", Key2: "government", Value2: "register_office"}, SourceID: "3"},
		{OldKey: "shop", OldValue: ir.Fixed("organic"), Recipe: ir.Yes{Key: "organic"}, SourceID: "4"},
		{OldKey: "drinkable", OldValue: ir.Carry(), Recipe: ir.FixedPlusCarry{Key1: "amenity", Value1: "drinking_water", Key2: "drinking_water"}, SourceID: "5"},
	}
}

func testLabels() *LabelTable {
	return NewLabelTable([]ir.LabelRow{
		{ReferenceID: "Q42", Lang: "en", Key: "name:en", Label: "Douglas Adams"},
		{ReferenceID: "Q42", Lang: "fr", Key: "name:fr", Label: "Douglas Adams"},
		{ReferenceID: "Q42", Lang: "de", Key: "name:de", Label: "Douglas Noel Adams"},
		{ReferenceID: "Q64", Lang: "de", Key: "name:de", Label: "Berlin"},
		{ReferenceID: "Q64", Lang: "ru", Key: "name:ru", Label: "Берлин"},
	})
}

func newTestPipeline(t *testing.T, labels *LabelTable) *Pipeline {
	t.Helper()
	return NewPipeline(RunContext{
		Rules:        mustTable(t, testRules()...),
		Labels:       labels,
		ReferenceKey: "wikidata",
		NameKey:      "name",
	})
}
