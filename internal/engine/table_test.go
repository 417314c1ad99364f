package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opinionated/internal/compiler"
	"github.com/roach88/opinionated/internal/ir"
)

func TestNewRuleTable_IndexesByKeyInOrder(t *testing.T) {
	table := mustTable(t,
		fixedFixed("1", "shop", "a", "x", "1"),
		carryTo("2", "created_by", "source"),
		fixedFixed("3", "shop", "b", "x", "2"),
	)

	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 2, table.Keys())
	cands := table.Candidates("shop")
	require.Len(t, cands, 2)
	assert.Equal(t, "1", cands[0].SourceID)
	assert.Equal(t, "3", cands[1].SourceID)
	assert.Empty(t, table.Candidates("unknown"))
	assert.True(t, table.Has("created_by"))
	assert.False(t, table.Has("name"))
}

func TestNewRuleTable_RejectsMalformedRule(t *testing.T) {
	_, err := NewRuleTable([]ir.Rule{
		carryTo("1", "created_by", "source"),
		{OldKey: "", OldValue: ir.Carry(), Recipe: ir.CarryTo{Key: "x"}, SourceID: "2"},
	})
	require.Error(t, err)
	assert.True(t, compiler.IsMalformedRule(err))
	assert.Contains(t, err.Error(), "rule 2")
}

func TestNewRuleTable_RejectsKindInconsistentWithFields(t *testing.T) {
	_, err := NewRuleTable([]ir.Rule{
		{OldKey: "a", OldValue: ir.Fixed("x"), Recipe: ir.FixedPlusCarry{Key1: "b", Value1: "c", Key2: "d"}},
	})
	var me *compiler.MalformedRuleError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, compiler.ErrInvalidOldValue, me.Code)
}

func TestNewRuleTable_ReportsShadowedRules(t *testing.T) {
	table := mustTable(t,
		carryTo("1", "shop", "craft"),
		fixedFixed("2", "shop", "bakery", "shop", "pastry"),
		fixedFixed("3", "highway", "ford", "ford", "yes"),
		fixedFixed("4", "highway", "ford", "ford", "no"),
		fixedFixed("5", "highway", "track", "track", "yes"),
	)

	shadowed := table.Shadowed()
	require.Len(t, shadowed, 2)
	assert.Equal(t, "2", shadowed[0].Rule.SourceID)
	assert.Equal(t, "1", shadowed[0].By.SourceID)
	assert.Equal(t, "4", shadowed[1].Rule.SourceID)
	assert.Equal(t, "3", shadowed[1].By.SourceID)
}

func TestNewRuleTable_CopiesInput(t *testing.T) {
	rules := []ir.Rule{carryTo("1", "a", "b")}
	table := mustTable(t, rules...)
	rules[0].OldKey = "mutated"

	assert.True(t, table.Has("a"))
	assert.Equal(t, "a", table.Rules()[0].OldKey)
}

func TestRuleTable_HashDependsOnOrder(t *testing.T) {
	a := mustTable(t, carryTo("1", "a", "b"), carryTo("2", "c", "d"))
	b := mustTable(t, carryTo("2", "c", "d"), carryTo("1", "a", "b"))
	again := mustTable(t, carryTo("1", "a", "b"), carryTo("2", "c", "d"))

	assert.Len(t, a.Hash(), 64)
	assert.NotEqual(t, a.Hash(), b.Hash())
	assert.Equal(t, a.Hash(), again.Hash())
}
