package cli

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyRulesCSV = `,date,old_key,old_value,new_key_1,new_value_1,new_key_2,new_value_2,id,regex_type
0,,building:type,,building,,,,7,dkey_carry
1,,building:type,bunker,military,bunker,building,bunker,8,dkey_dvalue_fixed_fixed
2,,shop,organic,organic,,,,9,dkey_dvalue_yes
`

func TestCompile_NormalizesLegacyRules(t *testing.T) {
	setupWorkspace(t)
	writeTestFile(t, "legacy.csv", legacyRulesCSV)

	stdout, _, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), "legacy.csv")
	require.NoError(t, err)
	assert.Equal(t, `date,old_key,old_value,new_key_1,new_value_1,new_key_2,new_value_2,id,kind
,building:type,bunker,military,bunker,building,bunker,8,KeyValueToFixedFixedFixed
,building:type,__CARRY__,building,__CARRY__,,,7,KeyToCarry
,shop,organic,organic,yes,,,9,KeyValueToYes
`, stdout)
}

func TestCompile_KeepsRegistrationOrder(t *testing.T) {
	setupWorkspace(t)
	writeTestFile(t, "legacy.csv", legacyRulesCSV)

	stdout, _, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), "--prioritize-specific=false", "legacy.csv")
	require.NoError(t, err)
	lines := splitLines(stdout)
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], ",7,KeyToCarry")
}

func TestCompile_OutputFileJSON(t *testing.T) {
	setupWorkspace(t)

	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	stdout, _, err := execute(cmd, "-o", "compiled.csv", "rules.csv")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Rules)
	assert.Equal(t, "csv", resp.Data.Format)
	assert.NotEmpty(t, resp.Data.RuleSetHash)

	data, err := os.ReadFile("compiled.csv")
	require.NoError(t, err)
	assert.Contains(t, string(data), "2015-03-01,highway,ford,ford,yes,,,101,KeyValueToFixedFixed")
}

func TestCompile_RoundTripIsStable(t *testing.T) {
	setupWorkspace(t)

	_, _, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), "-o", "first.csv", "rules.csv")
	require.NoError(t, err)
	_, _, err = execute(NewCompileCommand(&RootOptions{Format: "text"}), "-o", "second.csv", "first.csv")
	require.NoError(t, err)

	first, err := os.ReadFile("first.csv")
	require.NoError(t, err)
	second, err := os.ReadFile("second.csv")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestCompile_MalformedRule(t *testing.T) {
	setupWorkspace(t)
	writeTestFile(t, "bad.csv", "old_key,old_value,new_key_1,new_value_1,id,kind\na,b,c,d,3,Bogus\n")

	stdout, _, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), "bad.csv")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E206]")
}

func TestCompile_JSONRequiresOutput(t *testing.T) {
	setupWorkspace(t)

	_, _, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), "rules.csv")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
