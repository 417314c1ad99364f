package cli

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opinionated/internal/engine"
)

const testRulesCSV = `date,old_key,old_value,new_key_1,new_value_1,new_key_2,new_value_2,id,kind
2015-03-01,highway,ford,ford,yes,,,101,KeyValueToFixedFixed
,created_by,,source,,,,102,KeyToCarry
`

const testLabelsCSV = `id,lang,label
http://www.wikidata.org/entity/Q64,de,Berlin
http://www.wikidata.org/entity/Q64,it,Berlino
`

const testInput = `{"type":"node","id":1,"tags":[["highway","ford"]]}
{"type":"node","id":2,"tags":[["name","Plain"],["amenity","bench"]]}
{"type":"way","id":10,"tags":[["created_by","JOSM"],["name","X"]]}
{"type":"relation","id":5,"tags":[["wikidata","Q64"],["name","Berlin"]]}
`

const testOutput = `{"type":"node","id":1,"tags":[["ford","yes"]]}
{"type":"node","id":2,"tags":[["name","Plain"],["amenity","bench"]]}
{"type":"way","id":10,"tags":[["name","X"],["source","JOSM"]]}
{"type":"relation","id":5,"tags":[["wikidata","Q64"],["name","Berlin"],["name:it","Berlino"]]}
`

// setupWorkspace creates a temp directory holding the fixture rule, label
// and input files and makes it the working directory.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	writeTestFile(t, "rules.csv", testRulesCSV)
	writeTestFile(t, "labels.csv", testLabelsCSV)
	writeTestFile(t, "input.jsonl", testInput)
	return dir
}

func writeTestFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(content), 0644))
}

// execute runs cmd with args and returns its stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// migrateFixture runs a migration of the fixture files under the given run id.
func migrateFixture(t *testing.T, runID, format string, args ...string) (string, error) {
	t.Helper()
	cmd := newMigrateCommand(&MigrateOptions{
		RootOptions:    &RootOptions{Format: format},
		RunIDGenerator: engine.NewFixedGenerator(runID),
	})
	base := []string{"--rules", "rules.csv", "--labels", "labels.csv", "-o", "out.jsonl"}
	stdout, _, err := execute(cmd, append(append(base, args...), "input.jsonl")...)
	return stdout, err
}

func fixedRunIDs(ids ...string) engine.RunIDGenerator {
	return engine.NewFixedGenerator(ids...)
}

func splitLines(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
