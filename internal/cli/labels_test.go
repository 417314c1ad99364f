package cli

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opinionated/internal/store"
)

func TestLabelsImport(t *testing.T) {
	setupWorkspace(t)

	stdout, _, err := execute(NewLabelsCommand(&RootOptions{Format: "text"}), "import", "labels.csv")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Imported 2 label row(s) from labels.csv (2 new, 2 total)")

	writeTestFile(t, "more.csv", "id,lang,label,key\nQ64,it,Berlino!,\nQ1,en,Universe,name:en\n")
	cmd := NewLabelsCommand(&RootOptions{Format: "json"})
	stdout, _, err = execute(cmd, "import", "more.csv")
	require.NoError(t, err)

	var resp struct {
		Data LabelImportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, LabelImportResult{Source: "more.csv", Rows: 2, New: 1, Total: 3}, resp.Data)

	st, err := store.Open("opinionated.db")
	require.NoError(t, err)
	defer st.Close()
	rows, err := st.LoadLabels(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Berlino!", rows[1].Label)
	assert.Equal(t, "Q1", rows[2].ReferenceID)
}

func TestLabelsImport_Errors(t *testing.T) {
	setupWorkspace(t)

	_, _, err := execute(NewLabelsCommand(&RootOptions{Format: "text"}), "import", "missing.csv")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	writeTestFile(t, "bad.csv", "id,lang,label\nX64,de,Berlin\n")
	stdout, _, err := execute(NewLabelsCommand(&RootOptions{Format: "text"}), "import", "bad.csv")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, `invalid reference id "X64"`)
	_, statErr := os.Stat("opinionated.db")
	assert.True(t, os.IsNotExist(statErr), "a rejected import must not create the database")
}

func TestIDs(t *testing.T) {
	setupWorkspace(t)
	writeTestFile(t, "refs.jsonl", `{"type":"way","id":3,"tags":[["wikidata","Q9;Q10"]]}
{"type":"node","id":1,"tags":[["wikidata","Q64"]]}
{"type":"node","id":2,"tags":[["wikidata","not-an-id"]]}
{"type":"relation","id":4,"tags":[["wikidata","Q64"]]}
`)

	stdout, _, err := execute(NewIDsCommand(&RootOptions{Format: "text"}), "refs.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "Q64\nQ9\n", stdout)

	_, _, err = execute(NewIDsCommand(&RootOptions{Format: "text"}), "-o", "ids.txt", "refs.jsonl")
	require.NoError(t, err)
	data, err := os.ReadFile("ids.txt")
	require.NoError(t, err)
	assert.Equal(t, "Q64\nQ9\n", string(data))
}

func TestIDs_CustomKeyJSON(t *testing.T) {
	setupWorkspace(t)
	writeTestFile(t, "refs.jsonl", `{"type":"node","id":1,"tags":[["brand:wikidata","Q7"]]}`+"\n")

	stdout, _, err := execute(NewIDsCommand(&RootOptions{Format: "json"}), "--reference-key", "brand:wikidata", "refs.jsonl")
	require.NoError(t, err)

	var resp struct {
		Data IDsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, IDsResult{Input: "refs.jsonl", Key: "brand:wikidata", IDs: []string{"Q7"}}, resp.Data)
}
