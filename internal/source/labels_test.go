package source

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opinionated/internal/ir"
)

func TestValidQID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"Q42", true},
		{"Q1", true},
		{"Q", false},
		{"q42", false},
		{"Q42;Q64", false},
		{" Q42", false},
		{"P31", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidQID(tt.id))
		})
	}
}

func TestReadLabelCSV(t *testing.T) {
	input := "id,lang,label,key\n" +
		"Q64,de,Berlin,name:de\n" +
		"http://www.wikidata.org/entity/Q64,ru,Берлин,\n" +
		"Q42,en,\"Adams, Douglas\",\n"

	rows, err := ReadLabelCSV(strings.NewReader(input), "")
	require.NoError(t, err)
	assert.Equal(t, []ir.LabelRow{
		{ReferenceID: "Q64", Lang: "de", Key: "name:de", Label: "Berlin"},
		{ReferenceID: "Q64", Lang: "ru", Key: "name:ru", Label: "Берлин"},
		{ReferenceID: "Q42", Lang: "en", Key: "name:en", Label: "Adams, Douglas"},
	}, rows)
}

func TestReadLabelCSV_NoKeyColumnCustomPrefix(t *testing.T) {
	input := ",id,lang,label\n0,Q64,de,Berlin\n"

	rows, err := ReadLabelCSV(strings.NewReader(input), "official_name:")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "official_name:de", rows[0].Key)
}

func TestReadLabelCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
		line  int
	}{
		{"empty", "", "header", 0},
		{"missing label column", "id,lang\nQ1,en\n", "header", 1},
		{"bad id", "id,lang,label\nQ1,en,One\nX1,en,Two\n", "id", 3},
		{"empty lang", "id,lang,label\nQ1,,One\n", "lang", 2},
		{"empty label", "id,lang,label\nQ1,en,\n", "label", 2},
		{"short row", "id,lang,label\nQ1,en\n", "label", 2},
		{"key with equals", "id,lang,label,key\nQ1,en,One,a=b\n", "key", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadLabelCSV(strings.NewReader(tt.input), "")
			require.Error(t, err)

			var le *LabelError
			require.True(t, errors.As(err, &le), "expected *LabelError, got %T", err)
			assert.Equal(t, tt.field, le.Field)
			assert.Equal(t, tt.line, le.Line)
		})
	}
}

func TestWriteLabelCSV_ReadBack(t *testing.T) {
	rows := []ir.LabelRow{
		{ReferenceID: "Q42", Lang: "de", Key: "name:de", Label: "Douglas Noel Adams"},
		{ReferenceID: "Q64", Lang: "en", Key: "alt_name:en", Label: "Berlin, Germany"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteLabelCSV(&buf, rows))

	got, err := ReadLabelCSV(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
