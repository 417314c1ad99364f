package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/roach88/opinionated/internal/ir"
)

// EntityURIPrefix is stripped from reference ids exported as full entity URIs.
const EntityURIPrefix = "http://www.wikidata.org/entity/"

// DefaultKeyPrefix is prepended to the language code when a row has no key.
const DefaultKeyPrefix = "name:"

var qidPattern = regexp.MustCompile(`^Q[0-9]+$`)

// ValidQID reports whether id is a well-formed knowledge-base item id.
func ValidQID(id string) bool {
	return qidPattern.MatchString(id)
}

// LabelError reports a malformed row in a label table.
type LabelError struct {
	Line    int
	Field   string
	Message string
}

func (e *LabelError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("labels line %d: %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("labels: %s: %s", e.Field, e.Message)
}

// ReadLabelCSV reads label rows in file order. keyPrefix is used to
// synthesize missing keys; an empty prefix means DefaultKeyPrefix.
//
// Reading stops at the first malformed row.
func ReadLabelCSV(r io.Reader, keyPrefix string) ([]ir.LabelRow, error) {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &LabelError{Field: "header", Message: "empty label table"}
	}
	if err != nil {
		return nil, &LabelError{Line: 1, Field: "header", Message: err.Error()}
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"id", "lang", "label"} {
		if _, ok := cols[required]; !ok {
			return nil, &LabelError{Line: 1, Field: "header", Message: "missing " + required + " column"}
		}
	}
	keyCol, hasKey := cols["key"]

	get := func(row []string, col int) string {
		if col >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[col])
	}

	rows := []ir.LabelRow{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var line int
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &LabelError{Line: line, Field: "row", Message: err.Error()}
		}
		line, _ := cr.FieldPos(0)

		id := strings.TrimPrefix(get(row, cols["id"]), EntityURIPrefix)
		if !ValidQID(id) {
			return nil, &LabelError{Line: line, Field: "id", Message: fmt.Sprintf("invalid reference id %q", id)}
		}
		lang := get(row, cols["lang"])
		if lang == "" {
			return nil, &LabelError{Line: line, Field: "lang", Message: "empty language code"}
		}
		var label string
		if c := cols["label"]; c < len(row) {
			label = row[c]
		}
		if label == "" {
			return nil, &LabelError{Line: line, Field: "label", Message: "empty label"}
		}

		key := ""
		if hasKey {
			key = get(row, keyCol)
		}
		if key == "" {
			key = keyPrefix + lang
		}
		if strings.Contains(key, "=") {
			return nil, &LabelError{Line: line, Field: "key", Message: fmt.Sprintf("key %q contains '='", key)}
		}

		rows = append(rows, ir.LabelRow{ReferenceID: id, Lang: lang, Key: key, Label: label})
	}
	return rows, nil
}

// WriteLabelCSV writes rows in the layout ReadLabelCSV accepts.
func WriteLabelCSV(w io.Writer, rows []ir.LabelRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "lang", "label", "key"}); err != nil {
		return fmt.Errorf("write label header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.ReferenceID, r.Lang, r.Label, r.Key}); err != nil {
			return fmt.Errorf("write label %s %s: %w", r.ReferenceID, r.Key, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
