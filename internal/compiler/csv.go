package compiler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/opinionated/internal/ir"
)

// ReadRuleCSV reads flat rule records from a delimited table with a header row.
//
// Recognized columns: date, old_key, old_value, new_key_1, new_value_1,
// new_key_2, new_value_2, id (or source_id) and regex_type (or kind).
// Unknown columns, including an unnamed leading index column, are ignored.
// The returned lines slice holds the 1-based file line of each record.
func ReadRuleCSV(r io.Reader) (recs []ir.RuleRecord, lines []int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, &MalformedRuleError{Code: ErrRuleSource, Field: "header", Message: "empty rule table"}
	}
	if err != nil {
		return nil, nil, &MalformedRuleError{Code: ErrRuleSyntax, Field: "header", Message: err.Error(), Line: 1}
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["old_key"]; !ok {
		return nil, nil, &MalformedRuleError{Code: ErrRuleSyntax, Field: "header", Message: "missing old_key column", Line: 1}
	}
	kindCol := firstColumn(cols, "kind", "regex_type")
	if kindCol < 0 {
		return nil, nil, &MalformedRuleError{Code: ErrRuleSyntax, Field: "header", Message: "missing kind or regex_type column", Line: 1}
	}
	idCol := firstColumn(cols, "source_id", "id")

	get := func(row []string, col int) string {
		if col < 0 || col >= len(row) {
			return ""
		}
		return row[col]
	}
	named := func(row []string, name string) string {
		col, ok := cols[name]
		if !ok {
			return ""
		}
		return get(row, col)
	}

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
			return nil, nil, &MalformedRuleError{Code: ErrRuleSyntax, Field: "row", Message: err.Error(), Line: line}
		}
		line, _ := cr.FieldPos(0)
		recs = append(recs, ir.RuleRecord{
			Date:      named(row, "date"),
			OldKey:    named(row, "old_key"),
			OldValue:  named(row, "old_value"),
			NewKey1:   named(row, "new_key_1"),
			NewValue1: named(row, "new_value_1"),
			NewKey2:   named(row, "new_key_2"),
			NewValue2: named(row, "new_value_2"),
			SourceID:  get(row, idCol),
			Kind:      get(row, kindCol),
		})
		lines = append(lines, line)
	}
	return recs, lines, nil
}

// WriteRuleCSV writes normalized rules in the layout ReadRuleCSV accepts.
func WriteRuleCSV(w io.Writer, rules []ir.Rule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "old_key", "old_value", "new_key_1", "new_value_1", "new_key_2", "new_value_2", "id", "kind"}); err != nil {
		return fmt.Errorf("write rule header: %w", err)
	}
	for _, r := range rules {
		rec := r.Record()
		if err := cw.Write([]string{rec.Date, rec.OldKey, rec.OldValue, rec.NewKey1, rec.NewValue1, rec.NewKey2, rec.NewValue2, rec.SourceID, rec.Kind}); err != nil {
			return fmt.Errorf("write rule %s: %w", rec.SourceID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func firstColumn(cols map[string]int, names ...string) int {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i
		}
	}
	return -1
}
