package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/opinionated/internal/ir"
)

// LoadMode controls how errors are handled during rule loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the rules loaded from one rule source.
type LoadResult struct {
	Rules   []ir.Rule
	Records int    // Number of records read, including rejected ones
	Format  string // "csv" or "cue"
}

// LoadRules reads and normalizes a rule source: a .csv file, a .cue file or
// a directory holding a CUE package. Rules are returned in source order.
//
// In LoadModeFailFast the first malformed rule aborts loading and the result
// is nil. In LoadModeCollectAll every record is checked and the result holds
// the well-formed rules alongside all errors.
func LoadRules(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, []error{&MalformedRuleError{Code: ErrRuleSource, Field: "path", Message: fmt.Sprintf("rule source not found: %s", path)}}
	}

	var (
		recs   []ir.RuleRecord
		lines  []int
		values []cue.Value
		format string
	)
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case info.IsDir() || ext == ".cue":
		format = "cue"
		recs, values, err = LoadCUE(path)
	case ext == ".csv":
		format = "csv"
		var f *os.File
		f, err = os.Open(path)
		if err == nil {
			recs, lines, err = ReadRuleCSV(f)
			f.Close()
		}
	default:
		err = &MalformedRuleError{Code: ErrRuleSource, Field: "path", Message: fmt.Sprintf("unsupported rule source extension %q", ext)}
	}
	if err != nil {
		return nil, []error{err}
	}

	result := &LoadResult{Records: len(recs), Format: format}
	var errs []error
	for i, rec := range recs {
		rule, err := Normalize(rec)
		if err != nil {
			var me *MalformedRuleError
			if errors.As(err, &me) {
				if i < len(lines) {
					me.Line = lines[i]
				}
				if i < len(values) && !me.Pos.IsValid() {
					me.Pos = values[i].Pos()
				}
			}
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return nil, errs
			}
			continue
		}
		result.Rules = append(result.Rules, rule)
	}
	return result, errs
}
