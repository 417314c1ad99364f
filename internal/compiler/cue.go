package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/opinionated/internal/ir"
)

// LoadCUE reads rules from a CUE file or a directory holding one CUE package.
//
// Rules are declared as an ordered list so registration order is explicit:
//
//	rules: [
//		{id: "42", kind: "KeyValueToFixedFixed", old: {key: "highway", value: "ford"}, new: [{key: "ford", value: "yes"}]},
//		{id: "43", kind: "KeyToCarry", old: {key: "created_by"}, new: [{key: "source"}]},
//	]
func LoadCUE(path string) ([]ir.RuleRecord, []cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, &MalformedRuleError{Code: ErrRuleSource, Field: "path", Message: err.Error()}
	}

	ctx := cuecontext.New()
	var value cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, nil, &MalformedRuleError{Code: ErrRuleSource, Field: "path", Message: "no CUE instances loaded"}
		}
		if instances[0].Err != nil {
			return nil, nil, formatCUEError(instances[0].Err)
		}
		value = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, &MalformedRuleError{Code: ErrRuleSource, Field: "path", Message: err.Error()}
		}
		value = ctx.CompileBytes(data, cue.Filename(path))
	}
	if err := value.Err(); err != nil {
		return nil, nil, formatCUEError(err)
	}

	rulesVal := value.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, nil, &MalformedRuleError{Code: ErrRuleSyntax, Field: "rules", Message: "no rules list found", Pos: value.Pos()}
	}
	iter, err := rulesVal.List()
	if err != nil {
		return nil, nil, formatCUEError(err)
	}

	var (
		recs   []ir.RuleRecord
		values []cue.Value
	)
	for iter.Next() {
		rec, err := CompileRecord(iter.Value())
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, rec)
		values = append(values, iter.Value())
	}
	return recs, values, nil
}

// CompileRecord decodes one CUE rule struct into a flat record.
// Normalization happens separately so CSV and CUE sources share it.
func CompileRecord(v cue.Value) (ir.RuleRecord, error) {
	if err := v.Err(); err != nil {
		return ir.RuleRecord{}, formatCUEError(err)
	}

	var rec ir.RuleRecord
	var err error
	if rec.SourceID, err = optionalString(v, "id"); err != nil {
		return rec, err
	}
	if rec.Date, err = optionalString(v, "date"); err != nil {
		return rec, err
	}
	if rec.Kind, err = requiredString(v, "kind", rec.SourceID); err != nil {
		return rec, err
	}
	if rec.OldKey, err = requiredString(v, "old.key", rec.SourceID); err != nil {
		return rec, err
	}
	if rec.OldValue, err = optionalString(v, "old.value"); err != nil {
		return rec, err
	}

	newVal := v.LookupPath(cue.ParsePath("new"))
	if !newVal.Exists() {
		return rec, &MalformedRuleError{Code: ErrMissingNewKey, Field: "new", Message: "new is required", SourceID: rec.SourceID, Pos: v.Pos()}
	}
	iter, err := newVal.List()
	if err != nil {
		return rec, formatCUEError(err)
	}
	var n int
	for iter.Next() {
		key, err := requiredString(iter.Value(), "key", rec.SourceID)
		if err != nil {
			return rec, err
		}
		value, err := optionalString(iter.Value(), "value")
		if err != nil {
			return rec, err
		}
		switch n {
		case 0:
			rec.NewKey1, rec.NewValue1 = key, value
		case 1:
			rec.NewKey2, rec.NewValue2 = key, value
		default:
			return rec, &MalformedRuleError{
				Code:     ErrUnexpectedField,
				Field:    "new",
				Message:  "at most two new tags are supported",
				SourceID: rec.SourceID,
				Pos:      iter.Value().Pos(),
			}
		}
		n++
	}
	return rec, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requiredString(v cue.Value, path, id string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", &MalformedRuleError{
			Code:     fieldCode(path),
			Field:    path,
			Message:  fmt.Sprintf("%s is required", path),
			SourceID: id,
			Pos:      v.Pos(),
		}
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func fieldCode(path string) string {
	switch path {
	case "old.key":
		return ErrMissingOldKey
	case "kind":
		return ErrUnknownKind
	default:
		return ErrMissingNewKey
	}
}
