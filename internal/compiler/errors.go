package compiler

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Rule error codes (E200-E299).
const (
	ErrMissingOldKey     = "E201" // old_key is required
	ErrMissingNewKey     = "E202" // new key required by kind is missing
	ErrInvalidNewValue   = "E203" // fixed value missing, carried where fixed expected, or vice versa
	ErrInvalidOldValue   = "E204" // old value inconsistent with kind
	ErrUnexpectedField   = "E205" // field populated that the kind does not use
	ErrUnknownKind       = "E206" // kind is neither canonical nor legacy
	ErrInvalidCharacters = "E207" // key contains '=' or the detail separator, or fixed value contains the separator
	ErrRuleSyntax        = "E208" // rule file could not be parsed
	ErrRuleSource        = "E209" // rule source unreadable or unsupported
)

// MalformedRuleError reports a rule rejected at load time.
//
// A malformed rule is fatal for the run: silently skipping it could leave
// live data half-migrated.
type MalformedRuleError struct {
	Code     string
	Field    string
	Message  string
	SourceID string
	Line     int       // CSV line (1-based, header is line 1) when known
	Pos      token.Pos // CUE position when loaded from CUE
}

func (e *MalformedRuleError) Error() string {
	var where string
	switch {
	case e.Pos.IsValid():
		where = fmt.Sprintf("%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	case e.Line > 0:
		where = fmt.Sprintf("line %d: ", e.Line)
	}
	msg := fmt.Sprintf("%s%s %s: %s", where, e.Code, e.Field, e.Message)
	if e.SourceID != "" {
		msg += fmt.Sprintf(" (rule %s)", e.SourceID)
	}
	return msg
}

// IsMalformedRule reports whether err wraps a MalformedRuleError.
func IsMalformedRule(err error) bool {
	var me *MalformedRuleError
	return errors.As(err, &me)
}

func malformed(code, field, sourceID, format string, args ...any) *MalformedRuleError {
	return &MalformedRuleError{
		Code:     code,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		SourceID: sourceID,
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &MalformedRuleError{
			Code:    ErrRuleSyntax,
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return &MalformedRuleError{Code: ErrRuleSyntax, Field: "cue", Message: err.Error()}
}
