package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/opinionated/internal/compiler"
	"github.com/roach88/opinionated/internal/config"
	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/source"
)

// ValidationIssue is one problem found in a rule or label source.
type ValidationIssue struct {
	Code     string `json:"code"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
	SourceID string `json:"source_id,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// ShadowIssue names a rule that can never match.
type ShadowIssue struct {
	Rule string `json:"rule"`
	By   string `json:"by"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Source   string                  `json:"source"`
	Format   string                  `json:"format,omitempty"`
	Records  int                     `json:"records"`
	Rules    int                     `json:"rules"`
	Labels   int                     `json:"labels,omitempty"`
	Errors   []ValidationIssue       `json:"errors,omitempty"`
	Shadowed []ShadowIssue           `json:"shadowed,omitempty"`
	Chains   []compiler.ChainWarning `json:"chains,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [rules]",
		Short: "Check a rule source without running a migration",
		Long: `Check every record of a rule source and report all malformed rules.

Unlike migrate, which stops at the first malformed rule, validate reads the
whole source. It also reports rules shadowed by an earlier rule for the same
key and chains of rules whose output is itself deprecated, which a single
pass does not follow. A label CSV given with --labels is checked too.

Exit codes:
  0 - Source is valid (warnings may be reported)
  1 - One or more malformed records
  2 - Command error`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	cmd.Flags().String("rules", "", "rule source (or pass it as an argument)")
	cmd.Flags().String("labels", "", "label CSV to check")
	cmd.Flags().String("label-key-prefix", config.Defaults().LabelKeyPrefix, "prefix for label keys synthesized from the language")
	cmd.Flags().Bool("prioritize-specific", config.Defaults().PrioritizeSpecific, "order fixed-value rules before carry rules for the same key")

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, cmd, "rules", "labels", "label-key-prefix", "prioritize-specific")
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Rules = args[0]
	}
	if cfg.Rules == "" {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "no rule source given", nil)
	}

	result := ValidationResult{Source: cfg.Rules}
	loaded, loadErrs := compiler.LoadRules(cfg.Rules, compiler.LoadModeCollectAll)
	for _, err := range loadErrs {
		result.Errors = append(result.Errors, issueFromError(err))
	}

	if loaded != nil {
		result.Format = loaded.Format
		result.Records = loaded.Records
		formatter.VerboseLog("Read %d record(s) from %s", loaded.Records, cfg.Rules)

		rules := loaded.Rules
		if cfg.PrioritizeSpecific {
			rules = compiler.PrioritizeSpecific(rules)
		}
		table, err := engine.NewRuleTable(rules)
		if err != nil {
			result.Errors = append(result.Errors, issueFromError(err))
		} else {
			result.Rules = table.Len()
			for _, s := range table.Shadowed() {
				result.Shadowed = append(result.Shadowed, ShadowIssue{Rule: s.Rule.String(), By: s.By.String()})
			}
			result.Chains = compiler.AnalyzeChains(table.Rules())
		}
	}

	if cfg.Labels != "" {
		n, err := checkLabels(cfg.Labels, cfg.LabelKeyPrefix)
		if err != nil {
			result.Errors = append(result.Errors, issueFromError(err))
		}
		result.Labels = n
	}

	result.Valid = len(result.Errors) == 0
	if err := outputValidation(formatter, cmd, result); err != nil {
		return err
	}
	if !result.Valid {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d error(s) found", len(result.Errors)), Reported: true}
	}
	return nil
}

func checkLabels(path, prefix string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	rows, err := source.ReadLabelCSV(f, prefix)
	return len(rows), err
}

// issueFromError converts a loading error into a reportable issue.
func issueFromError(err error) ValidationIssue {
	var me *compiler.MalformedRuleError
	if errors.As(err, &me) {
		line := me.Line
		if me.Pos.IsValid() {
			line = me.Pos.Line()
		}
		return ValidationIssue{Code: me.Code, Field: me.Field, Message: me.Message, SourceID: me.SourceID, Line: line}
	}
	var le *source.LabelError
	if errors.As(err, &le) {
		return ValidationIssue{Code: ErrCodeLoadFailed, Field: "labels." + le.Field, Message: le.Message, Line: le.Line}
	}
	return ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()}
}

func outputValidation(formatter *OutputFormatter, cmd *cobra.Command, result ValidationResult) error {
	if formatter.Format == "json" {
		if result.Valid {
			return formatter.Success(result)
		}
		return formatter.Error(ErrCodeGeneric, fmt.Sprintf("%d error(s) found", len(result.Errors)), result)
	}

	w := cmd.OutOrStdout()
	for _, e := range result.Errors {
		where := ""
		if e.Line > 0 {
			where = fmt.Sprintf("line %d: ", e.Line)
		}
		rule := ""
		if e.SourceID != "" {
			rule = fmt.Sprintf(" (rule %s)", e.SourceID)
		}
		fmt.Fprintf(w, "Error [%s]: %s%s: %s%s\n", e.Code, where, e.Field, e.Message, rule)
	}
	for _, s := range result.Shadowed {
		fmt.Fprintf(w, "Warning: %s can never match, shadowed by %s\n", s.Rule, s.By)
	}
	for _, c := range result.Chains {
		fmt.Fprintf(w, "Warning: %s\n", c.Message)
	}

	if !result.Valid {
		fmt.Fprintf(w, "✗ %d error(s) in %s\n", len(result.Errors), result.Source)
		return nil
	}
	fmt.Fprintf(w, "✓ %d rule(s) valid in %s\n", result.Rules, result.Source)
	return nil
}
