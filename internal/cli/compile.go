package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/opinionated/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult summarizes a compiled rule table.
type CompilationResult struct {
	Source      string `json:"source"`
	Format      string `json:"format"`
	Output      string `json:"output"`
	Rules       int    `json:"rules"`
	RuleSetHash string `json:"rule_set_hash"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [rules]",
		Short: "Normalize a rule source to the canonical rule CSV",
		Long: `Normalize a rule source (CSV with legacy or canonical kinds, or CUE) and
write the rule table in registration order as canonical CSV.

Legacy kind names are mapped to canonical kinds, empty carried values become
__CARRY__, and fixed-value rules are ordered before carry rules for the same
key unless --prioritize-specific=false.

Examples:
  opinionated compile rules.cue -o rules.csv
  opinionated compile --rules legacy.csv`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (default stdout)")
	cmd.Flags().String("rules", "", "rule source (or pass it as an argument)")
	cmd.Flags().Bool("prioritize-specific", true, "order fixed-value rules before carry rules for the same key")

	return cmd
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, cmd, "rules", "prioritize-specific")
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Rules = args[0]
	}
	if opts.Format == "json" && opts.Output == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--format json requires --output", nil)
	}

	loaded, err := loadRuleTable(cfg)
	if err != nil {
		exit := ExitCommandError
		if compiler.IsMalformedRule(err) {
			exit = ExitFailure
		}
		return formatter.Fail(exit, ruleErrorCode(err), err.Error(), nil)
	}
	if loaded.Table.Len() == 0 {
		return formatter.Fail(ExitFailure, ErrCodeNoRules, fmt.Sprintf("no rules in %s", cfg.Rules), nil)
	}

	var buf bytes.Buffer
	if err := compiler.WriteRuleCSV(&buf, loaded.Table.Rules()); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
	}

	if opts.Output == "" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(opts.Output, buf.Bytes(), 0644); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("failed to write output: %v", err), nil)
	}

	result := CompilationResult{
		Source:      cfg.Rules,
		Format:      loaded.Format,
		Output:      opts.Output,
		Rules:       loaded.Table.Len(),
		RuleSetHash: loaded.Table.Hash(),
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Compiled %d rule(s) to %s\n", result.Rules, result.Output)
	return nil
}
