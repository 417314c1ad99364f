package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/opinionated/internal/audit"
	"github.com/roach88/opinionated/internal/config"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	RunID      string
	Output     string
	Provenance bool
	Summary    bool
}

// ExportResult describes a written audit file.
type ExportResult struct {
	RunID   string         `json:"run_id"`
	Output  string         `json:"output,omitempty"`
	Actions int            `json:"actions"`
	Summary *audit.Summary `json:"summary,omitempty"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a run's action ledger as an audit CSV",
		Long: `Write the action ledger of a run as CSV with the columns
type,id,key,value,action,details,url, one row per action in ledger order.
The url column links each entity on the map site (--permalink-base).

Examples:
  opinionated export -o audit.csv
  opinionated export --run 0190f6c2-... --provenance
  opinionated export --summary --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	d := config.Defaults()
	cmd.Flags().String("db", d.DB, "path to SQLite database")
	cmd.Flags().String("permalink-base", d.PermalinkBase, "base URL of entity permalinks")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest run)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (default stdout)")
	cmd.Flags().BoolVar(&opts.Provenance, "provenance", false, "add rule_kind and rule_source columns")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "print counts by action kind and key instead of rows")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, cmd, "db", "permalink-base")
	if err != nil {
		return err
	}
	st, err := openExistingStore(formatter, cfg.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	run, err := resolveRun(ctx, formatter, st, opts.RunID)
	if err != nil {
		return err
	}
	actions, err := st.ReadActions(ctx, run.ID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}

	result := ExportResult{RunID: run.ID, Actions: len(actions)}

	if opts.Summary {
		summary := audit.Summarize(actions)
		result.Summary = &summary
		if opts.Format == "json" {
			return formatter.Success(result)
		}
		return printSummary(cmd, run.ID, summary)
	}

	var buf bytes.Buffer
	if err := audit.ExportCSV(&buf, actions, audit.Options{PermalinkBase: cfg.PermalinkBase, Provenance: opts.Provenance}); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
	}

	if opts.Output == "" {
		if opts.Format == "json" {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--format json requires --output or --summary", nil)
		}
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(opts.Output, buf.Bytes(), 0644); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("failed to write output: %v", err), nil)
	}
	result.Output = opts.Output

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d action(s) of run %s to %s\n", result.Actions, result.RunID, result.Output)
	return nil
}

func printSummary(cmd *cobra.Command, runID string, s audit.Summary) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s: %d action(s) on %d entit(ies)\n", runID, s.Actions, s.Entities)
	if len(s.ByKind) > 0 {
		fmt.Fprintln(w, "\nBy action:")
		for _, c := range s.ByKind {
			fmt.Fprintf(w, "  %-24s %d\n", c.Key, c.Count)
		}
	}
	if len(s.ByKey) > 0 {
		fmt.Fprintln(w, "\nBy deprecated key:")
		for _, c := range s.ByKey {
			fmt.Fprintf(w, "  %-24s %d\n", c.Key, c.Count)
		}
	}
	return nil
}
