package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/opinionated/internal/config"
	"github.com/roach88/opinionated/internal/source"
	"github.com/roach88/opinionated/internal/store"
)

// LabelImportResult summarizes a label import.
type LabelImportResult struct {
	Source string `json:"source"`
	Rows   int    `json:"rows"`
	New    int    `json:"new"`
	Total  int    `json:"total"`
}

// NewLabelsCommand creates the labels command group.
func NewLabelsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Manage the label table",
	}
	cmd.AddCommand(newLabelsImportCommand(rootOpts))
	return cmd
}

func newLabelsImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <labels.csv>",
		Short: "Import label rows into the database",
		Long: `Import a label CSV (header id,lang,label[,key]) into the database.

Ids may be full entity URIs; the URI prefix is stripped. Rows without a key
get one synthesized from the language (name:<lang> by default). Re-importing a
row for the same reference and key updates its label and keeps its position,
so the table order stays that of the first import.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLabelsImport(rootOpts, args[0], cmd)
		},
	}

	d := config.Defaults()
	cmd.Flags().String("db", d.DB, "path to SQLite database")
	cmd.Flags().String("label-key-prefix", d.LabelKeyPrefix, "prefix for label keys synthesized from the language")

	return cmd
}

func runLabelsImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, cmd, "db", "label-key-prefix")
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("labels file not found: %s", path), nil)
	}
	defer f.Close()

	rows, err := source.ReadLabelCSV(f, cfg.LabelKeyPrefix)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeLoadFailed, err.Error(), nil)
	}

	st, err := store.Open(cfg.DB)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	defer st.Close()

	ctx := context.Background()
	added, err := st.ImportLabels(ctx, rows)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	total, err := st.CountLabels(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}

	result := LabelImportResult{Source: path, Rows: len(rows), New: added, Total: total}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d label row(s) from %s (%d new, %d total)\n",
		result.Rows, result.Source, result.New, result.Total)
	return nil
}
