package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/opinionated/internal/config"
	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/store"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List persisted migration runs",
		Long: `List the migration runs recorded in the database, oldest first.

Run ids are time-ordered, so the last line is the most recent run, which is
also the default for export, trace and replay.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(rootOpts, cmd)
		},
	}

	cmd.Flags().String("db", config.Defaults().DB, "path to SQLite database")
	return cmd
}

func runRuns(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, cmd, "db")
	if err != nil {
		return err
	}
	st, err := openExistingStore(formatter, cfg.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}

	if opts.Format == "json" {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tINPUT\tOUTPUT\tRULES\tPROCESSED\tMUTATED\tACTIONS")
	for _, r := range runs {
		var stats engine.Stats
		if err := store.UnmarshalStats(r.Stats, &stats); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("run %s: %v", r.ID, err), nil)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.Input, r.Output, r.RuleCount, stats.Processed(), stats.Mutated(), r.ActionCount)
	}
	return tw.Flush()
}

// openExistingStore opens a database that must already exist, so that read
// commands do not create an empty one by accident.
func openExistingStore(formatter *OutputFormatter, path string) (*store.Store, error) {
	st, err := store.OpenExisting(path)
	if errors.Is(err, store.ErrDatabaseNotFound) {
		return nil, formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	return st, nil
}

// resolveRun reads the run named by id, or the most recent run when id is
// empty.
func resolveRun(ctx context.Context, formatter *OutputFormatter, st *store.Store, id string) (store.Run, error) {
	var (
		run store.Run
		err error
	)
	if id == "" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.ReadRun(ctx, id)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		msg := "no runs recorded"
		if id != "" {
			msg = fmt.Sprintf("run not found: %s", id)
		}
		return store.Run{}, formatter.Fail(ExitCommandError, ErrCodeNotFound, msg, nil)
	}
	if err != nil {
		return store.Run{}, formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	return run, nil
}
