package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/opinionated/internal/compiler"
	"github.com/roach88/opinionated/internal/config"
	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/ir"
	"github.com/roach88/opinionated/internal/metrics"
	"github.com/roach88/opinionated/internal/osmio"
	"github.com/roach88/opinionated/internal/store"
)

// runFlags are the flags shared by commands that build a run context.
var runFlags = []string{
	"rules", "labels", "db", "workers", "buffer",
	"reference-key", "name-key", "label-key-prefix", "prioritize-specific",
}

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Output string

	// RunIDGenerator allows overriding run ids (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator

	// Now allows overriding the wall clock (for testing).
	Now func() time.Time
}

// MigrateResult summarizes a completed run.
type MigrateResult struct {
	RunID             string       `json:"run_id"`
	Input             string       `json:"input"`
	Output            string       `json:"output"`
	RuleSetHash       string       `json:"rule_set_hash"`
	Rules             int          `json:"rules"`
	Labels            int          `json:"labels"`
	Processed         int64        `json:"processed"`
	Mutated           int64        `json:"mutated"`
	Actions           int          `json:"actions"`
	MissingReferences int64        `json:"missing_references"`
	Written           int64        `json:"written"`
	Stats             engine.Stats `json:"stats"`
}

// addRunFlags registers the run context flags. Defaults mirror config.Defaults
// so that --help shows them; unset flags never override file or environment.
func addRunFlags(cmd *cobra.Command) {
	d := config.Defaults()
	cmd.Flags().String("rules", "", "rule source: .csv, .cue or CUE package directory")
	cmd.Flags().String("labels", "", "label CSV (default: labels imported into the database)")
	cmd.Flags().String("db", d.DB, "path to SQLite database")
	cmd.Flags().Int("workers", d.Workers, "concurrent transforms")
	cmd.Flags().Int("buffer", d.Buffer, "entities in flight when workers > 1")
	cmd.Flags().String("reference-key", d.ReferenceKey, "tag holding the knowledge-base reference")
	cmd.Flags().String("name-key", d.NameKey, "tag holding the primary name")
	cmd.Flags().String("label-key-prefix", d.LabelKeyPrefix, "prefix for label keys synthesized from the language")
	cmd.Flags().Bool("prioritize-specific", d.PrioritizeSpecific, "order fixed-value rules before carry rules for the same key")
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return newMigrateCommand(&MigrateOptions{RootOptions: rootOpts})
}

func newMigrateCommand(opts *MigrateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate <input>",
		Short: "Rewrite deprecated tags in an entity stream",
		Long: `Rewrite deprecated tags and add missing name labels.

The input is a JSON Lines entity stream ("-" reads stdin), grouped by type
and ordered by id. The output is written to a temporary file and renamed into
place only when the whole pass succeeds. The run and its action ledger are
then persisted to the database.

Example:
  opinionated migrate --rules rules.csv --labels labels.csv -o out.jsonl in.jsonl
  opinionated migrate --config opinionated.yaml --workers 4 -o out.jsonl in.jsonl`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, args[0], cmd)
		},
	}

	addRunFlags(cmd)
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file after the run")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output path (required)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runMigrate(opts *MigrateOptions, input string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, cmd, append(runFlags, "metrics-file")...)
	if err != nil {
		return err
	}

	rules, err := loadRuleTable(cfg)
	if err != nil {
		exit := ExitCommandError
		if compiler.IsMalformedRule(err) {
			exit = ExitFailure
		}
		return formatter.Fail(exit, ruleErrorCode(err), err.Error(), nil)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DB)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	labels, err := loadLabelTable(ctx, cfg, st)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}

	recorder, err := metrics.NewRecorder()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create metrics", err)
	}
	recorder.SetTables(rules.Table.Len(), labels.Len())

	p := engine.NewPipeline(engine.RunContext{
		Rules:        rules.Table,
		Labels:       labels,
		ReferenceKey: cfg.ReferenceKey,
		NameKey:      cfg.NameKey,
	}, engine.WithObserver(recorder))

	in, err := openInput(input, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	defer in.Close()

	out, err := osmio.Create(opts.Output)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	started := now()
	slog.Info("migration starting", "input", input, "output", opts.Output, "workers", cfg.Workers)

	if err := p.Run(ctx, osmio.NewReader(in), out, engine.RunOptions{Workers: cfg.Workers, Buffer: cfg.Buffer}); err != nil {
		out.Abort()
		if errors.Is(err, context.Canceled) {
			slog.Info("received signal, output discarded")
		}
		return formatter.Fail(ExitCommandError, ErrCodePipelineAbort, fmt.Sprintf("migration aborted, output discarded: %v", err), nil)
	}
	if err := out.Commit(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
	}

	gen := opts.RunIDGenerator
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	stats := p.Stats()
	actions := p.Ledger().Actions()
	run := store.Run{
		ID:            gen.Generate(),
		Input:         input,
		Output:        opts.Output,
		RuleSetHash:   rules.Table.Hash(),
		RuleCount:     rules.Table.Len(),
		LabelCount:    labels.Len(),
		Workers:       cfg.Workers,
		EngineVersion: EngineVersion,
		LedgerVersion: ir.LedgerVersion,
		StatsValue:    stats,
	}
	if err := st.WriteRun(ctx, run, actions); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("failed to persist run: %v", err), nil)
	}

	recorder.Finish(started, now())
	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
	}

	result := MigrateResult{
		RunID:             run.ID,
		Input:             input,
		Output:            opts.Output,
		RuleSetHash:       run.RuleSetHash,
		Rules:             run.RuleCount,
		Labels:            run.LabelCount,
		Processed:         stats.Processed(),
		Mutated:           stats.Mutated(),
		Actions:           len(actions),
		MissingReferences: stats.MissingReferences,
		Written:           out.Written(),
		Stats:             stats,
	}
	slog.Info("migration complete", "run", run.ID, "processed", result.Processed, "mutated", result.Mutated, "actions", result.Actions)

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s\n", result.RunID)
	fmt.Fprintf(w, "  processed: %d\n", result.Processed)
	fmt.Fprintf(w, "  mutated:   %d\n", result.Mutated)
	fmt.Fprintf(w, "  actions:   %d\n", result.Actions)
	fmt.Fprintf(w, "  missing references: %d\n", result.MissingReferences)
	fmt.Fprintf(w, "Output written to %s\n", result.Output)
	return nil
}
