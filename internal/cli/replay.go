package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/opinionated/internal/config"
	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/ir"
	"github.com/roach88/opinionated/internal/osmio"
)

// maxReportedMismatches bounds the mismatches listed in a replay result.
const maxReportedMismatches = 50

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	RunID string
}

// ReplayMismatch is an entity whose replayed tags differ from the output.
type ReplayMismatch struct {
	Entity   string `json:"entity"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	RunID      string           `json:"run_id"`
	Input      string           `json:"input"`
	Output     string           `json:"output"`
	Entities   int64            `json:"entities"`
	Replayed   int64            `json:"replayed"`
	Mismatched int64            `json:"mismatched"`
	Mismatches []ReplayMismatch `json:"mismatches,omitempty"`
	Consistent bool             `json:"consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [input [output]]",
		Short: "Verify a run's output against its action ledger",
		Long: `Rebuild every entity's output tags from the input stream and the run's
persisted ledger, without consulting any rule, and compare them with the
output stream. Tag migrations are replayed from their recorded detail; label
additions are resolved against the label table.

Input and output default to the paths recorded with the run.

Exit codes:
  0 - Every entity replays to its output tags
  1 - One or more entities differ
  2 - Command error (database not found, unreadable stream, etc.)

Examples:
  opinionated replay
  opinionated replay --run 0190f6c2-... in.jsonl out.jsonl --format json`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	d := config.Defaults()
	cmd.Flags().String("db", d.DB, "path to SQLite database")
	cmd.Flags().String("labels", "", "label CSV (default: labels imported into the database)")
	cmd.Flags().String("label-key-prefix", d.LabelKeyPrefix, "prefix for label keys synthesized from the language")
	cmd.Flags().String("reference-key", d.ReferenceKey, "tag holding the knowledge-base reference")
	cmd.Flags().String("name-key", d.NameKey, "tag holding the primary name")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest run)")

	return cmd
}

func runReplay(opts *ReplayOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	cfg, err := loadConfig(opts.RootOptions, cmd, "db", "labels", "label-key-prefix", "reference-key", "name-key")
	if err != nil {
		return err
	}
	st, err := openExistingStore(formatter, cfg.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := resolveRun(ctx, formatter, st, opts.RunID)
	if err != nil {
		return err
	}
	input, output := run.Input, run.Output
	if len(args) > 0 {
		input = args[0]
	}
	if len(args) > 1 {
		output = args[1]
	}

	actions, err := st.ReadActions(ctx, run.ID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	labels, err := loadLabelTable(ctx, cfg, st)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}

	in, err := openInput(input, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	defer in.Close()
	out, err := openInput(output, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	defer out.Close()

	result := ReplayResult{RunID: run.ID, Input: input, Output: output}
	enricher := engine.NewEnricher(labels, cfg.ReferenceKey, cfg.NameKey)
	if err := compareReplay(&result, osmio.NewReader(in), osmio.NewReader(out), engine.GroupByEntity(actions), enricher); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeReadFailed, err.Error(), nil)
	}
	result.Consistent = result.Mismatched == 0
	formatter.VerboseLog("Replayed %d of %d entities with %d action(s)", result.Replayed, result.Entities, len(actions))

	if opts.Format == "json" {
		if result.Consistent {
			if err := formatter.Success(result); err != nil {
				return err
			}
		} else if err := formatter.Error(ErrCodeReplayFailed, fmt.Sprintf("%d entit(ies) differ", result.Mismatched), result); err != nil {
			return err
		}
	} else {
		printReplay(cmd.OutOrStdout(), result)
	}

	if !result.Consistent {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d entit(ies) differ", result.Mismatched), Reported: true}
	}
	return nil
}

// compareReplay walks the input and output streams in lockstep. Both must
// hold the same entities in the same order.
func compareReplay(result *ReplayResult, in, out engine.Source, groups map[engine.EntityKey][]ir.Action, enricher *engine.Enricher) error {
	for {
		src, err := in.Next()
		if errors.Is(err, io.EOF) {
			if _, err := out.Next(); !errors.Is(err, io.EOF) {
				return fmt.Errorf("output has more entities than input")
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("input: %w", err)
		}
		dst, err := out.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("output ends before %s/%d", src.Entity.Type, src.Entity.ID)
		}
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}

		key := engine.EntityKey{Type: src.Entity.Type, ID: src.Entity.ID}
		if got := (engine.EntityKey{Type: dst.Entity.Type, ID: dst.Entity.ID}); got != key {
			return fmt.Errorf("output has %s where input has %s", got, key)
		}
		result.Entities++

		acts := groups[key]
		if len(acts) > 0 {
			result.Replayed++
		}
		replayed, err := engine.ReplayTags(src.Entity.Tags, acts, enricher)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if !replayed.Equal(dst.Entity.Tags) {
			result.Mismatched++
			if len(result.Mismatches) < maxReportedMismatches {
				result.Mismatches = append(result.Mismatches, ReplayMismatch{
					Entity:   key.String(),
					Expected: ir.FormatTags(dst.Entity.Tags.Tags()...),
					Actual:   ir.FormatTags(replayed.Tags()...),
				})
			}
		}
	}
}

func printReplay(w io.Writer, result ReplayResult) {
	for _, m := range result.Mismatches {
		fmt.Fprintf(w, "✗ %s\n  output:   %s\n  replayed: %s\n", m.Entity, m.Expected, m.Actual)
	}
	if result.Mismatched > int64(len(result.Mismatches)) {
		fmt.Fprintf(w, "  ... and %d more\n", result.Mismatched-int64(len(result.Mismatches)))
	}
	fmt.Fprintf(w, "\nReplay Summary: %d entities, %d replayed, %d mismatched (run %s)\n",
		result.Entities, result.Replayed, result.Mismatched, result.RunID)
	if result.Consistent {
		fmt.Fprintln(w, "✓ Output matches the ledger")
	}
}
