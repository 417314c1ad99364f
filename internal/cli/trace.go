package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/opinionated/internal/config"
	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/ir"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	RunID string
}

// TraceEvent is one action in an entity's history.
type TraceEvent struct {
	Seq          int64  `json:"seq"`
	Action       string `json:"action"`
	TriggerKey   string `json:"trigger_key"`
	TriggerValue string `json:"trigger_value"`
	Detail       string `json:"detail"`
	RuleKind     string `json:"rule_kind,omitempty"`
	RuleSource   string `json:"rule_source,omitempty"`
}

// TraceResult holds the history of one entity within a run.
type TraceResult struct {
	RunID    string       `json:"run_id"`
	Entity   string       `json:"entity"`
	Timeline []TraceEvent `json:"timeline"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <type>/<id>",
		Short: "Show the actions recorded for one entity",
		Long: `Show the actions a run recorded for one entity, in ledger order, with the
rule that produced each tag migration.

Examples:
  opinionated trace node/123
  opinionated trace way/42 --run 0190f6c2-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().String("db", config.Defaults().DB, "path to SQLite database")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest run)")

	return cmd
}

// parseEntityKey parses "node/123".
func parseEntityKey(s string) (engine.EntityKey, error) {
	typ, id, ok := strings.Cut(s, "/")
	if !ok {
		return engine.EntityKey{}, fmt.Errorf("invalid entity %q: want <type>/<id>", s)
	}
	t, err := ir.ParseEntityType(typ)
	if err != nil {
		return engine.EntityKey{}, err
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return engine.EntityKey{}, fmt.Errorf("invalid entity id %q", id)
	}
	return engine.EntityKey{Type: t, ID: n}, nil
}

func runTrace(opts *TraceOptions, entity string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	key, err := parseEntityKey(entity)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	cfg, err := loadConfig(opts.RootOptions, cmd, "db")
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
	actions, err := st.ReadEntityActions(ctx, run.ID, key.Type, key.ID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}

	result := TraceResult{RunID: run.ID, Entity: key.String(), Timeline: make([]TraceEvent, 0, len(actions))}
	for _, a := range actions {
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:          a.Seq,
			Action:       string(a.Kind),
			TriggerKey:   a.TriggerKey,
			TriggerValue: a.TriggerValue,
			Detail:       a.Detail,
			RuleKind:     a.RuleKind,
			RuleSource:   a.RuleSource,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	if len(result.Timeline) == 0 {
		fmt.Fprintf(w, "No actions for %s in run %s\n", result.Entity, result.RunID)
		return nil
	}
	fmt.Fprintf(w, "%s in run %s\n\n", result.Entity, result.RunID)
	for _, e := range result.Timeline {
		fmt.Fprintf(w, "[%d] %s %s=%s -> %s", e.Seq, e.Action, e.TriggerKey, e.TriggerValue, e.Detail)
		if e.RuleSource != "" {
			fmt.Fprintf(w, " (rule %s, %s)", e.RuleSource, e.RuleKind)
		}
		fmt.Fprintln(w)
	}
	return nil
}
