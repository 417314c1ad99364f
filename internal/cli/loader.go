package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/opinionated/internal/compiler"
	"github.com/roach88/opinionated/internal/config"
	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/ir"
	"github.com/roach88/opinionated/internal/source"
	"github.com/roach88/opinionated/internal/store"
)

// Error codes for CLI responses. Malformed rules report the compiler's own
// codes (E201-E209).
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeReadFailed    = "E002" // Input unreadable
	ErrCodeNoRules       = "E003" // Rule source holds no rules
	ErrCodeLoadFailed    = "E004" // Rule or label source failed to load
	ErrCodeNotFound      = "E005" // Path, run or entity not found
	ErrCodePipelineAbort = "E006" // Pass aborted, output discarded
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeStoreFailed   = "E008" // Database error
	ErrCodeReplayFailed  = "E009" // Ledger replay does not reproduce the output
	ErrCodeTestFailed    = "E010" // One or more scenarios failed
)

// ruleErrorCode returns the code to report for a rule loading error.
func ruleErrorCode(err error) string {
	var me *compiler.MalformedRuleError
	if errors.As(err, &me) {
		return me.Code
	}
	return ErrCodeLoadFailed
}

// loadedRules is a rule table together with the diagnostics found while
// building it.
type loadedRules struct {
	Table  *engine.RuleTable
	Format string
	Chains []compiler.ChainWarning
}

// loadRuleTable loads, orders and indexes the configured rule source. The
// first malformed rule fails the load.
func loadRuleTable(cfg config.Config) (*loadedRules, error) {
	if cfg.Rules == "" {
		return nil, fmt.Errorf("no rule source configured (set --rules or %q)", config.KeyRules)
	}

	res, errs := compiler.LoadRules(cfg.Rules, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}

	rules := res.Rules
	if cfg.PrioritizeSpecific {
		rules = compiler.PrioritizeSpecific(rules)
	}
	table, err := engine.NewRuleTable(rules)
	if err != nil {
		return nil, err
	}

	slog.Info("rules loaded",
		"source", cfg.Rules,
		"format", res.Format,
		"count", table.Len(),
		"keys", table.Keys(),
	)
	for _, s := range table.Shadowed() {
		slog.Warn("rule can never match", "rule", s.Rule.String(), "shadowed_by", s.By.String())
	}
	chains := compiler.AnalyzeChains(table.Rules())
	for _, c := range chains {
		slog.Warn("rule chain is not followed within a pass", "path", c.Path, "level", c.Level)
	}

	return &loadedRules{Table: table, Format: res.Format, Chains: chains}, nil
}

// loadLabelRows reads the label table: from the configured label CSV when
// set, otherwise from the labels previously imported into st.
func loadLabelRows(ctx context.Context, cfg config.Config, st *store.Store) ([]ir.LabelRow, error) {
	if cfg.Labels != "" {
		f, err := os.Open(cfg.Labels)
		if err != nil {
			return nil, fmt.Errorf("open labels: %w", err)
		}
		defer f.Close()
		rows, err := source.ReadLabelCSV(f, cfg.LabelKeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("read labels %s: %w", cfg.Labels, err)
		}
		return rows, nil
	}
	if st == nil {
		return nil, nil
	}
	return st.LoadLabels(ctx)
}

// loadLabelTable builds the label table for a run.
func loadLabelTable(ctx context.Context, cfg config.Config, st *store.Store) (*engine.LabelTable, error) {
	rows, err := loadLabelRows(ctx, cfg, st)
	if err != nil {
		return nil, err
	}
	labels := engine.NewLabelTable(rows)
	slog.Info("labels loaded", "rows", labels.Len(), "references", labels.References())
	return labels, nil
}

// openInput opens an entity stream. "-" reads standard input.
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}
