package store

import (
	"context"
	"fmt"

	"github.com/roach88/opinionated/internal/ir"
)

// Run describes one completed migration run.
type Run struct {
	ID            string `json:"id"`
	Input         string `json:"input"`
	Output        string `json:"output"`
	RuleSetHash   string `json:"rule_set_hash"`
	RuleCount     int    `json:"rule_count"`
	LabelCount    int    `json:"label_count"`
	Workers       int    `json:"workers"`
	EngineVersion string `json:"engine_version"`
	LedgerVersion string `json:"ledger_version"`

	// Stats is the JSON form of the run statistics. WriteRun marshals
	// StatsValue into it when StatsValue is set.
	Stats      string `json:"stats"`
	StatsValue any    `json:"-"`

	// ActionCount is filled in by reads.
	ActionCount int `json:"action_count"`
}

// WriteRun persists a run and its ledger in a single transaction.
//
// Each action is stored under ir.ActionID(run.ID, action). Writes use
// ON CONFLICT DO NOTHING, so writing the same run twice is a no-op; a
// failure leaves neither the run nor any of its actions behind.
func (s *Store) WriteRun(ctx context.Context, run Run, actions []ir.Action) error {
	stats := run.Stats
	if run.StatsValue != nil || stats == "" {
		var err error
		if stats, err = marshalStats(run.StatsValue); err != nil {
			return fmt.Errorf("write run: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, input, output, rule_set_hash, rule_count, label_count, workers, engine_version, ledger_version, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Input,
		run.Output,
		run.RuleSetHash,
		run.RuleCount,
		run.LabelCount,
		run.Workers,
		run.EngineVersion,
		run.LedgerVersion,
		stats,
	)
	if err != nil {
		return fmt.Errorf("write run: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO actions
		(id, run_id, seq, entity_type, entity_id, trigger_key, trigger_value, action_kind, detail, rule_kind, rule_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write run: prepare actions: %w", err)
	}
	defer stmt.Close()

	for _, a := range actions {
		id, err := ir.ActionID(run.ID, a)
		if err != nil {
			return fmt.Errorf("write run: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			id,
			run.ID,
			a.Seq,
			a.EntityType.String(),
			a.EntityID,
			a.TriggerKey,
			a.TriggerValue,
			string(a.Kind),
			a.Detail,
			a.RuleKind,
			a.RuleSource,
		); err != nil {
			return fmt.Errorf("write run: insert action %d: %w", a.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	return nil
}
