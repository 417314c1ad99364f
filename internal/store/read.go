package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/opinionated/internal/ir"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `
	r.id, r.input, r.output, r.rule_set_hash, r.rule_count, r.label_count, r.workers,
	r.engine_version, r.ledger_version, r.stats,
	(SELECT COUNT(*) FROM actions a WHERE a.run_id = r.id)
`

// ReadRun returns one run.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// LatestRun returns the most recent run. Run ids are UUIDv7, so the
// greatest id is the latest.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r ORDER BY r.id COLLATE BINARY DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

// ListRuns returns all runs ordered by id.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs r ORDER BY r.id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	err := row.Scan(
		&run.ID, &run.Input, &run.Output, &run.RuleSetHash, &run.RuleCount, &run.LabelCount, &run.Workers,
		&run.EngineVersion, &run.LedgerVersion, &run.Stats, &run.ActionCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

const actionColumns = `
	seq, entity_type, entity_id, trigger_key, trigger_value, action_kind, detail, rule_kind, rule_source
`

// ReadActions returns a run's ledger in seq order.
func (s *Store) ReadActions(ctx context.Context, runID string) ([]ir.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+actionColumns+`
		FROM actions
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	return scanActions(rows)
}

// ReadEntityActions returns the actions one entity received in a run, in
// seq order.
func (s *Store) ReadEntityActions(ctx context.Context, runID string, typ ir.EntityType, id int64) ([]ir.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+actionColumns+`
		FROM actions
		WHERE run_id = ? AND entity_type = ? AND entity_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID, typ.String(), id)
	if err != nil {
		return nil, fmt.Errorf("query entity actions: %w", err)
	}
	return scanActions(rows)
}

func scanActions(rows *sql.Rows) ([]ir.Action, error) {
	defer rows.Close()

	actions := []ir.Action{}
	for rows.Next() {
		var a ir.Action
		var typ, kind string
		if err := rows.Scan(
			&a.Seq, &typ, &a.EntityID, &a.TriggerKey, &a.TriggerValue,
			&kind, &a.Detail, &a.RuleKind, &a.RuleSource,
		); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		t, err := ir.ParseEntityType(typ)
		if err != nil {
			return nil, fmt.Errorf("scan action %d: %w", a.Seq, err)
		}
		a.EntityType = t
		a.Kind = ir.ActionKind(kind)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}
