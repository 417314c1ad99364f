package store

import (
	"context"
	"fmt"

	"github.com/roach88/opinionated/internal/ir"
)

// ImportLabels upserts label rows. Rows keep the position of their first
// import; re-importing a (reference_id, key) pair updates its label.
// Returns the number of rows that were new.
func (s *Store) ImportLabels(ctx context.Context, rows []ir.LabelRow) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("import labels: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM labels`).Scan(&next); err != nil {
		return 0, fmt.Errorf("import labels: max seq: %w", err)
	}

	var before int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM labels`).Scan(&before); err != nil {
		return 0, fmt.Errorf("import labels: count: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO labels (reference_id, key, lang, label, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(reference_id, key) DO UPDATE SET lang = excluded.lang, label = excluded.label
	`)
	if err != nil {
		return 0, fmt.Errorf("import labels: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		next++
		if _, err := stmt.ExecContext(ctx, r.ReferenceID, r.Key, r.Lang, r.Label, next); err != nil {
			return 0, fmt.Errorf("import labels: %s %s: %w", r.ReferenceID, r.Key, err)
		}
	}

	var after int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM labels`).Scan(&after); err != nil {
		return 0, fmt.Errorf("import labels: count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("import labels: commit: %w", err)
	}
	return after - before, nil
}

// LoadLabels returns every label row in import order.
func (s *Store) LoadLabels(ctx context.Context) ([]ir.LabelRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reference_id, lang, key, label
		FROM labels
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	labels := []ir.LabelRow{}
	for rows.Next() {
		var r ir.LabelRow
		if err := rows.Scan(&r.ReferenceID, &r.Lang, &r.Key, &r.Label); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return labels, nil
}

// CountLabels returns the number of stored label rows.
func (s *Store) CountLabels(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM labels`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count labels: %w", err)
	}
	return n, nil
}
