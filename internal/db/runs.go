package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunRow is one export of consolidated exclusions.
type RunRow struct {
	RunID         string    `json:"run_id"`
	Source        string    `json:"source"`
	BufferSeconds int64     `json:"buffer_seconds"`
	Generated     time.Time `json:"generated"`
	RecordCount   int       `json:"record_count"`
}

// RecordRow is one consolidated interval belonging to a run.
type RecordRow struct {
	Mast   string    `json:"mast"`
	Sensor string    `json:"sensor"`
	Reason string    `json:"reason"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// SaveRun inserts a run and its records in a single transaction.
func (db *DB) SaveRun(ctx context.Context, run RunRow, records []RecordRow) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err == nil {
			err = rbErr
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO exclusion_runs (run_id, source, buffer_seconds, generated_unix, record_count)
		VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.Source, run.BufferSeconds, run.Generated.Unix(), len(records),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO exclusion_records (run_id, mast, sensor, reason, start_unix, end_unix)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, run.RunID, r.Mast, r.Sensor, r.Reason, r.Start.Unix(), r.End.Unix()); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunRow, error) {
	query := `SELECT run_id, source, buffer_seconds, generated_unix, record_count
		FROM exclusion_runs ORDER BY generated_unix DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRow
	for rows.Next() {
		var r RunRow
		var generated int64
		if err := rows.Scan(&r.RunID, &r.Source, &r.BufferSeconds, &generated, &r.RecordCount); err != nil {
			return nil, err
		}
		r.Generated = time.Unix(generated, 0).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunRecords returns the records of a run ordered as they were exported.
func (db *DB) RunRecords(ctx context.Context, runID string) ([]RecordRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT mast, sensor, reason, start_unix, end_unix
		FROM exclusion_records WHERE run_id = ? ORDER BY record_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RecordRow
	for rows.Next() {
		var r RecordRow
		var start, end int64
		if err := rows.Scan(&r.Mast, &r.Sensor, &r.Reason, &start, &end); err != nil {
			return nil, err
		}
		r.Start = time.Unix(start, 0).UTC()
		r.End = time.Unix(end, 0).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
