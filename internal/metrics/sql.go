package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLSink stores records in a metric_records table. SQLite and Postgres
// share the schema; only placeholders and DDL types differ.
type SQLSink struct {
	db     *sql.DB
	driver string
}

const createMetricRecords = `
CREATE TABLE IF NOT EXISTS metric_records (
	id              %s,
	ts_unix_nano    BIGINT NOT NULL,
	run_id          TEXT NOT NULL,
	model_id        TEXT NOT NULL,
	identity        TEXT NOT NULL,
	objective       TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	latency_ns      BIGINT NOT NULL,
	response_length INTEGER NOT NULL,
	estimated_cost  DOUBLE PRECISION NOT NULL
)`

var metricIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_metric_records_ts ON metric_records(ts_unix_nano)`,
	`CREATE INDEX IF NOT EXISTS idx_metric_records_run ON metric_records(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_metric_records_identity ON metric_records(identity, ts_unix_nano)`,
}

func newSQLSink(db *sql.DB, driver string) (*SQLSink, error) {
	s := &SQLSink{db: db, driver: driver}
	if err := s.createSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create metrics schema: %w", err)
	}
	return s, nil
}

func (s *SQLSink) createSchema(ctx context.Context) error {
	idCol := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "pgx" {
		idCol = "BIGSERIAL PRIMARY KEY"
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createMetricRecords, idCol)); err != nil {
		return err
	}
	for _, q := range metricIndexes {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// ph renders the n-th (1-based) placeholder.
func (s *SQLSink) ph(n int) string {
	if s.driver == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLSink) Write(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cols := []string{"ts_unix_nano", "run_id", "model_id", "identity", "objective", "status", "latency_ns", "response_length", "estimated_cost"}
	phs := make([]string, len(cols))
	for i := range cols {
		phs[i] = s.ph(i + 1)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO metric_records (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(phs, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.Timestamp.UnixNano(), r.RunID, r.ModelID, r.Identity, r.Objective, r.Status,
			int64(r.Latency), r.ResponseLength, r.EstimatedCost,
		); err != nil {
			return fmt.Errorf("insert metric record: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLSink) Query(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, s.ph(len(args))))
	}
	if f.RunID != "" {
		add("run_id = %s", f.RunID)
	}
	if f.Identity != "" {
		add("identity = %s", f.Identity)
	}
	if f.ModelID != "" {
		add("LOWER(model_id) = LOWER(%s)", f.ModelID)
	}
	if !f.Since.IsZero() {
		add("ts_unix_nano >= %s", f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		add("ts_unix_nano < %s", f.Until.UnixNano())
	}

	q := "SELECT ts_unix_nano, run_id, model_id, identity, objective, status, latency_ns, response_length, estimated_cost FROM metric_records"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metric records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			ts, lat int64
		)
		if err := rows.Scan(&ts, &r.RunID, &r.ModelID, &r.Identity, &r.Objective, &r.Status, &lat, &r.ResponseLength, &r.EstimatedCost); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(0, ts)
		r.Latency = time.Duration(lat)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLSink) Close() error { return s.db.Close() }
