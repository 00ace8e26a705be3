// Package history stores reminder lifecycle events in SQLite and prunes
// them by age and count.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pereryv/internal/events"
)

// DB wraps sql.DB for the reminder event log.
type DB struct {
	*sql.DB
}

// New opens the database at path and runs migrations.
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reminder_events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			detail TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminder_events_created_at
			ON reminder_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reminder_events_kind
			ON reminder_events(kind)`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// Record inserts an event.
func (db *DB) Record(ctx context.Context, e events.Event) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO reminder_events (id, kind, detail, created_at)
		VALUES (?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Detail, e.At.UTC())
	return err
}

// Recent returns the newest events, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, detail, created_at
		FROM reminder_events
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Detail, &e.At); err != nil {
			return nil, err
		}
		e.Kind = events.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DayCount is an event count for one day and kind.
type DayCount struct {
	Day   string `json:"day"`
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}

// CountsByDay returns per-day, per-kind counts for the last N days.
func (db *DB) CountsByDay(ctx context.Context, days int) ([]DayCount, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := db.QueryContext(ctx, `
		SELECT date(created_at) AS day, kind, COUNT(*)
		FROM reminder_events
		WHERE created_at >= ?
		GROUP BY day, kind
		ORDER BY day DESC, kind`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var c DayCount
		if err := rows.Scan(&c.Day, &c.Kind, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountEvents returns the total number of stored events.
func (db *DB) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reminder_events`).Scan(&n)
	return n, err
}

// DeleteOlderThan removes events created before the cutoff.
func (db *DB) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM reminder_events WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneToLimit keeps only the newest max events.
func (db *DB) PruneToLimit(ctx context.Context, max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	res, err := db.ExecContext(ctx, `
		DELETE FROM reminder_events
		WHERE id NOT IN (
			SELECT id FROM reminder_events
			ORDER BY created_at DESC, id
			LIMIT ?
		)`, max)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetTableNames returns the tables included in exports.
func (db *DB) GetTableNames(ctx context.Context) ([]string, error) {
	return []string{"reminder_events"}, nil
}

// GetTableData returns all rows of a table as maps, plus the column order.
func (db *DB) GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error) {
	if tableName != "reminder_events" {
		return nil, nil, fmt.Errorf("unknown table %q", tableName)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, detail, created_at
		FROM reminder_events
		ORDER BY created_at`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns := []string{"id", "kind", "detail", "created_at"}
	var data []map[string]interface{}
	for rows.Next() {
		var id, kind, detail string
		var createdAt time.Time
		if err := rows.Scan(&id, &kind, &detail, &createdAt); err != nil {
			return nil, nil, err
		}
		data = append(data, map[string]interface{}{
			"id":         id,
			"kind":       kind,
			"detail":     detail,
			"created_at": createdAt,
		})
	}
	return data, columns, rows.Err()
}

// GetDB returns the underlying sql.DB for custom queries.
func (db *DB) GetDB() *sql.DB {
	return db.DB
}

// Ping checks the database connection for readiness probes.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}
