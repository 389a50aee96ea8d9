// Package sqlite implements store.ScheduleStore and store.ExecutionLogStore
// against a local SQLite file via the pure-Go modernc.org/sqlite driver,
// mirroring the teacher's "standalone" deployment mode where Postgres is
// Not configured.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	task_name TEXT NOT NULL,
	cron_expression TEXT NOT NULL,
	enabled INTEGER NOT NULL,
	args TEXT,
	kwargs TEXT,
	description TEXT,
	category TEXT,
	tags TEXT,
	execution_policy TEXT NOT NULL,
	auto_generated_name INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedules_name ON schedules (name);

CREATE TABLE IF NOT EXISTS execution_logs (
	id TEXT PRIMARY KEY,
	schedule_id TEXT,
	task_name TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL,
	result TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_execution_logs_schedule_started
	ON execution_logs (schedule_id, started_at DESC);

CREATE TABLE IF NOT EXISTS listed_info (
	date TEXT NOT NULL,
	code TEXT NOT NULL,
	company_name TEXT NOT NULL,
	market_code TEXT,
	market_name TEXT,
	sector_code_17 TEXT,
	sector_code_33 TEXT,
	PRIMARY KEY (date, code)
);
`

// OpenDB opens (creating if necessary) a SQLite database file at path and
// applies the schema.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	slog.Info("sqlite store ready", "path", path)
	return db, nil
}
