package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// single writer: the flusher and the telemetry poller share one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaDroneState = `
CREATE TABLE IF NOT EXISTS drone_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    battery_pct INTEGER NOT NULL,
    temperature_c INTEGER NOT NULL,
    barometer_m REAL NOT NULL,
    speed_cm_s INTEGER NOT NULL,
    height_cm INTEGER NOT NULL,
    flight_time_s INTEGER NOT NULL,
    attitude TEXT NOT NULL,
    acceleration TEXT NOT NULL,
    errors TEXT,
    commands_issued INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaCommandEvents = `
CREATE TABLE IF NOT EXISTS command_events (
    session_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    command TEXT NOT NULL,
    response TEXT,
    sent_at TIMESTAMP NOT NULL,
    received_at TIMESTAMP,
    latency_ms REAL,
    timed_out BOOLEAN NOT NULL,
    send_error TEXT,
    decode_error TEXT,
    decoded TEXT,
    PRIMARY KEY (session_id, seq)
);
`

const indexCommandEventsSentAt = `
CREATE INDEX IF NOT EXISTS idx_command_events_sent_at ON command_events (sent_at);
`

const schemaOperators = `
CREATE TABLE IF NOT EXISTS operators (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE COLLATE NOCASE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaDroneState,
		schemaCommandEvents,
		indexCommandEventsSentAt,
		schemaOperators,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
