package db

import (
	"fmt"
)

// sqliteSchema is the full SQLite schema. AUTOINCREMENT keeps ids of deleted
// rows from being handed out again.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS lab_codes (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    subject    TEXT NOT NULL CHECK (subject <> ''),
    lab_number TEXT NOT NULL CHECK (lab_number <> ''),
    variant    TEXT NOT NULL CHECK (variant <> ''),
    code       TEXT NOT NULL CHECK (code <> ''),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// postgresSchema is the Postgres equivalent of sqliteSchema.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS lab_codes (
    id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    subject    TEXT NOT NULL CHECK (subject <> ''),
    lab_number TEXT NOT NULL CHECK (lab_number <> ''),
    variant    TEXT NOT NULL CHECK (variant <> ''),
    code       TEXT NOT NULL CHECK (code <> ''),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

// migrations is a list of statements applied in order after schema creation.
// Each migration must be idempotent and valid in every dialect. Append new
// migrations at the end.
var migrations = []string{
	// Migration 1: browse queries filter by subject and sort by lab/variant.
	`CREATE INDEX IF NOT EXISTS idx_lab_codes_subject
	     ON lab_codes(subject, lab_number, variant)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist,
// then runs the migrations.
func EnsureSchema(db *DB) error {
	schema := sqliteSchema
	if db.Dialect == DialectPostgres {
		schema = postgresSchema
	}

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
