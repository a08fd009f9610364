// Package postgres provides the PostgreSQL-backed Store. All operations share
// a single [pgxpool.Pool] and are safe for concurrent use. [Migrate] runs on
// every start and is idempotent.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT         PRIMARY KEY,
    doctor_id     TEXT         NOT NULL,
    patient_id    TEXT         NOT NULL,
    created_at    TIMESTAMPTZ  NOT NULL,
    updated_at    TIMESTAMPTZ  NOT NULL,
    stage         TEXT         NOT NULL,
    audio         BYTEA,
    audio_hash    TEXT         NOT NULL DEFAULT '',
    duplicate_of  TEXT         NOT NULL DEFAULT '',
    language      TEXT         NOT NULL DEFAULT '',
    transcript    TEXT         NOT NULL DEFAULT '',
    segments      JSONB        NOT NULL DEFAULT '[]',
    note          JSONB        NOT NULL DEFAULT '{}',
    analysis      JSONB        NOT NULL DEFAULT '{}',
    edit_history  JSONB        NOT NULL DEFAULT '[]',
    export_count  INTEGER      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at
    ON sessions (updated_at DESC);

CREATE INDEX IF NOT EXISTS idx_sessions_audio_hash
    ON sessions (audio_hash);
`

const ddlPeople = `
CREATE TABLE IF NOT EXISTS doctors (
    id    TEXT  PRIMARY KEY,
    name  TEXT  NOT NULL
);

CREATE TABLE IF NOT EXISTS patients (
    id    TEXT  PRIMARY KEY,
    name  TEXT  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patients_name ON patients (name);
`

// Migrate creates or ensures all required tables and indexes exist. Safe to
// call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlSessions,
		ddlPeople,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
