package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Migration is one forward schema step. AppliedAt and IsApplied are filled
// by Migrator.Status.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	AppliedAt time.Time
	IsApplied bool
}

// Migrations returns the schema steps in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_accounts", UpSQL: createAccounts},
		{Version: 2, Name: "create_content_records", UpSQL: createContentRecords},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// 001 ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

const createAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id VARCHAR(16) PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    role VARCHAR(10) NOT NULL,
    password_hash TEXT NOT NULL,
    credits INTEGER NOT NULL DEFAULT 0,
    is_premium BOOLEAN NOT NULL DEFAULT FALSE,
    is_locked BOOLEAN NOT NULL DEFAULT FALSE,
    profile JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('STUDENT', 'ADMIN')),
    CONSTRAINT valid_credits CHECK (credits >= 0)
);

CREATE INDEX IF NOT EXISTS idx_accounts_role ON accounts(role);
`

// ══════════════════════════════════════════════════════════════════════════════
// 002 CONTENT RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const createContentRecords = `
CREATE TABLE IF NOT EXISTS content_records (
    key TEXT PRIMARY KEY,
    id VARCHAR(64) NOT NULL,
    title TEXT NOT NULL,
    subtitle TEXT NOT NULL,
    body TEXT NOT NULL,
    content_type VARCHAR(20) NOT NULL,
    language VARCHAR(8) NOT NULL,
    subject_name VARCHAR(100) NOT NULL DEFAULT '',
    selector JSONB NOT NULL DEFAULT '{}'::jsonb,
    source VARCHAR(10) NOT NULL DEFAULT 'generated',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_source CHECK (source IN ('generated', 'manual'))
);

-- Prefix scans for storage stats ("lesson/", "chapters/").
CREATE INDEX IF NOT EXISTS idx_content_records_key_pattern ON content_records(key text_pattern_ops);
CREATE INDEX IF NOT EXISTS idx_content_records_type ON content_records(content_type);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

const createVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// Migrator applies Migrations and records them in schema_migrations.
type Migrator struct {
	conn  *Connection
	steps []Migration
}

// NewMigrator creates a migrator over the built-in schema.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, steps: Migrations()}
}

// Migrate applies every pending step, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, step := range m.steps {
		if _, ok := applied[step.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, step.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, step.Version, step.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %03d %s: %w", step.Version, step.Name, err)
		}
	}
	return nil
}

// Status lists every step with its applied time, if any.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.steps))
	copy(out, m.steps)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	if _, err := m.conn.Exec(ctx, createVersionTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := m.conn.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}
