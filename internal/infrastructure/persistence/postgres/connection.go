// Package postgres implements the PostgreSQL persistence layer of the lesson hub:
// the content store, accounts, and the unit of work that ties a generated
// artifact to its credit charge.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// POOL
// ══════════════════════════════════════════════════════════════════════════════

// Config tunes the pool. Zero fields take the DefaultConfig value.
type Config struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultConfig returns the pool limits used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

// PoolConfig parses databaseURL and applies the tuning in c.
func (c Config) PoolConfig(databaseURL string) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	def := DefaultConfig()
	pc.MaxConns = firstNonZero(c.MaxConns, def.MaxConns)
	pc.MinConns = firstNonZero(c.MinConns, def.MinConns)
	pc.MaxConnLifetime = firstNonZero(c.MaxConnLifetime, def.MaxConnLifetime)
	pc.MaxConnIdleTime = firstNonZero(c.MaxConnIdleTime, def.MaxConnIdleTime)
	pc.HealthCheckPeriod = firstNonZero(c.HealthCheckPeriod, def.HealthCheckPeriod)
	return pc, nil
}

func firstNonZero[T int32 | time.Duration](values ...T) T {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// Connection is the shared pool behind the repositories.
type Connection struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and pings it.
func Open(ctx context.Context, databaseURL string, tuning Config) (*Connection, error) {
	if databaseURL == "" {
		return nil, errors.New("postgres: database URL is required")
	}
	pc, err := tuning.PoolConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Connection{pool: pool}, nil
}

// Close releases the pool. Safe to call more than once.
func (c *Connection) Close() { c.pool.Close() }

// Ping is used by the readiness check.
func (c *Connection) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

// WithTx runs fn in a read-committed transaction, committing when fn
// returns nil.
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, c.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// Querier is satisfied by *Connection and pgx.Tx, so helpers run either
// standalone or inside WithTx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.pool.Exec(ctx, sql, args...)
}

func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.pool.Query(ctx, sql, args...)
}

func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

var _ Querier = (*Connection)(nil)

// IsUniqueViolation reports a unique_violation (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsNoRows reports an empty single-row result.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
