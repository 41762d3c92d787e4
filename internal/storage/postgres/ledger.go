// Package postgres stores the per-target outcome ledger in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/review-harvester/internal/store"
)

const defaultTable = "target_outcomes"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LedgerConfig controls the Postgres connection pool used for ledger rows.
type LedgerConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Ledger implements store.OutcomeLedger on a Postgres table keyed by
// (run_id, city, hotel).
type Ledger struct {
	pool  execCloser
	table string
}

var _ store.OutcomeLedger = (*Ledger)(nil)

// NewLedger connects to Postgres using cfg.
func NewLedger(ctx context.Context, cfg LedgerConfig) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Ledger{pool: pool, table: table}, nil
}

// NewLedgerWithPool constructs a ledger from an existing pool.
func NewLedgerWithPool(pool execCloser, table string) (*Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Ledger{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the ledger table when it does not exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id      UUID        NOT NULL,
			city        TEXT        NOT NULL,
			hotel       TEXT        NOT NULL,
			seed_url    TEXT        NOT NULL,
			status      TEXT        NOT NULL,
			records     INTEGER     NOT NULL,
			pages       INTEGER     NOT NULL,
			error       TEXT,
			finished_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (run_id, city, hotel)
		)`, l.table)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", l.table, err)
	}
	return nil
}

// RecordOutcome upserts one row.
func (l *Ledger) RecordOutcome(ctx context.Context, row store.LedgerRow) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, city, hotel, seed_url, status, records, pages, error, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, city, hotel) DO UPDATE
		SET seed_url = EXCLUDED.seed_url,
			status = EXCLUDED.status,
			records = EXCLUDED.records,
			pages = EXCLUDED.pages,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`, l.table)

	var errText *string
	if row.Error != "" {
		errText = &row.Error
	}
	if _, err := l.pool.Exec(ctx, query,
		row.RunID,
		row.City,
		row.Hotel,
		row.SeedURL,
		string(row.Status),
		row.Records,
		row.Pages,
		errText,
		row.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Close releases the pool.
func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}
