package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/semaphore"
)

// PoolConfig configures the bounded SQLite connection pool (spec §4.B).
type PoolConfig struct {
	Path        string
	MaxConns    int
	BusyTimeout int // milliseconds
}

// Pool wraps a *sqlx.DB with a semaphore.Weighted bounding concurrent
// writers to MaxConns, matching spec §4.B's "bounded connection pool
// (configurable, default 20) shared by the whole process".
type Pool struct {
	DB  *sqlx.DB
	sem *semaphore.Weighted
}

// Open opens the database in WAL mode. The DSN sets busy_timeout,
// synchronous=NORMAL and foreign_keys on every connection; temp_store=MEMORY,
// mmap_size=256MiB and cache_size=64MiB (negative-KiB form) are executed once
// here, on whichever pooled connection runs them, and are not re-applied to
// connections the pool opens later.
func Open(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout,
	)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)

	if err := applyConnPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Pool{
		DB:  db,
		sem: semaphore.NewWeighted(int64(cfg.MaxConns)),
	}, nil
}

func applyConnPragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",  // 256 MiB
		"PRAGMA cache_size = -65536",    // 64 MiB, negative = KiB
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	return nil
}

// Acquire blocks until a pool slot is available, returning a release func.
// Callers that only read may bypass this (spec §5: "readers may bypass
// retries" — the same bypass applies to the write-side concurrency bound).
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { p.sem.Release(1) }, nil
}

// Close closes the underlying database handle.
func (p *Pool) Close() error {
	return p.DB.Close()
}

// Conn acquires a pool slot and a dedicated *sql.Conn. It does not apply
// the temp_store, mmap_size or cache_size pragmas to the returned
// connection; only the DSN settings are guaranteed on it.
func (p *Pool) Conn(ctx context.Context) (*sql.Conn, func(), error) {
	release, err := p.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	conn, err := p.DB.Conn(ctx)
	if err != nil {
		release()
		return nil, nil, err
	}
	return conn, func() {
		_ = conn.Close()
		release()
	}, nil
}
