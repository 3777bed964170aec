package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores bundles the Postgres-backed stores on one shared connection pool.
type Stores struct {
	Docs *DocumentStore
	Runs *RunStore

	pool *pgxpool.Pool
}

// Connect opens a single pgx pool, verifies the database is reachable, and
// builds the document and run stores on it. Close the returned Stores, not
// the individual stores, to release the pool exactly once.
func Connect(ctx context.Context, cfg DocumentStoreConfig) (*Stores, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "documents"
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
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	docs, err := NewDocumentStoreWithPool(pool, table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	runs, err := NewRunStoreWithPool(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Stores{Docs: docs, Runs: runs, pool: pool}, nil
}

// Close releases the shared pool.
func (s *Stores) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
