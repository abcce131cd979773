// Package postgres implements queryexec.Executor on top of pgxpool.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/queryexec"
)

// Executor is a PostgreSQL implementation of queryexec.Executor backed by
// pgxpool. It is safe for concurrent use by multiple goroutines.
type Executor struct {
	pool *pgxpool.Pool
}

var _ queryexec.Executor = (*Executor)(nil)

// New connects to PostgreSQL using the provided Config and returns an
// Executor. It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *queryexec.Config) (*Executor, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create connection pool", err)
	}

	e := &Executor{pool: pool}

	if err := e.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return e, nil
}

// Ping verifies the warehouse is reachable by acquiring and releasing a
// connection.
func (e *Executor) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool. Call when the application shuts down.
func (e *Executor) Close() {
	e.pool.Close()
}

// Execute runs a SELECT and materializes every row.
func (e *Executor) Execute(ctx context.Context, sql string) (*queryexec.Result, error) {
	rows, err := e.pool.Query(ctx, sql)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return queryexec.Collect(&pgxRows{rows: rows})
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy queryexec.RowScanner.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}
