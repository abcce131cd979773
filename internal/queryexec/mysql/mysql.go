// Package mysql implements queryexec.Executor for MySQL via database/sql.
package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql" // register driver

	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/queryexec"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

// Executor is a MySQL implementation of queryexec.Executor using
// database/sql. It is safe for concurrent use by multiple goroutines.
type Executor struct {
	sqlDB *sql.DB
}

var _ queryexec.Executor = (*Executor)(nil)

// New opens a pooled MySQL connection using the provided Config and
// verifies it with a ping before returning.
func New(ctx context.Context, cfg *queryexec.Config) (*Executor, error) {
	sqlDB, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	maxOpen := int(cfg.MaxConns)
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := int(cfg.MinConns)
	if maxIdle == 0 {
		maxIdle = defaultMaxIdleConns
	}
	lifetime := cfg.MaxConnLifetime
	if lifetime == 0 {
		lifetime = defaultConnMaxLifetime
	}
	idleTime := cfg.MaxConnIdleTime
	if idleTime == 0 {
		idleTime = defaultConnMaxIdleTime
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
	sqlDB.SetConnMaxIdleTime(idleTime)

	e := &Executor{sqlDB: sqlDB}

	if err := e.Ping(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return e, nil
}

// Ping verifies the warehouse is reachable.
func (e *Executor) Ping(ctx context.Context) error {
	if err := e.sqlDB.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close shuts down the connection pool.
func (e *Executor) Close() {
	if e.sqlDB != nil {
		e.sqlDB.Close()
	}
}

// Execute runs a SELECT and materializes every row.
func (e *Executor) Execute(ctx context.Context, query string) (*queryexec.Result, error) {
	rows, err := e.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return queryexec.Collect(&mysqlRows{rows: rows})
}

// --- mysqlRows wraps *sql.Rows ---

type mysqlRows struct{ rows *sql.Rows }

func (r *mysqlRows) Next() bool                 { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *mysqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *mysqlRows) Close()                     { r.rows.Close() }
func (r *mysqlRows) Err() error                 { return r.rows.Err() }
