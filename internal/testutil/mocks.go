// Package testutil holds test doubles shared across packages.
package testutil

import (
	"context"

	"github.com/medharbor/chartminer/internal/queryexec"
)

// MockExecutor implements queryexec.Executor with pluggable behavior.
// Execute records every statement it sees so tests can assert on the
// SQL that was issued.
type MockExecutor struct {
	ExecuteFn func(ctx context.Context, sql string) (*queryexec.Result, error)
	PingFn    func(ctx context.Context) error

	Calls []string
}

var _ queryexec.Executor = (*MockExecutor)(nil)

func (m *MockExecutor) Execute(ctx context.Context, sql string) (*queryexec.Result, error) {
	m.Calls = append(m.Calls, sql)
	if m.ExecuteFn == nil {
		return &queryexec.Result{Rows: []map[string]any{}}, nil
	}
	return m.ExecuteFn(ctx, sql)
}

func (m *MockExecutor) Ping(ctx context.Context) error {
	if m.PingFn == nil {
		return nil
	}
	return m.PingFn(ctx)
}

func (m *MockExecutor) Close() {}

// ColumnResult builds a single-column result from string values.
func ColumnResult(col string, vals ...string) *queryexec.Result {
	rows := make([]map[string]any, len(vals))
	for i, v := range vals {
		rows[i] = map[string]any{col: v}
	}
	return &queryexec.Result{Columns: []string{col}, Rows: rows}
}

// CountResult builds the one-row count shape the catalog's count
// queries produce.
func CountResult(n int64) *queryexec.Result {
	return &queryexec.Result{Columns: []string{"cnt"}, Rows: []map[string]any{{"cnt": n}}}
}
