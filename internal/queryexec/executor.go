// Package queryexec defines the read-only execution contract between the
// reasoning core and the clinical warehouse. Everything above this package
// talks only to the Executor interface; the postgres and mysql packages
// are never imported directly.
//
// Extraction is strictly read-only: only SELECT statements are supported.
package queryexec

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/medharbor/chartminer/internal/errs"
)

// Executor runs a SQL statement and returns the full materialized result.
// Implementations translate native driver errors into *errs.Error and keep
// the engine's own message reachable through the cause chain, because the
// investigator classifies failures from that text.
type Executor interface {
	// Execute runs a SELECT and materializes every row.
	Execute(ctx context.Context, sql string) (*Result, error)

	// Ping verifies the warehouse is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close()
}

// Result is a fully materialized result set. Rows preserve the column
// order via Columns; values are the driver's Go-native representations.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// RowScanner is the minimal iteration surface a driver result set must
// expose so Collect can materialize it.
type RowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Close()
	Err() error
}

// Collect reads all rows from the scanner and returns them as a *Result.
// The returned Rows slice is always non-nil (empty on zero rows).
// Collect always closes the scanner; callers do not call Close.
func Collect(rs RowScanner) (*Result, error) {
	defer rs.Close()

	columns, err := rs.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	res := &Result{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}

	for rs.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rs.Scan(destPtrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = dest[i]
		}
		res.Rows = append(res.Rows, row)
	}

	if err := rs.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}

	return res, nil
}

// FirstInt returns the first column of the first row as an int64.
// Count queries go through here; drivers disagree about the Go type of
// COUNT(*) so every plausible representation is accepted.
func (r *Result) FirstInt() (int64, error) {
	if r == nil || len(r.Rows) == 0 || len(r.Columns) == 0 {
		return 0, errs.New(errs.ErrKindNotFound, "result has no rows")
	}
	v := r.Rows[0][r.Columns[0]]
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		parsed, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil {
			return 0, errs.Wrap(errs.ErrKindInvalidInput, "count column is not numeric", err)
		}
		return parsed, nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, errs.Wrap(errs.ErrKindInvalidInput, "count column is not numeric", err)
		}
		return parsed, nil
	default:
		return 0, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("count column has unexpected type %T", v))
	}
}

// ColumnStrings returns the stringified non-NULL values of the named
// column, in row order. NULLs are skipped, not rendered as "<nil>".
func (r *Result) ColumnStrings(col string) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		if s, ok := Stringify(row[col]); ok {
			out = append(out, s)
		}
	}
	return out
}

// Stringify renders a driver value as the string a human would read in a
// sample. The second return is false for NULL.
func Stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case time.Time:
		return t.Format(time.RFC3339), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int:
		return strconv.Itoa(t), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// ErrorText returns the innermost error message in the chain, which for
// executor errors is the warehouse engine's own text. Classification
// works from this, not from our wrapping.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	cur := err
	for {
		next := errors.Unwrap(cur)
		if next == nil {
			return cur.Error()
		}
		cur = next
	}
}
