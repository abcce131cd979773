package mysql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"github.com/medharbor/chartminer/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: errs.ErrKindTimeout,
		},
		{
			name: "no rows",
			err:  sql.ErrNoRows,
			want: errs.ErrKindNotFound,
		},
		{
			name: "unknown column",
			err:  &gomysql.MySQLError{Number: 1054, Message: "Unknown column 'd.performed' in 'field list'"},
			want: errs.ErrKindQueryFailed,
		},
		{
			name: "syntax error",
			err:  &gomysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"},
			want: errs.ErrKindQueryFailed,
		},
		{
			name: "access denied",
			err:  &gomysql.MySQLError{Number: 1045, Message: "Access denied for user"},
			want: errs.ErrKindConnectionFailed,
		},
		{
			name: "query execution interrupted by timeout",
			err:  &gomysql.MySQLError{Number: 3024, Message: "Query execution was interrupted, maximum statement execution time exceeded"},
			want: errs.ErrKindTimeout,
		},
		{
			name: "network error",
			err:  errors.New("dial tcp: connection refused"),
			want: errs.ErrKindConnectionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapError(tt.err, "query failed")
			assert.Equal(t, tt.want, mapped.Kind)
			assert.True(t, errors.Is(mapped, tt.err), "cause chain must keep the original error")
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, mapError(nil, "noop"))
}
