package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/medharbor/chartminer/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errBadFieldError   = 1054
	errParseError      = 1064
	errAccessDenied    = 1045
	errUnknownDatabase = 1049
	errQueryTimeout    = 3024
	errConnRefused     = 2003
)

// mapError converts a MySQL driver error into an *errs.Error, keeping the
// original error in the cause chain for the investigator.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		kind := errs.ErrKindQueryFailed
		switch mysqlErr.Number {
		case errAccessDenied, errUnknownDatabase, errConnRefused:
			kind = errs.ErrKindConnectionFailed
		case errQueryTimeout:
			kind = errs.ErrKindTimeout
		case errBadFieldError, errParseError:
			kind = errs.ErrKindQueryFailed
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, mysqlErr.Message), err)
	}

	// Fallthrough: network / driver-level errors
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
