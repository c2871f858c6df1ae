// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package conn

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// Phase tells when a statement failed.
type Phase int

const (
	// Prepare means the database refused the SQL text.
	Prepare Phase = iota + 1
	// Execute means the statement failed while running with its arguments.
	Execute
)

func (p Phase) String() string {
	switch p {
	case Prepare:
		return "prepare"
	case Execute:
		return "execute"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// StatementError is returned when the database rejects a statement. Args are
// only set for the Execute phase.
type StatementError struct {
	Phase Phase
	SQL   string
	Args  []any
	// Code is the driver diagnostic code, or 0 when the driver error does
	// not carry one.
	Code int
	Err  error
}

func (e *StatementError) Error() string {
	if e.Phase == Prepare {
		return fmt.Sprintf("cannot prepare statement %q: %v", e.SQL, e.Err)
	}
	return fmt.Sprintf("cannot execute statement %q with args %v: %v", e.SQL, e.Args, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

func newPrepareError(query string, err error) *StatementError {
	return &StatementError{Phase: Prepare, SQL: query, Code: ErrorCode(err), Err: err}
}

func newExecuteError(query string, args []any, err error) *StatementError {
	return &StatementError{Phase: Execute, SQL: query, Args: args, Code: ErrorCode(err), Err: err}
}

// errorCoder is implemented by the modernc.org/sqlite errors.
type errorCoder interface {
	Code() int
}

// ErrorCode returns the diagnostic code of a driver error: the MySQL error
// number or the extended SQLite result code. It returns 0 for errors that
// carry no code.
func ErrorCode(err error) int {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return int(myErr.Number)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return int(liteErr.ExtendedCode)
	}
	var coder errorCoder
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return 0
}

// Diagnostic codes of unique and primary key violations.
const (
	mysqlDuplicateEntry    = 1062
	sqliteConstraintPKey   = 1555
	sqliteConstraintUnique = 2067
)

// IsUniqueViolation reports whether err was caused by a duplicate value in a
// unique column or primary key.
func IsUniqueViolation(err error) bool {
	switch ErrorCode(err) {
	case mysqlDuplicateEntry, sqliteConstraintPKey, sqliteConstraintUnique:
		return true
	}
	return false
}

// IsStatementError reports whether err is or wraps a *StatementError.
func IsStatementError(err error) bool {
	var stmtErr *StatementError
	return errors.As(err, &stmtErr)
}
