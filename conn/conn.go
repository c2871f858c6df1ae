// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package conn executes the statements built by sqlrecord on a database/sql
database.

A DB prepares every statement once and keeps the most recently used ones in
a cache keyed by their SQL text. Failures are reported as *StatementError
values which tell apart statements the database refused to prepare from
statements that failed while executing with their arguments.
*/
package conn

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/canonical/sqlrecord/dialect"
)

// Row is a result row keyed by column name. Values are those returned by the
// driver.
type Row map[string]any

// Result describes the outcome of an Exec call.
type Result struct {
	RowsAffected int64
	// LastInsertID is the value generated for a serial column, or 0 when the
	// driver does not report one.
	LastInsertID int64
}

// DB runs statements on a *sql.DB using a dialect. It is safe for concurrent
// use.
type DB struct {
	sqldb   *sql.DB
	dialect dialect.Dialect
	prefix  string
	logger  *slog.Logger
	stmts   *statementCache
	closer  func() error

	cacheSize int
}

// Option configures a DB.
type Option func(*DB)

// WithTablePrefix sets the prefix prepended to every model table name.
func WithTablePrefix(prefix string) Option {
	return func(db *DB) {
		db.prefix = prefix
	}
}

// WithLogger sets the logger used for statement logs.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		db.logger = logger
	}
}

// WithStatementCacheSize sets the number of prepared statements kept open.
// The least recently used statement is closed when the cache is full.
func WithStatementCacheSize(size int) Option {
	return func(db *DB) {
		db.cacheSize = size
	}
}

// withCloser replaces the function called by Close.
func withCloser(closer func() error) Option {
	return func(db *DB) {
		db.closer = closer
	}
}

// New returns a DB running statements on sqldb. The DB takes ownership of
// sqldb and closes it on Close.
func New(sqldb *sql.DB, d dialect.Dialect, opts ...Option) *DB {
	db := &DB{
		sqldb:   sqldb,
		dialect: d,
		logger:  slog.Default(),
	}
	db.closer = sqldb.Close
	for _, opt := range opts {
		opt(db)
	}
	db.stmts = newStatementCache(db.cacheSize)
	return db
}

// PlainDB returns the underlying *sql.DB.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Dialect returns the dialect statements are rendered for.
func (db *DB) Dialect() dialect.Dialect {
	return db.dialect
}

// TablePrefix returns the prefix of every model table name.
func (db *DB) TablePrefix() string {
	return db.prefix
}

// QuoteIdentifier quotes id using the dialect.
func (db *DB) QuoteIdentifier(id string) string {
	return db.dialect.QuoteIdentifier(id)
}

// QuoteLiteral renders v as a literal using the dialect.
func (db *DB) QuoteLiteral(v any) string {
	return db.dialect.QuoteLiteral(v)
}

// Query runs a statement returning rows and reads all of them.
func (db *DB) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	stmt, err := db.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer stmt.release()
	start := time.Now()
	rows, err := stmt.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, db.failed(newExecuteError(query, args, err))
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, db.failed(newExecuteError(query, args, err))
	}
	db.logger.Debug("query", "sql", query, "args", args, "rows", len(result), "duration", time.Since(start))
	return result, nil
}

// Exec runs a statement that returns no rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	stmt, err := db.prepare(ctx, query)
	if err != nil {
		return Result{}, err
	}
	defer stmt.release()
	start := time.Now()
	res, err := stmt.stmt.ExecContext(ctx, args...)
	if err != nil {
		return Result{}, db.failed(newExecuteError(query, args, err))
	}
	var r Result
	// Some drivers do not support these, in which case they stay at zero.
	r.RowsAffected, _ = res.RowsAffected()
	r.LastInsertID, _ = res.LastInsertId()
	db.logger.Debug("exec", "sql", query, "args", args, "affected", r.RowsAffected, "duration", time.Since(start))
	return r, nil
}

// Ping checks that the database can be reached.
func (db *DB) Ping(ctx context.Context) error {
	return db.sqldb.PingContext(ctx)
}

// Close closes all cached statements and then the database.
func (db *DB) Close() error {
	db.stmts.closeAll()
	return db.closer()
}

func (db *DB) prepare(ctx context.Context, query string) (*cachedStmt, error) {
	stmt, err := db.stmts.prepare(ctx, db.sqldb, query)
	if err != nil {
		return nil, db.failed(newPrepareError(query, err))
	}
	return stmt, nil
}

func (db *DB) failed(err *StatementError) error {
	db.logger.Warn("statement failed", "error", err.Err, "phase", err.Phase.String(), "code", err.Code, "sql", err.SQL)
	return err
}

// scanRows reads every row of rows into a Row.
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var result []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("cannot scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

