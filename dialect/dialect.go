// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package dialect renders schemas and statement fragments for the SQL engines
// supported by sqlrecord: the MySQL family and the SQLite family.
package dialect

import (
	"fmt"
	"strings"

	"github.com/canonical/sqlrecord/schema"
)

// Names of the supported dialects.
const (
	MySQL  = "mysql"
	SQLite = "sqlite"
)

// Dialect renders DDL and the engine specific parts of queries. Table names
// passed to a Dialect are complete, including any table prefix.
type Dialect interface {
	// Name returns MySQL or SQLite.
	Name() string
	// QuoteIdentifier quotes a column or table identifier. Dotted
	// identifiers are quoted part by part.
	QuoteIdentifier(id string) string
	// QuoteLiteral renders a Go value as an SQL literal.
	QuoteLiteral(v any) string

	// CreateTable renders the CREATE TABLE statement for s.
	CreateTable(s *schema.Schema, table string) (string, error)
	// CreateIndexes renders one CREATE INDEX statement per index of s, in
	// declaration order.
	CreateIndexes(s *schema.Schema, table string) []string

	// OrderByField renders an ordering expression that sorts col by the
	// position of its value in values.
	OrderByField(col string, values []any) string
	// MaxLimit is the row count used in "LIMIT offset, count" when only an
	// offset is set.
	MaxLimit() string
	// Insert renders an INSERT statement with one placeholder per column.
	Insert(table string, columns []string) string
	// Upsert renders an INSERT statement that updates the non-key columns
	// when a row with the same keys already exists.
	Upsert(table string, columns, keys []string) string
}

// Option configures a Dialect.
type Option func(*options)

type options struct {
	charset string
	collate string
	quote   func(string) string
}

// WithCharset sets the default character set appended to MySQL tables.
func WithCharset(charset string) Option {
	return func(o *options) {
		o.charset = charset
	}
}

// WithCollate sets the default collation appended to MySQL tables.
func WithCollate(collate string) Option {
	return func(o *options) {
		o.collate = collate
	}
}

// WithIdentifierQuoter replaces the backtick quoting of identifiers.
func WithIdentifierQuoter(quote func(string) string) Option {
	return func(o *options) {
		o.quote = quote
	}
}

// DefaultCollate is the table collation used for MySQL when none is given.
const DefaultCollate = "utf8_general_ci"

func newOptions(opts []Option) options {
	o := options{collate: DefaultCollate, quote: backtick}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ForName returns the dialect called name.
func ForName(name string, opts ...Option) (Dialect, error) {
	switch strings.ToLower(name) {
	case MySQL, "mariadb":
		return NewMySQL(opts...), nil
	case SQLite, "sqlite3", "dqlite":
		return NewSQLite(opts...), nil
	}
	return nil, fmt.Errorf("unsupported dialect %q", name)
}

// backtick quotes every dotted part of id with backticks. "*" is left as is.
func backtick(id string) string {
	parts := strings.Split(id, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}
