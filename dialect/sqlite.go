// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"fmt"
	"strings"

	"github.com/canonical/sqlrecord/schema"
)

// NewSQLite returns the SQLite family dialect. Table options such as the
// MySQL character set are ignored.
func NewSQLite(opts ...Option) Dialect {
	return &base{flavor: sqlite{}, opts: newOptions(opts)}
}

type sqlite struct{}

// sqliteCollations are the collating functions built into SQLite.
var sqliteCollations = map[string]bool{
	"BINARY": true,
	"NOCASE": true,
	"RTRIM":  true,
}

func (sqlite) name() string {
	return SQLite
}

// inlinePrimary returns the serial column when it is the whole primary key.
// SQLite only allows AUTOINCREMENT on an inline INTEGER PRIMARY KEY, so a
// serial column outside the primary key cannot be rendered.
func (sqlite) inlinePrimary(s *schema.Schema) (string, error) {
	c, ok := s.SerialColumn()
	if !ok {
		return "", nil
	}
	primary := s.Primary()
	if !s.IsPrimary(c.Name) {
		return "", fmt.Errorf("serial column %q must be part of the primary key", c.Name)
	}
	if len(primary) == 1 {
		return c.Name, nil
	}
	return "", nil
}

func (sqlite) columnType(c schema.Column, inline bool) string {
	if inline {
		return "INTEGER"
	}
	return typeFragment(c)
}

func (sqlite) collation(c schema.Column) string {
	if !sqliteCollations[strings.ToUpper(c.Collate)] {
		return ""
	}
	return " COLLATE " + strings.ToUpper(c.Collate)
}

// unsigned renders nothing: SQLite integers are always signed and its type
// names cannot be followed by UNSIGNED once a size is given.
func (sqlite) unsigned(schema.Column, bool) string {
	return ""
}

func (sqlite) serial(c schema.Column, inline bool) string {
	if c.Serial && inline {
		return " PRIMARY KEY AUTOINCREMENT"
	}
	return ""
}

func (sqlite) token(t schema.Token) string {
	if t == schema.Now {
		return string(schema.CurrentTimestamp)
	}
	return string(t)
}

func (sqlite) escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func (sqlite) suffix(options) string {
	return ""
}

func (sqlite) orderByField(lit func(any) string, col string, values []any) string {
	var b strings.Builder
	b.WriteString("CASE ")
	b.WriteString(col)
	for i, v := range values {
		fmt.Fprintf(&b, " WHEN %s THEN %d", lit(v), i)
	}
	fmt.Fprintf(&b, " ELSE %d END", len(values))
	return b.String()
}

func (sqlite) maxLimit() string {
	return "-1"
}

func (sqlite) upsertClause(q func(string) string, columns, keys []string) string {
	quotedKeys := make([]string, len(keys))
	for i, k := range keys {
		quotedKeys[i] = q(k)
	}
	conflict := "ON CONFLICT (" + strings.Join(quotedKeys, ", ") + ")"
	var sets []string
	for _, c := range nonKeys(columns, keys) {
		sets = append(sets, q(c)+" = excluded."+q(c))
	}
	if len(sets) == 0 {
		return conflict + " DO NOTHING"
	}
	return conflict + " DO UPDATE SET " + strings.Join(sets, ", ")
}
