// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"strings"

	"github.com/canonical/sqlrecord/schema"
)

// mysqlMaxLimit is the largest row count MySQL accepts in a LIMIT clause.
const mysqlMaxLimit = "18446744073709551615"

// NewMySQL returns the MySQL family dialect.
func NewMySQL(opts ...Option) Dialect {
	return &base{flavor: mysql{}, opts: newOptions(opts)}
}

type mysql struct{}

func (mysql) name() string {
	return MySQL
}

func (mysql) inlinePrimary(*schema.Schema) (string, error) {
	return "", nil
}

func (mysql) columnType(c schema.Column, _ bool) string {
	return typeFragment(c)
}

func (mysql) collation(c schema.Column) string {
	if c.Collate == "" {
		return ""
	}
	return " COLLATE " + c.Collate
}

func (mysql) serial(c schema.Column, _ bool) string {
	if c.Serial {
		return " AUTO_INCREMENT"
	}
	return ""
}

func (mysql) token(t schema.Token) string {
	if t == schema.Now {
		return "(NOW())"
	}
	return "(" + string(t) + ")"
}

func (mysql) escape(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", "''")
}

func (mysql) suffix(o options) string {
	var b strings.Builder
	if o.charset != "" {
		b.WriteString(" CHARACTER SET ")
		b.WriteString(o.charset)
	}
	if o.collate != "" {
		b.WriteString(" COLLATE ")
		b.WriteString(o.collate)
	}
	return b.String()
}

func (mysql) orderByField(lit func(any) string, col string, values []any) string {
	parts := []string{col}
	for _, v := range values {
		parts = append(parts, lit(v))
	}
	return "FIELD(" + strings.Join(parts, ", ") + ")"
}

func (mysql) unsigned(c schema.Column, _ bool) string {
	if c.Unsigned {
		return " UNSIGNED"
	}
	return ""
}

func (mysql) maxLimit() string {
	return mysqlMaxLimit
}

func (mysql) upsertClause(q func(string) string, columns, keys []string) string {
	var sets []string
	for _, c := range nonKeys(columns, keys) {
		sets = append(sets, q(c)+" = VALUES("+q(c)+")")
	}
	if len(sets) == 0 {
		// Nothing to update, but the statement must not fail on a duplicate.
		sets = append(sets, q(keys[0])+" = "+q(keys[0]))
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// nonKeys returns the columns that are not listed in keys.
func nonKeys(columns, keys []string) []string {
	isKey := map[string]bool{}
	for _, k := range keys {
		isKey[k] = true
	}
	var out []string
	for _, c := range columns {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return out
}
