// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/canonical/sqlrecord/schema"
)

// flavor holds the rendering rules that differ between engines. Everything
// else is shared by base.
type flavor interface {
	name() string
	// inlinePrimary returns the column that carries the primary key inline,
	// or "" when the key is rendered as a trailing clause.
	inlinePrimary(s *schema.Schema) (string, error)
	columnType(c schema.Column, inline bool) string
	collation(c schema.Column) string
	unsigned(c schema.Column, inline bool) string
	serial(c schema.Column, inline bool) string
	token(t schema.Token) string
	escape(s string) string
	suffix(o options) string
	orderByField(lit func(any) string, col string, values []any) string
	maxLimit() string
	upsertClause(q func(string) string, columns, keys []string) string
}

// base implements Dialect on top of a flavor.
type base struct {
	flavor
	opts options
}

func (r *base) Name() string {
	return r.name()
}

func (r *base) QuoteIdentifier(id string) string {
	return r.opts.quote(id)
}

func (r *base) QuoteLiteral(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + r.escape(v) + "'"
	case []byte:
		return "'" + r.escape(string(v)) + "'"
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return "'" + v.Format("2006-01-02 15:04:05") + "'"
	case schema.Token:
		return r.token(v)
	case fmt.Stringer:
		return "'" + r.escape(v.String()) + "'"
	}
	return "'" + r.escape(fmt.Sprint(v)) + "'"
}

func (r *base) CreateTable(s *schema.Schema, table string) (string, error) {
	cols := s.Columns()
	if len(cols) == 0 {
		return "", fmt.Errorf("cannot render table %q: no columns defined", table)
	}
	inline, err := r.inlinePrimary(s)
	if err != nil {
		return "", fmt.Errorf("cannot render table %q: %w", table, err)
	}
	var defs []string
	for _, c := range cols {
		defs = append(defs, r.columnDefinition(c, c.Name == inline))
	}
	if primary := s.Primary(); len(primary) > 0 && inline == "" {
		defs = append(defs, "PRIMARY KEY ("+r.quoteList(primary)+")")
	}
	return "CREATE TABLE " + r.QuoteIdentifier(table) + " (" + strings.Join(defs, ", ") + ")" + r.suffix(r.opts) + ";", nil
}

// columnDefinition renders a single column:
//
//	<id> <type> [COLLATE c] [UNSIGNED] NOT NULL|NULL [DEFAULT v] [serial] [UNIQUE]
func (r *base) columnDefinition(c schema.Column, inline bool) string {
	var b strings.Builder
	b.WriteString(r.QuoteIdentifier(c.Name))
	b.WriteString(" ")
	b.WriteString(r.columnType(c, inline))
	b.WriteString(r.collation(c))
	b.WriteString(r.unsigned(c, inline))
	if c.Null {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(r.QuoteLiteral(c.Default))
	}
	b.WriteString(r.serial(c, inline))
	if c.Unique {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

func (r *base) CreateIndexes(s *schema.Schema, table string) []string {
	var stmts []string
	for _, idx := range s.Indexes() {
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX %s ON %s (%s);",
			unique,
			r.QuoteIdentifier(idx.Name),
			r.QuoteIdentifier(table),
			r.quoteList(idx.Columns),
		))
	}
	return stmts
}

func (r *base) OrderByField(col string, values []any) string {
	return r.orderByField(r.QuoteLiteral, col, values)
}

func (r *base) MaxLimit() string {
	return r.maxLimit()
}

func (r *base) Insert(table string, columns []string) string {
	return "INSERT INTO " + r.QuoteIdentifier(table) +
		" (" + r.quoteList(columns) + ") VALUES (" + placeholders(len(columns)) + ")"
}

func (r *base) Upsert(table string, columns, keys []string) string {
	return r.Insert(table, columns) + " " + r.upsertClause(r.QuoteIdentifier, columns, keys)
}

func (r *base) quoteList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = r.QuoteIdentifier(id)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// integerKeywords maps integer byte widths to their type keyword.
var integerKeywords = map[int]string{
	1: "TINYINT",
	2: "SMALLINT",
	3: "MEDIUMINT",
	4: "INTEGER",
	8: "BIGINT",
}

// sizeClassPrefixes maps text and blob size classes to their keyword prefix.
var sizeClassPrefixes = map[int]string{
	1: "TINY",
	2: "",
	3: "MEDIUM",
	4: "",
	8: "LONG",
}

// typeFragment is the type mapping shared by all dialects.
func typeFragment(c schema.Column) string {
	switch c.Kind {
	case schema.KindInteger:
		return fmt.Sprintf("%s(%d)", integerKeywords[c.Size], c.Size)
	case schema.KindDecimal:
		keyword := "DECIMAL"
		if c.Approximate {
			keyword = "DOUBLE"
			if c.Precision <= 24 {
				keyword = "FLOAT"
			}
		}
		return fmt.Sprintf("%s(%d,%d)", keyword, c.Precision, c.Scale)
	case schema.KindCharacter:
		keyword := "VARCHAR"
		switch {
		case c.Fixed && c.Binary:
			keyword = "BINARY"
		case c.Fixed:
			keyword = "CHAR"
		case c.Binary:
			keyword = "VARBINARY"
		}
		return fmt.Sprintf("%s(%d)", keyword, c.Size)
	case schema.KindText:
		return sizeClassPrefixes[c.Size] + "TEXT"
	case schema.KindBlob:
		return sizeClassPrefixes[c.Size] + "BLOB"
	case schema.KindDate:
		return "DATE"
	case schema.KindTime:
		return "TIME"
	case schema.KindDateTime:
		return "DATETIME"
	case schema.KindTimestamp:
		return "TIMESTAMP"
	}
	return strings.ToUpper(c.Kind.String())
}
