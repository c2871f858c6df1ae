// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package clause accumulates the clauses of a SELECT statement and renders them
as parameterized SQL.

Select is a value type. Every With method returns a copy whose slices are
freshly allocated, so a Select obtained from a common ancestor never observes
changes made through a sibling.
*/
package clause

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Quoter is the part of a dialect needed to render a Select.
type Quoter interface {
	QuoteIdentifier(id string) string
	MaxLimit() string
}

// Fragment is a piece of SQL with its positional arguments.
type Fragment struct {
	SQL  string
	Args []any
}

// NewFragment checks that the number of "?" placeholders in sql matches the
// number of args. Placeholders inside quoted strings are ignored.
func NewFragment(sql string, args ...any) (Fragment, error) {
	if n := CountPlaceholders(sql); n != len(args) {
		return Fragment{}, fmt.Errorf("fragment %q has %d placeholders but %d arguments", sql, n, len(args))
	}
	return Fragment{SQL: sql, Args: append([]any(nil), args...)}, nil
}

// CountPlaceholders returns the number of "?" placeholders in sql that are not
// inside a quoted string or identifier.
func CountPlaceholders(sql string) int {
	var n int
	var quote rune
	for _, r := range sql {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '?':
			n++
		}
	}
	return n
}

// Equal builds the fragment for a map of column to value conditions. Pairs
// are AND-ed in sorted column order. A nil value renders IS NULL, a slice
// renders an IN list and an empty slice matches nothing.
func Equal(quote func(string) string, conds map[string]any) (Fragment, error) {
	if len(conds) == 0 {
		return Fragment{}, fmt.Errorf("no conditions given")
	}
	cols := make([]string, 0, len(conds))
	for col := range conds {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var parts []string
	var args []any
	for _, col := range cols {
		v := conds[col]
		qc := quote(col)
		if v == nil {
			parts = append(parts, qc+" IS NULL")
			continue
		}
		rv := reflect.ValueOf(v)
		if (rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8) || rv.Kind() == reflect.Array {
			if rv.Len() == 0 {
				parts = append(parts, "1 = 0")
				continue
			}
			for i := 0; i < rv.Len(); i++ {
				args = append(args, rv.Index(i).Interface())
			}
			parts = append(parts, qc+" IN ("+Placeholders(rv.Len())+")")
			continue
		}
		parts = append(parts, qc+" = ?")
		args = append(args, v)
	}
	return Fragment{SQL: strings.Join(parts, " AND "), Args: args}, nil
}

// Placeholders returns n comma separated placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// Select is an immutable SELECT statement under construction.
type Select struct {
	columns string
	table   string
	alias   string
	joins   []Fragment
	where   []Fragment
	group   string
	order   string

	limit     int64
	hasLimit  bool
	offset    int64
	hasOffset bool
}

// New returns a Select of all columns from table.
func New(table string) Select {
	return Select{table: table}
}

// clone returns a copy of s that shares no slices with s.
func (s Select) clone() Select {
	s.joins = append([]Fragment(nil), s.joins...)
	s.where = append([]Fragment(nil), s.where...)
	return s
}

// Table returns the unquoted table name.
func (s Select) Table() string {
	return s.table
}

// Alias returns the table alias, if any.
func (s Select) Alias() string {
	return s.alias
}

// Columns returns the select list, or "" for the default "*".
func (s Select) Columns() string {
	return s.columns
}

// WithColumns replaces the select list. An empty list selects "*".
func (s Select) WithColumns(columns string) Select {
	s = s.clone()
	s.columns = columns
	return s
}

// WithAlias sets the alias rendered after the table name.
func (s Select) WithAlias(alias string) Select {
	s = s.clone()
	s.alias = alias
	return s
}

// WithJoin appends a join fragment.
func (s Select) WithJoin(f Fragment) Select {
	s = s.clone()
	s.joins = append(s.joins, f)
	return s
}

// WithWhere appends a predicate. Predicates are parenthesized and AND-ed.
func (s Select) WithWhere(f Fragment) Select {
	s = s.clone()
	s.where = append(s.where, Fragment{SQL: "(" + f.SQL + ")", Args: f.Args})
	return s
}

// WithGroup replaces the GROUP BY list.
func (s Select) WithGroup(group string) Select {
	s = s.clone()
	s.group = group
	return s
}

// WithOrder replaces the ORDER BY list.
func (s Select) WithOrder(order string) Select {
	s = s.clone()
	s.order = order
	return s
}

// WithLimit sets the row limit.
func (s Select) WithLimit(n int64) Select {
	s = s.clone()
	s.limit, s.hasLimit = n, true
	return s
}

// WithOffset sets the number of rows skipped.
func (s Select) WithOffset(n int64) Select {
	s = s.clone()
	s.offset, s.hasOffset = n, true
	return s
}

// WithoutPaging clears the limit and the offset.
func (s Select) WithoutPaging() Select {
	s = s.clone()
	s.limit, s.hasLimit = 0, false
	s.offset, s.hasOffset = 0, false
	return s
}

// Grouped reports whether a GROUP BY clause is set.
func (s Select) Grouped() bool {
	return s.group != ""
}

// HasLimit reports whether a limit is set.
func (s Select) HasLimit() bool {
	return s.hasLimit
}

// Conditions returns the rendered predicates in order.
func (s Select) Conditions() []string {
	conds := make([]string, len(s.where))
	for i, f := range s.where {
		conds[i] = f.SQL
	}
	return conds
}

// Args returns the bound arguments in placeholder order: join arguments
// first, then predicate arguments.
func (s Select) Args() []any {
	var args []any
	for _, f := range s.joins {
		args = append(args, f.Args...)
	}
	for _, f := range s.where {
		args = append(args, f.Args...)
	}
	return args
}

// Render returns the SQL text of s and its arguments.
func (s Select) Render(q Quoter) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.columns == "" {
		b.WriteString("*")
	} else {
		b.WriteString(s.columns)
	}
	b.WriteString(" FROM ")
	b.WriteString(q.QuoteIdentifier(s.table))
	if s.alias != "" {
		b.WriteString(" ")
		b.WriteString(s.alias)
	}
	for _, j := range s.joins {
		b.WriteString(" ")
		b.WriteString(j.SQL)
	}
	if len(s.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(s.Conditions(), " AND "))
	}
	if s.group != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(s.group)
	}
	if s.order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(s.order)
	}
	switch {
	case s.hasLimit && s.hasOffset:
		b.WriteString(" LIMIT " + strconv.FormatInt(s.offset, 10) + ", " + strconv.FormatInt(s.limit, 10))
	case s.hasLimit:
		b.WriteString(" LIMIT " + strconv.FormatInt(s.limit, 10))
	case s.hasOffset:
		b.WriteString(" LIMIT " + strconv.FormatInt(s.offset, 10) + ", " + q.MaxLimit())
	}
	return b.String(), s.Args()
}
