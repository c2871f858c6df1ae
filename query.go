// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/canonical/sqlrecord/internal/clause"
)

// Query is an immutable SELECT over the table of a model. Every builder
// method returns a new Query and leaves the receiver unchanged, so a Query
// can be branched and the branches used from different goroutines.
//
// Invalid builder input is recorded on the Query and returned by Render and
// by every terminal method.
type Query[T any] struct {
	model *Model[T]
	sel   clause.Select
	err   error
}

func (q *Query[T]) with(sel clause.Select) *Query[T] {
	return &Query[T]{model: q.model, sel: sel, err: q.err}
}

func (q *Query[T]) fail(err error) *Query[T] {
	if q.err != nil {
		return q
	}
	return &Query[T]{model: q.model, sel: q.sel, err: err}
}

// Model returns the model the query selects from.
func (q *Query[T]) Model() *Model[T] {
	return q.model
}

// Err returns the first error recorded while building the query.
func (q *Query[T]) Err() error {
	return q.err
}

// Select replaces the select list. It defaults to "*".
func (q *Query[T]) Select(columns string) *Query[T] {
	return q.with(q.sel.WithColumns(columns))
}

// As sets the alias of the table.
func (q *Query[T]) As(alias string) *Query[T] {
	return q.with(q.sel.WithAlias(alias))
}

// Join appends a join clause. The arguments bind to the placeholders of
// fragment and come before those of the WHERE clause.
func (q *Query[T]) Join(fragment string, args ...any) *Query[T] {
	f, err := clause.NewFragment(fragment, args...)
	if err != nil {
		return q.fail(err)
	}
	return q.with(q.sel.WithJoin(f))
}

// Where adds a predicate. cond is either a map of column to value, matched
// with AND in sorted column order, or an SQL fragment with one argument per
// "?" placeholder. In a map a nil value matches NULL and a slice matches any
// of its elements.
func (q *Query[T]) Where(cond any, args ...any) *Query[T] {
	var conds map[string]any
	switch c := cond.(type) {
	case string:
		f, err := clause.NewFragment(c, args...)
		if err != nil {
			return q.fail(err)
		}
		return q.where(f)
	case map[string]any:
		conds = c
	case M:
		conds = c
	default:
		return q.fail(fmt.Errorf("unsupported condition type %T", cond))
	}
	if len(args) > 0 {
		return q.fail(fmt.Errorf("map condition takes no arguments, got %d", len(args)))
	}
	f, err := clause.Equal(q.model.quote, conds)
	if err != nil {
		return q.fail(err)
	}
	return q.where(f)
}

// And is Where for SQL fragments.
func (q *Query[T]) And(fragment string, args ...any) *Query[T] {
	return q.Where(fragment, args...)
}

func (q *Query[T]) where(f clause.Fragment) *Query[T] {
	return q.with(q.sel.WithWhere(f))
}

// Group replaces the GROUP BY list.
func (q *Query[T]) Group(columns string) *Query[T] {
	return q.with(q.sel.WithGroup(columns))
}

// Order replaces the ORDER BY list. With explicit values the rows are sorted
// by the position of column col in that list.
func (q *Query[T]) Order(col string, explicit ...any) *Query[T] {
	if len(explicit) > 0 {
		col = q.model.db().Dialect().OrderByField(q.model.quote(col), explicit)
	}
	return q.with(q.sel.WithOrder(col))
}

// Limit sets the maximum number of rows and, optionally, the offset.
func (q *Query[T]) Limit(n int, offset ...int) *Query[T] {
	if n < 0 {
		return q.fail(fmt.Errorf("negative limit %d", n))
	}
	if len(offset) > 1 {
		return q.fail(fmt.Errorf("more than one offset given"))
	}
	sel := q.sel.WithLimit(int64(n))
	if len(offset) == 1 {
		if offset[0] < 0 {
			return q.fail(fmt.Errorf("negative offset %d", offset[0]))
		}
		sel = sel.WithOffset(int64(offset[0]))
	}
	return q.with(sel)
}

// Offset sets the number of rows skipped.
func (q *Query[T]) Offset(n int) *Query[T] {
	if n < 0 {
		return q.fail(fmt.Errorf("negative offset %d", n))
	}
	return q.with(q.sel.WithOffset(int64(n)))
}

// Scope applies the scope called name.
func (q *Query[T]) Scope(name string, args ...any) *Query[T] {
	if q.err != nil {
		return q
	}
	fn, ok := q.model.scopes[name]
	if !ok {
		return q.fail(&ScopeNotDefinedError{Name: name, Model: q.model.name})
	}
	return fn(q, args...)
}

// Render returns the SQL text and arguments of the query.
func (q *Query[T]) Render() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	sql, args := q.sel.Render(q.model.db().Dialect())
	return sql, args, nil
}

// String returns the SQL text of the query, or the build error.
func (q *Query[T]) String() string {
	sql, _, err := q.Render()
	if err != nil {
		return "invalid query: " + err.Error()
	}
	return sql
}

// All returns the matching records. Records whose key is cached are
// returned as the cached instance.
func (q *Query[T]) All(ctx context.Context) ([]*T, error) {
	sql, args, err := q.Render()
	if err != nil {
		return nil, err
	}
	rows, err := q.model.db().Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return q.model.materialize(rows)
}

// One returns the first matching record, or nil. It limits the query to one
// row unless a limit is set.
func (q *Query[T]) One(ctx context.Context) (*T, error) {
	sel := q.sel
	if !sel.HasLimit() {
		sel = sel.WithLimit(1)
	}
	recs, err := q.with(sel).All(ctx)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// Count returns the number of matching rows, ignoring the order and any
// limit or offset. A grouped query counts its groups and a query with a
// select list counts the rows it selects, so "DISTINCT col" counts the
// distinct values.
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	d := q.model.db().Dialect()
	sel := q.sel.WithOrder("").WithoutPaging()
	var sql string
	var args []any
	if sel.Grouped() || sel.Columns() != "" {
		var inner string
		inner, args = sel.Render(d)
		sql = "SELECT COUNT(*) AS total FROM (" + inner + ") AS counted"
	} else {
		sql, args = sel.WithColumns("COUNT(*) AS total").Render(d)
	}
	rows, err := q.model.db().Query(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return countValue(rows[0]["total"])
}

// Exists reports whether any row matches.
func (q *Query[T]) Exists(ctx context.Context) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	sql, args := q.sel.WithColumns("1").WithOrder("").WithLimit(1).Render(q.model.db().Dialect())
	rows, err := q.model.db().Query(ctx, sql, args...)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Pairs maps the values of column key to the values of column value. Both
// may be qualified with a table name or alias.
func (q *Query[T]) Pairs(ctx context.Context, key, value string) (*KeyMap[any], error) {
	if q.err != nil {
		return nil, q.err
	}
	sql, args := q.sel.WithColumns(q.model.quote(key)+", "+q.model.quote(value)).Render(q.model.db().Dialect())
	rows, err := q.model.db().Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	keyCol, valueCol := unqualified(key), unqualified(value)
	pairs := NewKeyMap[any]()
	for _, row := range rows {
		if err := pairs.Set(row[keyCol], row[valueCol]); err != nil {
			return nil, err
		}
	}
	return pairs, nil
}

func unqualified(col string) string {
	if i := strings.LastIndex(col, "."); i >= 0 {
		return col[i+1:]
	}
	return col
}

func countValue(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("cannot read count from %T", v)
}
