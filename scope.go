// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"fmt"
)

// ScopeFunc narrows q. Record level scopes receive the record as the first
// argument.
type ScopeFunc[T any] func(q *Query[T], args ...any) *Query[T]

// DefineScope registers fn under name.
func (m *Model[T]) DefineScope(name string, fn ScopeFunc[T]) error {
	if name == "" || fn == nil {
		return fmt.Errorf("cannot define scope on model %q: empty name or nil function", m.name)
	}
	if _, ok := m.scopes[name]; ok {
		return fmt.Errorf("scope %q already defined on model %q", name, m.name)
	}
	m.scopes[name] = fn
	return nil
}

// Scope returns a query over the model narrowed by the scope called name.
func (m *Model[T]) Scope(name string, args ...any) (*Query[T], error) {
	q := m.Query().Scope(name, args...)
	if err := q.Err(); err != nil {
		return nil, err
	}
	return q, nil
}

// ScopeFor applies the scope called name with rec as its first argument.
func (m *Model[T]) ScopeFor(rec *T, name string, args ...any) (*Query[T], error) {
	return m.Scope(name, append([]any{rec}, args...)...)
}
