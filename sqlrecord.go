// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/canonical/sqlrecord/conn"
	"github.com/canonical/sqlrecord/dialect"
	"github.com/canonical/sqlrecord/schema"
)

// M is a record type holding column values by name. Models over M need no
// struct type, which suits pivot tables and schemas loaded from files.
type M map[string]any

// Conn executes statements for the models of a Registry. It is implemented
// by *conn.DB.
type Conn interface {
	Query(ctx context.Context, query string, args ...any) ([]conn.Row, error)
	Exec(ctx context.Context, query string, args ...any) (conn.Result, error)
	QuoteIdentifier(id string) string
	QuoteLiteral(v any) string
	// TablePrefix is prepended to the table name of every model.
	TablePrefix() string
	Dialect() dialect.Dialect
}

// ModelRef is the part of a Model that does not depend on its record type.
type ModelRef interface {
	Name() string
	// Table returns the table name including the prefix.
	Table() string
	Schema() *schema.Schema
	Primary() []string
	ClearCache()
}

// Registry holds the models sharing a connection. Model names are unique
// within a registry.
//
// A Registry and its models are not safe for concurrent use.
type Registry struct {
	conn   Conn
	logger *slog.Logger
	models map[string]ModelRef
	order  []string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger of the registry and its models.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry returns an empty registry running statements on c.
func NewRegistry(c Conn, opts ...RegistryOption) *Registry {
	r := &Registry{
		conn:   c,
		logger: slog.Default(),
		models: map[string]ModelRef{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Conn returns the connection of the registry.
func (r *Registry) Conn() Conn {
	return r.conn
}

// Lookup returns the model called name.
func (r *Registry) Lookup(name string) (ModelRef, error) {
	m, ok := r.models[name]
	if !ok {
		return nil, &ModelNotDefinedError{Model: name}
	}
	return m, nil
}

// Models returns the models in the order they were created.
func (r *Registry) Models() []ModelRef {
	models := make([]ModelRef, len(r.order))
	for i, name := range r.order {
		models[i] = r.models[name]
	}
	return models
}

func (r *Registry) register(m ModelRef) error {
	if _, ok := r.models[m.Name()]; ok {
		return &ModelAlreadyInstantiatedError{Model: m.Name()}
	}
	r.models[m.Name()] = m
	r.order = append(r.order, m.Name())
	return nil
}

// DDL renders the CREATE TABLE and CREATE INDEX statements of every model.
func (r *Registry) DDL() ([]string, error) {
	d := r.conn.Dialect()
	var stmts []string
	for _, m := range r.Models() {
		create, err := d.CreateTable(m.Schema(), m.Table())
		if err != nil {
			return nil, fmt.Errorf("cannot render model %q: %w", m.Name(), err)
		}
		stmts = append(stmts, create)
		stmts = append(stmts, d.CreateIndexes(m.Schema(), m.Table())...)
	}
	return stmts, nil
}

// Install creates the tables and indexes of every model.
func (r *Registry) Install(ctx context.Context) error {
	stmts, err := r.DDL()
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := r.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("cannot install models: %w", err)
		}
	}
	r.logger.Info("installed models", "models", len(r.order), "statements", len(stmts))
	return nil
}

// ClearCaches empties the identity cache of every model.
func (r *Registry) ClearCaches() {
	for _, m := range r.models {
		m.ClearCache()
	}
}
