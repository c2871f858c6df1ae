// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"context"
	"fmt"
	"reflect"
)

// Relation resolves the records associated with a record of type T.
type Relation[T any] interface {
	Name() string
	// Resolve returns the associated record, for a belongs-to relation,
	// or the query selecting the associated records.
	Resolve(ctx context.Context, rec *T) (any, error)
}

func (m *Model[T]) addRelation(r Relation[T]) error {
	if _, ok := m.relations[r.Name()]; ok {
		return &RelationConfigError{Relation: r.Name(), Model: m.name, Reason: "already defined"}
	}
	m.relations[r.Name()] = r
	return nil
}

// Relation returns the relation called name.
func (m *Model[T]) Relation(name string) (Relation[T], error) {
	r, ok := m.relations[name]
	if !ok {
		return nil, &RelationConfigError{Relation: name, Model: m.name, Reason: "not defined"}
	}
	return r, nil
}

// Related resolves the relation called name for rec.
func (m *Model[T]) Related(ctx context.Context, rec *T, name string) (any, error) {
	r, err := m.Relation(name)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, rec)
}

func checkAssociate[U any](name string, owner ModelRef, assoc *Model[U]) error {
	if recordType[U]().Kind() != reflect.Struct {
		return &RelationConfigError{
			Relation: name,
			Model:    owner.Name(),
			Reason:   fmt.Sprintf("associate model %q has no concrete record type", assoc.name),
		}
	}
	return nil
}

// BelongsTo resolves the single record of model U referenced by a foreign
// key column of T.
type BelongsTo[T, U any] struct {
	name  string
	owner *Model[T]
	fk    string
	assoc *Model[U]
}

// NewBelongsTo declares that records of owner reference a record of assoc
// through column fk.
func NewBelongsTo[T, U any](name string, owner *Model[T], fk string, assoc *Model[U]) (*BelongsTo[T, U], error) {
	if err := checkAssociate(name, owner, assoc); err != nil {
		return nil, err
	}
	if _, ok := owner.schema.Column(fk); !ok {
		return nil, &RelationConfigError{Relation: name, Model: owner.name, Reason: fmt.Sprintf("unknown foreign key column %q", fk)}
	}
	if len(assoc.primary) != 1 {
		return nil, &RelationConfigError{Relation: name, Model: owner.name, Reason: fmt.Sprintf("associate model %q has a composite primary key", assoc.name)}
	}
	r := &BelongsTo[T, U]{name: name, owner: owner, fk: fk, assoc: assoc}
	if err := owner.addRelation(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *BelongsTo[T, U]) Name() string {
	return r.name
}

// Get returns the referenced record, or nil when the foreign key is null.
func (r *BelongsTo[T, U]) Get(ctx context.Context, rec *T) (*U, error) {
	v, err := r.owner.value(rec, r.fk)
	if err != nil || v == nil {
		return nil, err
	}
	return r.assoc.Find(ctx, v)
}

// Set points the foreign key of rec at other, or clears it when other is
// nil. rec is not saved.
func (r *BelongsTo[T, U]) Set(rec *T, other *U) error {
	if other == nil {
		return r.owner.setValue(rec, r.fk, nil)
	}
	v, err := r.assoc.value(other, r.assoc.primary[0])
	if err != nil {
		return err
	}
	return r.owner.setValue(rec, r.fk, v)
}

func (r *BelongsTo[T, U]) Resolve(ctx context.Context, rec *T) (any, error) {
	return r.Get(ctx, rec)
}

// HasMany resolves the records of model U that reference a record of T,
// either directly through a foreign key column of U or through a pivot
// table.
type HasMany[T, U any] struct {
	name     string
	owner    *Model[T]
	assoc    *Model[U]
	fk       string
	localKey string
	pivot    ModelRef
	assocKey string
}

// HasManyOption configures a HasMany relation.
type HasManyOption func(*hasManyOptions)

type hasManyOptions struct {
	localKey string
	pivot    ModelRef
	assocKey string
}

// LocalKey sets the owner column matched by the foreign key. It defaults to
// the primary key of the owner.
func LocalKey(col string) HasManyOption {
	return func(o *hasManyOptions) {
		o.localKey = col
	}
}

// Through resolves the relation through pivot. The foreign key then names
// the pivot column referencing the owner and assocKey the pivot column
// referencing the associate.
func Through(pivot ModelRef, assocKey string) HasManyOption {
	return func(o *hasManyOptions) {
		o.pivot = pivot
		o.assocKey = assocKey
	}
}

// NewHasMany declares that records of assoc reference records of owner
// through column fk.
func NewHasMany[T, U any](name string, owner *Model[T], assoc *Model[U], fk string, opts ...HasManyOption) (*HasMany[T, U], error) {
	if err := checkAssociate(name, owner, assoc); err != nil {
		return nil, err
	}
	var o hasManyOptions
	for _, opt := range opts {
		opt(&o)
	}
	fail := func(format string, args ...any) error {
		return &RelationConfigError{Relation: name, Model: owner.name, Reason: fmt.Sprintf(format, args...)}
	}

	if o.localKey == "" {
		if len(owner.primary) != 1 {
			return nil, fail("owner has a composite primary key, a local key is required")
		}
		o.localKey = owner.primary[0]
	}
	if _, ok := owner.schema.Column(o.localKey); !ok {
		return nil, fail("unknown local key column %q", o.localKey)
	}
	if o.pivot == nil {
		if _, ok := assoc.schema.Column(fk); !ok {
			return nil, fail("unknown foreign key column %q", fk)
		}
	} else {
		if _, ok := o.pivot.Schema().Column(fk); !ok {
			return nil, fail("pivot %q has no column %q", o.pivot.Name(), fk)
		}
		if _, ok := o.pivot.Schema().Column(o.assocKey); !ok {
			return nil, fail("pivot %q has no column %q", o.pivot.Name(), o.assocKey)
		}
		if len(assoc.primary) != 1 {
			return nil, fail("associate model %q has a composite primary key", assoc.name)
		}
	}

	r := &HasMany[T, U]{
		name:     name,
		owner:    owner,
		assoc:    assoc,
		fk:       fk,
		localKey: o.localKey,
		pivot:    o.pivot,
		assocKey: o.assocKey,
	}
	if err := owner.addRelation(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *HasMany[T, U]) Name() string {
	return r.name
}

// Get returns the query selecting the records associated with rec.
func (r *HasMany[T, U]) Get(rec *T) (*Query[U], error) {
	local, err := r.owner.value(rec, r.localKey)
	if err != nil {
		return nil, err
	}
	if r.pivot == nil {
		return r.assoc.Where(map[string]any{r.fk: local}), nil
	}
	q := r.assoc.quote
	pivot, table := r.pivot.Table(), r.assoc.table
	join := fmt.Sprintf("JOIN %s ON (%s = %s AND %s = ?)",
		q(pivot),
		q(pivot+"."+r.assocKey),
		q(table+"."+r.assoc.primary[0]),
		q(pivot+"."+r.fk),
	)
	sel := r.assoc.Query().Select(q(table) + ".*").Join(join, local)
	return sel, sel.Err()
}

func (r *HasMany[T, U]) Resolve(ctx context.Context, rec *T) (any, error) {
	return r.Get(rec)
}
