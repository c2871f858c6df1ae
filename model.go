// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"context"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/canonical/sqlrecord/conn"
	"github.com/canonical/sqlrecord/internal/clause"
	"github.com/canonical/sqlrecord/internal/typeinfo"
	"github.com/canonical/sqlrecord/schema"
)

// Validator checks the properties passed to Save. It returns the reasons
// each rejected property is invalid, or nothing when all are valid.
type Validator func(props map[string]any) map[string][]string

// ModelOption configures a Model.
type ModelOption func(*modelOptions)

type modelOptions struct {
	table     string
	validator Validator
}

// WithTable sets the table name of the model, without the prefix. It
// defaults to the underscored plural of the model name.
func WithTable(table string) ModelOption {
	return func(o *modelOptions) {
		o.table = table
	}
}

// WithValidator sets the validation hook run by Save.
func WithValidator(v Validator) ModelOption {
	return func(o *modelOptions) {
		o.validator = v
	}
}

// TableName returns the default table name of a model called name.
func TableName(name string) string {
	return inflect.Underscore(inflect.Pluralize(name))
}

// Model binds the record type T to a table. T is a struct with `db` tags or
// a map type with string keys, such as M.
type Model[T any] struct {
	reg       *Registry
	name      string
	table     string
	schema    *schema.Schema
	primary   []string
	cache     *IdentityCache[T]
	scopes    map[string]ScopeFunc[T]
	relations map[string]Relation[T]
	validator Validator

	// mapped is set when T is a map type.
	mapped bool
}

// recordType returns the reflect.Type of T, which may be an interface type.
func recordType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// NewModel creates the model called name and adds it to reg. The schema must
// have a primary key.
func NewModel[T any](reg *Registry, name string, s *schema.Schema, opts ...ModelOption) (*Model[T], error) {
	if name == "" {
		return nil, fmt.Errorf("cannot create model: empty name")
	}
	if s == nil {
		return nil, fmt.Errorf("cannot create model %q: no schema", name)
	}
	primary := s.Primary()
	if len(primary) == 0 {
		return nil, fmt.Errorf("cannot create model %q: schema has no primary key", name)
	}

	m := &Model[T]{
		reg:       reg,
		name:      name,
		schema:    s,
		primary:   primary,
		cache:     NewIdentityCache[T](),
		scopes:    map[string]ScopeFunc[T]{},
		relations: map[string]Relation[T]{},
	}

	typ := recordType[T]()
	switch {
	case typ.Kind() == reflect.Map && typ.Key().Kind() == reflect.String && typ.Elem().Kind() == reflect.Interface:
		m.mapped = true
	case typ.Kind() == reflect.Struct:
		info, err := typeinfo.ForType(typ)
		if err != nil {
			return nil, fmt.Errorf("cannot create model %q: %w", name, err)
		}
		for _, col := range primary {
			if _, ok := info.TagToField[col]; !ok {
				return nil, fmt.Errorf("cannot create model %q: type %s has no field for primary key column %q", name, typ.Name(), col)
			}
		}
	default:
		return nil, fmt.Errorf("cannot create model %q: record type %s is not a struct or a map with string keys", name, typ)
	}

	var o modelOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.table == "" {
		o.table = TableName(name)
	}
	m.table = reg.conn.TablePrefix() + o.table
	m.validator = o.validator

	if err := reg.register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the model name.
func (m *Model[T]) Name() string {
	return m.name
}

// Table returns the table name, including the prefix.
func (m *Model[T]) Table() string {
	return m.table
}

// Schema returns the table schema.
func (m *Model[T]) Schema() *schema.Schema {
	return m.schema
}

// Primary returns the primary key columns.
func (m *Model[T]) Primary() []string {
	return append([]string(nil), m.primary...)
}

// Registry returns the registry the model belongs to.
func (m *Model[T]) Registry() *Registry {
	return m.reg
}

// Cache returns the identity cache of the model.
func (m *Model[T]) Cache() *IdentityCache[T] {
	return m.cache
}

// ClearCache empties the identity cache.
func (m *Model[T]) ClearCache() {
	m.cache.Clear()
}

// Query returns a query selecting every record of the model.
func (m *Model[T]) Query() *Query[T] {
	return &Query[T]{model: m, sel: clause.New(m.table)}
}

// Where is a shortcut for m.Query().Where(cond, args...).
func (m *Model[T]) Where(cond any, args ...any) *Query[T] {
	return m.Query().Where(cond, args...)
}

func (m *Model[T]) db() Conn {
	return m.reg.conn
}

func (m *Model[T]) quote(id string) string {
	return m.reg.conn.QuoteIdentifier(id)
}

// keyValues returns the primary key values of key in primary key order.
func (m *Model[T]) keyValues(key any) ([]any, error) {
	if k, ok := key.(Key); ok {
		if len(k) != len(m.primary) {
			return nil, fmt.Errorf("model %q: key %v has %d values, primary key has %d columns", m.name, key, len(k), len(m.primary))
		}
		return k, nil
	}
	if len(m.primary) > 1 {
		return nil, fmt.Errorf("model %q: composite primary key needs a Key, got %T", m.name, key)
	}
	return []any{key}, nil
}

// keyOf returns the key addressing the primary key values vals.
func (m *Model[T]) keyOf(vals []any) any {
	if len(m.primary) == 1 {
		return vals[0]
	}
	return Key(vals)
}

// keyFromRow returns the key of a result row.
func (m *Model[T]) keyFromRow(row map[string]any) (any, bool) {
	vals := make([]any, len(m.primary))
	for i, col := range m.primary {
		v, ok := row[col]
		if !ok {
			return nil, false
		}
		vals[i] = v
	}
	return m.keyOf(vals), true
}

// keysCondition returns the predicate matching the rows of keys.
func (m *Model[T]) keysCondition(keys [][]any) (clause.Fragment, error) {
	if len(m.primary) == 1 {
		flat := make([]any, len(keys))
		for i, vals := range keys {
			flat[i] = vals[0]
		}
		return clause.Equal(m.quote, map[string]any{m.primary[0]: flat})
	}
	var groups []string
	var args []any
	for _, vals := range keys {
		parts := make([]string, len(m.primary))
		for i, col := range m.primary {
			parts[i] = m.quote(col) + " = ?"
		}
		groups = append(groups, "("+strings.Join(parts, " AND ")+")")
		args = append(args, vals...)
	}
	return clause.Fragment{SQL: strings.Join(groups, " OR "), Args: args}, nil
}

// fullRow reports whether row holds every column of the schema.
func (m *Model[T]) fullRow(row map[string]any) bool {
	for _, col := range m.schema.ColumnNames() {
		if _, ok := row[col]; !ok {
			return false
		}
	}
	return true
}

func (m *Model[T]) hydrate(row map[string]any) (*T, error) {
	if m.mapped {
		typ := recordType[T]()
		rv := reflect.MakeMapWithSize(typ, len(row))
		for k, v := range row {
			val := reflect.Zero(typ.Elem())
			if v != nil {
				val = reflect.ValueOf(v)
			}
			rv.SetMapIndex(reflect.ValueOf(k).Convert(typ.Key()), val)
		}
		rec := rv.Interface().(T)
		return &rec, nil
	}
	rec := new(T)
	if err := typeinfo.Hydrate(rec, row); err != nil {
		return nil, fmt.Errorf("cannot map %s record: %w", m.name, err)
	}
	return rec, nil
}

func (m *Model[T]) extract(rec *T) (map[string]any, error) {
	if rec == nil {
		return nil, fmt.Errorf("cannot read %s record: nil record", m.name)
	}
	if m.mapped {
		props := map[string]any{}
		iter := reflect.ValueOf(*rec).MapRange()
		for iter.Next() {
			props[iter.Key().String()] = iter.Value().Interface()
		}
		return props, nil
	}
	return typeinfo.Extract(rec)
}

// value returns the value of column col of rec. Values implementing
// driver.Valuer are resolved and pointers are followed.
func (m *Model[T]) value(rec *T, col string) (any, error) {
	if rec == nil {
		return nil, fmt.Errorf("cannot read %s record: nil record", m.name)
	}
	var v any
	if m.mapped {
		mv := reflect.ValueOf(*rec).MapIndex(reflect.ValueOf(col))
		if !mv.IsValid() {
			return nil, nil
		}
		v = mv.Interface()
	} else {
		var err error
		if v, err = typeinfo.Value(rec, col); err != nil {
			return nil, err
		}
	}
	if valuer, ok := v.(driver.Valuer); ok {
		return valuer.Value()
	}
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	return rv.Interface(), nil
}

func (m *Model[T]) setValue(rec *T, col string, v any) error {
	if m.mapped {
		rv := reflect.ValueOf(*rec)
		if rv.IsNil() {
			return fmt.Errorf("cannot set %q on nil %s record", col, m.name)
		}
		val := reflect.Zero(rv.Type().Elem())
		if v != nil {
			val = reflect.ValueOf(v)
		}
		rv.SetMapIndex(reflect.ValueOf(col), val)
		return nil
	}
	return typeinfo.SetValue(rec, col, v)
}

func (m *Model[T]) evict(key any) {
	m.cache.Evict(key)
	m.reg.logger.Debug("evicted record", "model", m.name, "key", key)
}

// materialize maps rows to records through the identity cache. Rows that
// hold the whole record reuse the cached instance of their key or become it.
func (m *Model[T]) materialize(rows []conn.Row) ([]*T, error) {
	recs := make([]*T, 0, len(rows))
	for _, row := range rows {
		key, ok := m.keyFromRow(row)
		cacheable := ok && m.fullRow(row)
		if cacheable {
			if rec, hit := m.cache.Retrieve(key); hit {
				recs = append(recs, rec)
				continue
			}
		}
		rec, err := m.hydrate(row)
		if err != nil {
			return nil, err
		}
		if cacheable {
			if err := m.cache.Store(key, rec); err != nil {
				return nil, err
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Find returns the record of key. Composite keys are given as a Key.
func (m *Model[T]) Find(ctx context.Context, key any) (*T, error) {
	km, err := m.FindMany(ctx, key)
	if err != nil {
		return nil, err
	}
	rec, _ := km.Get(key)
	return rec, nil
}

// FindMany returns the records of keys. Cached records are returned without
// a query and the others are fetched with a single one. Keys without a
// record map to nil, unless no key has a record, in which case a
// *RecordNotFoundError carrying the map is returned.
func (m *Model[T]) FindMany(ctx context.Context, keys ...any) (*KeyMap[*T], error) {
	result := NewKeyMap[*T]()
	var missing [][]any
	var missingKeys []any
	for _, key := range keys {
		vals, err := m.keyValues(key)
		if err != nil {
			return nil, err
		}
		if rec, ok := m.cache.Retrieve(key); ok {
			if err := result.Set(key, rec); err != nil {
				return nil, err
			}
			continue
		}
		if err := result.Set(key, nil); err != nil {
			return nil, err
		}
		missing = append(missing, vals)
		missingKeys = append(missingKeys, key)
	}

	if len(missing) > 0 {
		cond, err := m.keysCondition(missing)
		if err != nil {
			return nil, err
		}
		if _, err := m.Query().where(cond).All(ctx); err != nil {
			return nil, err
		}
		for _, key := range missingKeys {
			if rec, ok := m.cache.Retrieve(key); ok {
				result.Set(key, rec)
			}
		}
	}

	found := 0
	for _, rec := range result.Values() {
		if rec != nil {
			found++
		}
	}
	if len(keys) > 0 && found == 0 {
		return nil, &RecordNotFoundError{Model: m.name, Keys: keys, Partial: result}
	}
	return result, nil
}

// Exists reports whether a record with key exists.
func (m *Model[T]) Exists(ctx context.Context, key any) (bool, error) {
	km, err := m.ExistsMany(ctx, key)
	if err != nil {
		return false, err
	}
	ok, _ := km.Get(key)
	return ok, nil
}

// ExistsMany reports for each key whether a record with that key exists.
// Cached keys are not queried.
func (m *Model[T]) ExistsMany(ctx context.Context, keys ...any) (*KeyMap[bool], error) {
	result := NewKeyMap[bool]()
	var missing [][]any
	for _, key := range keys {
		vals, err := m.keyValues(key)
		if err != nil {
			return nil, err
		}
		_, cached := m.cache.Retrieve(key)
		if err := result.Set(key, cached); err != nil {
			return nil, err
		}
		if !cached {
			missing = append(missing, vals)
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	cond, err := m.keysCondition(missing)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(m.primary))
	for i, col := range m.primary {
		cols[i] = m.quote(col)
	}
	query, args, err := m.Query().Select(strings.Join(cols, ", ")).where(cond).Render()
	if err != nil {
		return nil, err
	}
	rows, err := m.db().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if key, ok := m.keyFromRow(row); ok {
			result.Set(key, true)
		}
	}
	return result, nil
}

// Save writes props. With a key, the record of that key is updated with
// props, or inserted when it does not exist, and its cached instance is
// evicted, so the next Find maps the stored row again. Without a key a new
// record is inserted; its key is taken from the serial column or from props.
//
// The validator runs first; when it rejects props nothing is written and a
// *RecordNotValidError is returned. Save returns the key of the record.
func (m *Model[T]) Save(ctx context.Context, props map[string]any, key ...any) (any, error) {
	if len(key) > 1 {
		return nil, fmt.Errorf("cannot save %s record: more than one key given", m.name)
	}
	if m.validator != nil {
		if fields := m.validator(props); len(fields) > 0 {
			return nil, &RecordNotValidError{Model: m.name, Fields: fields}
		}
	}
	row := make(map[string]any, len(props)+len(m.primary))
	for col, v := range props {
		if _, ok := m.schema.Column(col); !ok {
			return nil, fmt.Errorf("cannot save %s record: unknown column %q", m.name, col)
		}
		row[col] = v
	}
	if len(key) == 1 {
		vals, err := m.keyValues(key[0])
		if err != nil {
			return nil, err
		}
		for i, col := range m.primary {
			row[col] = vals[i]
		}
		if err := m.saveByKey(ctx, row, vals); err != nil {
			return nil, err
		}
		m.evict(key[0])
		return key[0], nil
	}

	cols, args := m.columnsOf(row)
	if len(cols) == 0 {
		return nil, fmt.Errorf("cannot save %s record: no properties given", m.name)
	}
	res, err := m.db().Exec(ctx, m.db().Dialect().Insert(m.table, cols), args...)
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(m.primary))
	serial, hasSerial := m.schema.SerialColumn()
	for i, col := range m.primary {
		v, ok := row[col]
		if !ok && hasSerial && serial.Name == col {
			v = res.LastInsertID
		}
		vals[i] = v
	}
	return m.keyOf(vals), nil
}

// saveByKey updates the non key columns of the record with the key values
// vals. When no record has that key, row is inserted with the dialect
// upsert, so columns missing from row take their defaults.
func (m *Model[T]) saveByKey(ctx context.Context, row map[string]any, vals []any) error {
	cond, err := m.keysCondition([][]any{vals})
	if err != nil {
		return err
	}
	cols, args := m.columnsOf(row)
	var sets []string
	var setArgs []any
	for i, col := range cols {
		if m.schema.IsPrimary(col) {
			continue
		}
		sets = append(sets, m.quote(col)+" = ?")
		setArgs = append(setArgs, args[i])
	}
	if len(sets) > 0 {
		update := "UPDATE " + m.quote(m.table) + " SET " + strings.Join(sets, ", ") + " WHERE " + cond.SQL
		res, err := m.db().Exec(ctx, update, append(setArgs, cond.Args...)...)
		if err != nil {
			return err
		}
		if res.RowsAffected > 0 {
			return nil
		}
	}
	// MySQL counts no affected rows when the values are unchanged.
	exists, err := m.Query().where(cond).Exists(ctx)
	if err != nil || exists {
		return err
	}
	_, err = m.db().Exec(ctx, m.db().Dialect().Upsert(m.table, cols, m.primary), args...)
	return err
}

// SaveRecord saves the columns of rec. A record whose primary key values are
// all set is saved by key; otherwise it is inserted and an unset serial key
// is generated by the database.
func (m *Model[T]) SaveRecord(ctx context.Context, rec *T) (any, error) {
	props, err := m.extract(rec)
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(m.primary))
	complete := true
	for i, col := range m.primary {
		v := props[col]
		if v == nil || reflect.ValueOf(v).IsZero() {
			complete = false
		}
		vals[i] = v
	}
	if complete {
		for _, col := range m.primary {
			delete(props, col)
		}
		return m.Save(ctx, props, m.keyOf(vals))
	}
	if serial, ok := m.schema.SerialColumn(); ok {
		if v := props[serial.Name]; v == nil || reflect.ValueOf(v).IsZero() {
			delete(props, serial.Name)
		}
	}
	return m.Save(ctx, props)
}

// Delete removes the record of key. The cached instance is evicted whether
// or not the statement succeeds.
func (m *Model[T]) Delete(ctx context.Context, key any) error {
	vals, err := m.keyValues(key)
	if err != nil {
		return err
	}
	m.evict(key)
	cond, err := m.keysCondition([][]any{vals})
	if err != nil {
		return err
	}
	_, err = m.db().Exec(ctx, "DELETE FROM "+m.quote(m.table)+" WHERE "+cond.SQL, cond.Args...)
	return err
}

// columnsOf returns the columns of row in schema order with their values.
func (m *Model[T]) columnsOf(row map[string]any) ([]string, []any) {
	var cols []string
	var args []any
	for _, col := range m.schema.ColumnNames() {
		if v, ok := row[col]; ok {
			cols = append(cols, col)
			args = append(args, v)
		}
	}
	return cols, args
}
