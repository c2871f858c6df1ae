// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Key is the value of a composite primary key, in primary key order.
type Key []any

// encodeKey returns the map key used for the primary key values vals.
// Values that drivers and callers represent differently, such as int and
// int64 or []byte and string, encode the same.
func encodeKey(vals []any) (string, error) {
	norm := make([]any, len(vals))
	for i, v := range vals {
		norm[i] = normalizeKeyValue(v)
	}
	b, err := msgpack.Marshal(norm)
	if err != nil {
		return "", fmt.Errorf("cannot encode key %v: %w", vals, err)
	}
	return string(b), nil
}

func normalizeKeyValue(v any) any {
	switch v := v.(type) {
	case nil, string, int64, bool:
		return v
	case []byte:
		return string(v)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u <= 1<<63-1 {
			return int64(u)
		}
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case reflect.String:
		return rv.String()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalizeKeyValue(rv.Elem().Interface())
	}
	return v
}

// KeyMap maps primary keys to values, keeping the order in which keys were
// added. Keys are looked up by value, so Get(1) finds an entry added with
// int64(1).
type KeyMap[V any] struct {
	keys   []any
	values []V
	index  map[string]int
}

// NewKeyMap returns an empty KeyMap.
func NewKeyMap[V any]() *KeyMap[V] {
	return &KeyMap[V]{index: map[string]int{}}
}

func keyValues(key any) []any {
	if k, ok := key.(Key); ok {
		return k
	}
	return []any{key}
}

// Set associates v with key, replacing any previous value.
func (m *KeyMap[V]) Set(key any, v V) error {
	enc, err := encodeKey(keyValues(key))
	if err != nil {
		return err
	}
	if i, ok := m.index[enc]; ok {
		m.values[i] = v
		return nil
	}
	m.index[enc] = len(m.keys)
	m.keys = append(m.keys, key)
	m.values = append(m.values, v)
	return nil
}

// Get returns the value of key.
func (m *KeyMap[V]) Get(key any) (V, bool) {
	var zero V
	enc, err := encodeKey(keyValues(key))
	if err != nil {
		return zero, false
	}
	i, ok := m.index[enc]
	if !ok {
		return zero, false
	}
	return m.values[i], true
}

// Len returns the number of keys.
func (m *KeyMap[V]) Len() int {
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *KeyMap[V]) Keys() []any {
	return append([]any(nil), m.keys...)
}

// Values returns the values in key order.
func (m *KeyMap[V]) Values() []V {
	return append([]V(nil), m.values...)
}
