// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

// IdentityCache holds the single live instance of each record of a model,
// keyed by primary key value. Repeated lookups of a key return the same
// pointer until the entry is evicted.
//
// An IdentityCache is not safe for concurrent use. Workers running
// concurrently must each own their models.
type IdentityCache[T any] struct {
	entries map[string]*T
}

// NewIdentityCache returns an empty cache.
func NewIdentityCache[T any]() *IdentityCache[T] {
	return &IdentityCache[T]{entries: map[string]*T{}}
}

// Store makes rec the instance of key.
func (c *IdentityCache[T]) Store(key any, rec *T) error {
	enc, err := encodeKey(keyValues(key))
	if err != nil {
		return err
	}
	c.entries[enc] = rec
	return nil
}

// Retrieve returns the instance of key.
func (c *IdentityCache[T]) Retrieve(key any) (*T, bool) {
	enc, err := encodeKey(keyValues(key))
	if err != nil {
		return nil, false
	}
	rec, ok := c.entries[enc]
	return rec, ok
}

// Evict forgets the instance of key. Callers still holding it are not
// affected.
func (c *IdentityCache[T]) Evict(key any) {
	if enc, err := encodeKey(keyValues(key)); err == nil {
		delete(c.entries, enc)
	}
}

// Clear forgets all instances.
func (c *IdentityCache[T]) Clear() {
	c.entries = map[string]*T{}
}

// Len returns the number of cached instances.
func (c *IdentityCache[T]) Len() int {
	return len(c.entries)
}
