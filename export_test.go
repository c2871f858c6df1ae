// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"time"
)

// SetNow replaces the clock used to resolve Now and returns a function
// restoring it.
func SetNow(f func() time.Time) func() {
	old := now
	now = f
	return func() { now = old }
}

// EncodeKey exposes the key encoding used by caches and key maps.
func EncodeKey(vals ...any) (string, error) {
	return encodeKey(vals)
}
