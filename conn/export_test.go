// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package conn

// CachedStatements returns the number of statements cached by db.
func CachedStatements(db *DB) int {
	return db.stmts.len()
}
