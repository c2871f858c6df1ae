// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package typeinfo maps record structs to and from result rows. As much as
possible, reflection code is limited to this package.

Struct fields take part in the mapping when they carry a "db" tag naming the
column:

	type Person struct {
		ID   int64  `db:"id"`
		Name string `db:"name,omitempty"`
	}

Fields tagged with omitempty are left out of extracted rows when they hold
their zero value.
*/
package typeinfo
