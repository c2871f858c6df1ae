// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package schema describes database tables as plain values: columns, indexes and
primary keys.

A Schema is built with explicit calls rather than struct annotations:

	s := schema.New()
	err := s.DefineColumn("id", schema.Serial(schema.Normal))
	err = s.DefineColumn("name", schema.Character{Size: 255})
	err = s.DefineColumn("created_at", schema.Timestamp{Default: schema.CurrentTimestamp})
	err = s.SetPrimary("id")

Every definition is validated when it is made. An invalid column size, a bad
serial configuration, a collation on a binary column or an index over an unknown
column is reported immediately as a *DefinitionError and never reaches the DDL
renderer.
*/
package schema
