// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Sqlrecord is an active record layer for SQL databases. Records are Go structs
whose fields carry `db` tags; each record type is bound to a Model holding its
table schema, its named scopes and relations, and an identity cache.

# Basics

A schema is declared with package schema and handed to NewModel together with
the Registry the model belongs to:

	type Person struct {
		ID      int64  `db:"id"`
		Name    string `db:"name"`
		Address int64  `db:"address_id"`
	}

	s := schema.New()
	s.DefineColumn("id", schema.Serial(schema.Normal))
	s.DefineColumn("name", schema.Character{Size: 255})
	s.DefineColumn("address_id", schema.Integer{Size: schema.Normal, Unsigned: true})
	s.SetPrimary("id")

	reg := sqlrecord.NewRegistry(db)
	people, err := sqlrecord.NewModel[Person](reg, "Person", s)

The table of the model is named after the model: "people" here, prefixed with
the table prefix of the connection. Registry.Install creates the tables and
indexes of every model.

# Queries

Queries are immutable. Every builder method returns a new Query, so a query
can be branched without the branches observing each other:

	adults := people.Where("age >= ?", 18)
	named := adults.Where(map[string]any{"name": "Fred"})
	first, err := named.Order("id").One(ctx)

Invalid input is recorded on the query and returned by Render and by the
terminal methods All, One, Count, Exists and Pairs.

# Identity

Find returns the same *T for a key until the entry is evicted. Saving a
record by key and deleting it evict the cached instance; instances already
handed out are never modified, so a caller holding one sees the old values
until it calls Find again.
*/
package sqlrecord
