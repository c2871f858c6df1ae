// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect_test

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlrecord/dialect"
	"github.com/canonical/sqlrecord/schema"
)

// parsedColumn is what ddlColumns recovers from a rendered column definition.
type parsedColumn struct {
	kind      schema.Kind
	size      int
	precision int
	scale     int
	null      bool
	unique    bool
	def       any
}

var (
	createTableRx = regexp.MustCompile(`^CREATE TABLE (\S+) \((.*)\)[^)]*;$`)
	typeRx        = regexp.MustCompile(`^([A-Z]+)(?:\((\d+)(?:,(\d+))?\))?$`)
)

var keywordKinds = map[string]struct {
	kind schema.Kind
	size int
}{
	"TINYINT":    {schema.KindInteger, 1},
	"SMALLINT":   {schema.KindInteger, 2},
	"MEDIUMINT":  {schema.KindInteger, 3},
	"INTEGER":    {schema.KindInteger, 4},
	"BIGINT":     {schema.KindInteger, 8},
	"DECIMAL":    {schema.KindDecimal, 0},
	"FLOAT":      {schema.KindDecimal, 0},
	"DOUBLE":     {schema.KindDecimal, 0},
	"CHAR":       {schema.KindCharacter, 0},
	"VARCHAR":    {schema.KindCharacter, 0},
	"BINARY":     {schema.KindCharacter, 0},
	"VARBINARY":  {schema.KindCharacter, 0},
	"TINYTEXT":   {schema.KindText, 1},
	"TEXT":       {schema.KindText, 4},
	"MEDIUMTEXT": {schema.KindText, 3},
	"LONGTEXT":   {schema.KindText, 8},
	"TINYBLOB":   {schema.KindBlob, 1},
	"BLOB":       {schema.KindBlob, 4},
	"MEDIUMBLOB": {schema.KindBlob, 3},
	"LONGBLOB":   {schema.KindBlob, 8},
	"DATE":       {schema.KindDate, 0},
	"TIME":       {schema.KindTime, 0},
	"DATETIME":   {schema.KindDateTime, 0},
	"TIMESTAMP":  {schema.KindTimestamp, 0},
}

// splitTopLevel splits s on commas that are not inside parentheses or quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start, quoted := 0, 0, false
	for i, r := range s {
		switch {
		case r == '\'':
			quoted = !quoted
		case quoted:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// ddlColumns is a test double for a database reading back a CREATE TABLE
// statement rendered with an identity quoter.
func ddlColumns(ddl string) (map[string]parsedColumn, error) {
	m := createTableRx.FindStringSubmatch(ddl)
	if m == nil {
		return nil, fmt.Errorf("not a CREATE TABLE statement: %s", ddl)
	}
	cols := map[string]parsedColumn{}
	for _, def := range splitTopLevel(m[2]) {
		if strings.HasPrefix(def, "PRIMARY KEY") {
			continue
		}
		name, rest, _ := strings.Cut(def, " ")
		typ, rest, _ := strings.Cut(rest, " ")
		tm := typeRx.FindStringSubmatch(typ)
		if tm == nil {
			return nil, fmt.Errorf("column %s: bad type %q", name, typ)
		}
		k, ok := keywordKinds[tm[1]]
		if !ok {
			return nil, fmt.Errorf("column %s: unknown type %q", name, tm[1])
		}
		pc := parsedColumn{kind: k.kind, size: k.size}
		if tm[2] != "" {
			n, _ := strconv.Atoi(tm[2])
			if k.kind == schema.KindDecimal {
				pc.precision = n
				pc.scale, _ = strconv.Atoi(tm[3])
			} else {
				pc.size = n
			}
		}
		pc.null = !strings.Contains(rest, "NOT NULL")
		pc.unique = strings.HasSuffix(rest, " UNIQUE") || rest == "UNIQUE"
		if _, after, ok := strings.Cut(rest, "DEFAULT "); ok {
			pc.def = parseDefault(after)
		}
		cols[name] = pc
	}
	return cols, nil
}

func parseDefault(s string) any {
	if strings.HasPrefix(s, "'") {
		end := strings.Index(s[1:], "'")
		for end >= 0 && end+2 < len(s) && s[end+2] == '\'' {
			next := strings.Index(s[end+3:], "'")
			if next < 0 {
				break
			}
			end += next + 2
		}
		return strings.ReplaceAll(strings.ReplaceAll(s[1:end+1], "''", "'"), `\\`, `\`)
	}
	word, _, _ := strings.Cut(s, " ")
	word = strings.Trim(word, "()")
	if tok, ok := schema.ParseToken(word); ok {
		return tok
	}
	if n, err := strconv.ParseInt(word, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(word, 64); err == nil {
		return f
	}
	return word
}

// normalizeDefault maps a schema default onto the value ddlColumns recovers.
func normalizeDefault(v any) any {
	switch v := v.(type) {
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(v)
	case float64:
		return v
	}
	return v
}

func (s *DialectSuite) TestCreateTableRoundTrip(c *C) {
	sc := schema.New()
	c.Assert(sc.DefineColumn("id", schema.Serial(schema.Normal)), IsNil)
	c.Assert(sc.DefineColumn("flag", schema.Integer{Size: schema.Tiny, Unsigned: true, Default: true}), IsNil)
	c.Assert(sc.DefineColumn("qty", schema.Integer{Size: schema.Small, Null: true, Default: -2}), IsNil)
	c.Assert(sc.DefineColumn("price", schema.Decimal{Precision: 8, Scale: 3, Unique: true}), IsNil)
	c.Assert(sc.DefineColumn("ratio", schema.Decimal{Precision: 30, Scale: 2, Approximate: true, Default: 0.5}), IsNil)
	c.Assert(sc.DefineColumn("code", schema.Character{Size: 3, Fixed: true, Unique: true}), IsNil)
	c.Assert(sc.DefineColumn("title", schema.Character{Size: 200, Collate: "utf8_bin", Default: "it's, (new)"}), IsNil)
	c.Assert(sc.DefineColumn("body", schema.Text{Size: schema.Big, Null: true}), IsNil)
	c.Assert(sc.DefineColumn("raw", schema.Blob{Size: schema.Tiny}), IsNil)
	c.Assert(sc.DefineColumn("day", schema.Date{Null: true}), IsNil)
	c.Assert(sc.DefineColumn("at", schema.Time{Default: schema.CurrentTime}), IsNil)
	c.Assert(sc.DefineColumn("seen", schema.DateTime{Unique: true, Default: "2024-01-01 00:00:00"}), IsNil)
	c.Assert(sc.DefineColumn("created", schema.Timestamp{Default: schema.CurrentTimestamp}), IsNil)
	c.Assert(sc.SetPrimary("id"), IsNil)

	for _, d := range []dialect.Dialect{
		dialect.NewMySQL(dialect.WithIdentifierQuoter(identity)),
		dialect.NewSQLite(dialect.WithIdentifierQuoter(identity)),
	} {
		ddl, err := d.CreateTable(sc, "t")
		c.Assert(err, IsNil)
		parsed, err := ddlColumns(ddl)
		c.Assert(err, IsNil, Commentf("%s: %s", d.Name(), ddl))
		c.Assert(parsed, HasLen, len(sc.Columns()))

		for _, col := range sc.Columns() {
			comment := Commentf("%s: column %s in %s", d.Name(), col.Name, ddl)
			got := parsed[col.Name]
			c.Check(got.kind, Equals, col.Kind, comment)
			switch col.Kind {
			case schema.KindDecimal:
				c.Check(got.precision, Equals, col.Precision, comment)
				c.Check(got.scale, Equals, col.Scale, comment)
			case schema.KindDate, schema.KindTime, schema.KindDateTime, schema.KindTimestamp:
			default:
				c.Check(got.size, Equals, col.Size, comment)
			}
			c.Check(got.null, Equals, col.Null, comment)
			c.Check(got.unique, Equals, col.Unique, comment)
			c.Check(got.def, DeepEquals, normalizeDefault(col.Default), comment)
		}
	}
}
