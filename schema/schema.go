// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package schema

import (
	"fmt"
	"strings"
)

// Column is a validated column definition. Columns are created by
// Schema.DefineColumn and are not modified afterwards.
type Column struct {
	Name string
	Kind Kind

	// Size is the byte width of an integer, the length of a character column
	// or the size class of a text or blob column.
	Size int

	Unsigned bool
	Serial   bool

	Precision   int
	Scale       int
	Approximate bool

	Fixed   bool
	Binary  bool
	Collate string

	Null   bool
	Unique bool

	// Default is nil, a Token, a string, a bool or a number.
	Default any
}

// checkDefault checks that the default value is something the renderers know
// how to write.
func (c Column) checkDefault() error {
	switch d := c.Default.(type) {
	case nil:
		return nil
	case Token:
		if !c.Kind.Temporal() {
			return columnError(c.Name, fmt.Sprintf("default %s is only valid for date and time columns", d))
		}
		return nil
	case string:
		return nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		if c.Kind == KindCharacter || c.Kind == KindText {
			return columnError(c.Name, fmt.Sprintf("default %v is not a string", d))
		}
		return nil
	}
	return columnError(c.Name, fmt.Sprintf("unsupported default of type %T", c.Default))
}

// Index is an ordered set of columns with an optional uniqueness constraint.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// DefinitionError is returned when a column, index or primary key
// definition breaks one of the schema rules.
type DefinitionError struct {
	// Subject is "column", "index" or "primary key".
	Subject string
	// Name identifies the column or index.
	Name   string
	Reason string
}

func (e *DefinitionError) Error() string {
	if e.Subject == "primary key" {
		return fmt.Sprintf("cannot define %s: %s", e.Subject, e.Reason)
	}
	return fmt.Sprintf("cannot define %s %q: %s", e.Subject, e.Name, e.Reason)
}

func columnError(name, reason string) error {
	return &DefinitionError{Subject: "column", Name: name, Reason: reason}
}

func indexError(name, reason string) error {
	return &DefinitionError{Subject: "index", Name: name, Reason: reason}
}

func primaryError(reason string) error {
	return &DefinitionError{Subject: "primary key", Reason: reason}
}

// Schema describes the columns, primary key and indexes of a table. Columns
// keep the order in which they were defined.
type Schema struct {
	columns []Column
	byName  map[string]int
	primary []string
	indexes []Index
}

// New returns an empty Schema.
func New() *Schema {
	return &Schema{byName: map[string]int{}}
}

// DefineColumn validates t and appends it to the schema under id.
func (s *Schema) DefineColumn(id string, t Type) error {
	if id == "" {
		return columnError(id, "empty identifier")
	}
	if t == nil {
		return columnError(id, "no type given")
	}
	if _, ok := s.byName[id]; ok {
		return columnError(id, "already defined")
	}
	c, err := t.column(id)
	if err != nil {
		return err
	}
	if c.Serial {
		if serial, ok := s.SerialColumn(); ok {
			return columnError(id, fmt.Sprintf("schema already has serial column %q", serial.Name))
		}
	}
	s.byName[id] = len(s.columns)
	s.columns = append(s.columns, c)
	return nil
}

// DefineIndex adds an index over columns. The name defaults to the column
// identifiers joined with "_".
func (s *Schema) DefineIndex(columns []string, unique bool, name ...string) error {
	idxName := strings.Join(columns, "_")
	if len(name) > 0 && name[0] != "" {
		idxName = name[0]
	}
	if len(columns) == 0 {
		return indexError(idxName, "no columns given")
	}
	seen := map[string]bool{}
	for _, col := range columns {
		if _, ok := s.byName[col]; !ok {
			return indexError(idxName, fmt.Sprintf("unknown column %q", col))
		}
		if seen[col] {
			return indexError(idxName, fmt.Sprintf("column %q listed twice", col))
		}
		seen[col] = true
	}
	for _, idx := range s.indexes {
		if idx.Name == idxName {
			return indexError(idxName, "already defined")
		}
	}
	s.indexes = append(s.indexes, Index{
		Name:    idxName,
		Columns: append([]string(nil), columns...),
		Unique:  unique,
	})
	return nil
}

// SetPrimary sets the primary key to a single column or, when more than one
// identifier is given, to a composite key in the given order. It can only be
// called once.
func (s *Schema) SetPrimary(ids ...string) error {
	if s.primary != nil {
		return primaryError("already set")
	}
	if len(ids) == 0 {
		return primaryError("no columns given")
	}
	seen := map[string]bool{}
	for _, id := range ids {
		i, ok := s.byName[id]
		if !ok {
			return primaryError(fmt.Sprintf("unknown column %q", id))
		}
		if seen[id] {
			return primaryError(fmt.Sprintf("column %q listed twice", id))
		}
		if s.columns[i].Null {
			return primaryError(fmt.Sprintf("column %q cannot be null", id))
		}
		seen[id] = true
	}
	s.primary = append([]string(nil), ids...)
	return nil
}

// Columns returns the columns in definition order.
func (s *Schema) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

// Column returns the column named id.
func (s *Schema) Column(id string) (Column, bool) {
	i, ok := s.byName[id]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// ColumnNames returns the column identifiers in definition order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Primary returns the primary key columns, or nil if no primary key is set.
func (s *Schema) Primary() []string {
	return append([]string(nil), s.primary...)
}

// IsPrimary reports whether id is part of the primary key.
func (s *Schema) IsPrimary(id string) bool {
	for _, p := range s.primary {
		if p == id {
			return true
		}
	}
	return false
}

// Indexes returns the indexes in definition order.
func (s *Schema) Indexes() []Index {
	indexes := make([]Index, len(s.indexes))
	for i, idx := range s.indexes {
		idx.Columns = append([]string(nil), idx.Columns...)
		indexes[i] = idx
	}
	return indexes
}

// SerialColumn returns the auto incremented column, if there is one.
func (s *Schema) SerialColumn() (Column, bool) {
	for _, c := range s.columns {
		if c.Serial {
			return c, true
		}
	}
	return Column{}, false
}
