// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package schemafile declares models in YAML:
//
//	models:
//	  - name: Person
//	    primary: [id]
//	    columns:
//	      - {name: id, type: serial, size: normal}
//	      - {name: name, type: character, size: 255}
//	      - {name: created_at, type: timestamp, default: current_timestamp}
//	    indexes:
//	      - {columns: [name], unique: true}
//
// Each model is built with the schema package and registered as a model of
// sqlrecord.M records.
package schemafile

import (
	"bytes"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlrecord"
	"github.com/canonical/sqlrecord/schema"
)

// File is the content of a schema file.
type File struct {
	Models []Model `yaml:"models"`
}

// Model declares a table.
type Model struct {
	Name string `yaml:"name"`
	// Table overrides the default table name.
	Table   string   `yaml:"table"`
	Primary []string `yaml:"primary"`
	Columns []Column `yaml:"columns"`
	Indexes []Index  `yaml:"indexes"`
}

// Column declares a column. Size is a size class name (tiny, small, medium,
// normal, big) for integer, text and blob columns, and a length for
// character columns.
type Column struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Size        string `yaml:"size"`
	Unsigned    bool   `yaml:"unsigned"`
	Precision   int    `yaml:"precision"`
	Scale       int    `yaml:"scale"`
	Approximate bool   `yaml:"approximate"`
	Fixed       bool   `yaml:"fixed"`
	Binary      bool   `yaml:"binary"`
	Collate     string `yaml:"collate"`
	Null        bool   `yaml:"null"`
	Unique      bool   `yaml:"unique"`
	Default     any    `yaml:"default"`
}

// Index declares an index.
type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

// Parse decodes a schema file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "cannot parse schema file")
	}
	if len(f.Models) == 0 {
		return nil, errors.New("schema file declares no models")
	}
	return &f, nil
}

// Load reads and decodes the schema file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read schema file")
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return f, nil
}

// Register creates one model per declared model in reg, in file order.
func (f *File) Register(reg *sqlrecord.Registry) ([]*sqlrecord.Model[sqlrecord.M], error) {
	models := make([]*sqlrecord.Model[sqlrecord.M], 0, len(f.Models))
	for _, decl := range f.Models {
		s, err := decl.Schema()
		if err != nil {
			return nil, err
		}
		var opts []sqlrecord.ModelOption
		if decl.Table != "" {
			opts = append(opts, sqlrecord.WithTable(decl.Table))
		}
		m, err := sqlrecord.NewModel[sqlrecord.M](reg, decl.Name, s, opts...)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// Schema builds the schema of the model.
func (m Model) Schema() (*schema.Schema, error) {
	s := schema.New()
	for _, col := range m.Columns {
		t, err := col.SchemaType()
		if err != nil {
			return nil, errors.Wrapf(err, "model %q: column %q", m.Name, col.Name)
		}
		if err := s.DefineColumn(col.Name, t); err != nil {
			return nil, errors.Wrapf(err, "model %q", m.Name)
		}
	}
	if len(m.Primary) > 0 {
		if err := s.SetPrimary(m.Primary...); err != nil {
			return nil, errors.Wrapf(err, "model %q", m.Name)
		}
	}
	for _, idx := range m.Indexes {
		if err := s.DefineIndex(idx.Columns, idx.Unique, idx.Name); err != nil {
			return nil, errors.Wrapf(err, "model %q", m.Name)
		}
	}
	return s, nil
}

var sizeNames = map[string]schema.Size{
	"tiny":   schema.Tiny,
	"small":  schema.Small,
	"medium": schema.Medium,
	"normal": schema.Normal,
	"big":    schema.Big,
}

func sizeClass(s string) (schema.Size, error) {
	if s == "" {
		return 0, nil
	}
	if size, ok := sizeNames[strings.ToLower(s)]; ok {
		return size, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("unknown size %q", s)
	}
	return schema.Size(n), nil
}

func length(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("size %q is not a length", s)
	}
	return n, nil
}

// defaultValue converts the decoded default. Strings naming a time token
// become that token on temporal columns.
func (c Column) defaultValue(temporal bool) any {
	if s, ok := c.Default.(string); ok && temporal {
		if tok, ok := schema.ParseToken(s); ok {
			return tok
		}
	}
	return c.Default
}

// SchemaType returns the column type specification.
func (c Column) SchemaType() (schema.Type, error) {
	switch strings.ToLower(c.Type) {
	case "integer", "int":
		size, err := sizeClass(c.Size)
		if err != nil {
			return nil, err
		}
		return schema.Integer{Size: size, Unsigned: c.Unsigned, Null: c.Null, Unique: c.Unique, Default: c.Default}, nil
	case "serial":
		size, err := sizeClass(c.Size)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			size = schema.Normal
		}
		return schema.Serial(size), nil
	case "boolean", "bool":
		t := schema.Boolean()
		t.Null, t.Default = c.Null, c.Default
		return t, nil
	case "decimal", "float":
		return schema.Decimal{
			Precision:   c.Precision,
			Scale:       c.Scale,
			Approximate: c.Approximate || strings.EqualFold(c.Type, "float"),
			Null:        c.Null,
			Unique:      c.Unique,
			Default:     c.Default,
		}, nil
	case "character", "varchar", "char":
		n, err := length(c.Size)
		if err != nil {
			return nil, err
		}
		return schema.Character{
			Size:    n,
			Fixed:   c.Fixed || strings.EqualFold(c.Type, "char"),
			Binary:  c.Binary,
			Collate: c.Collate,
			Null:    c.Null,
			Unique:  c.Unique,
			Default: c.Default,
		}, nil
	case "text":
		size, err := sizeClass(c.Size)
		if err != nil {
			return nil, err
		}
		return schema.Text{Size: size, Collate: c.Collate, Null: c.Null, Default: c.Default}, nil
	case "blob":
		size, err := sizeClass(c.Size)
		if err != nil {
			return nil, err
		}
		return schema.Blob{Size: size, Null: c.Null}, nil
	case "date":
		return schema.Date{Null: c.Null, Unique: c.Unique, Default: c.defaultValue(true)}, nil
	case "time":
		return schema.Time{Null: c.Null, Unique: c.Unique, Default: c.defaultValue(true)}, nil
	case "datetime":
		return schema.DateTime{Null: c.Null, Unique: c.Unique, Default: c.defaultValue(true)}, nil
	case "timestamp":
		return schema.Timestamp{Null: c.Null, Unique: c.Unique, Default: c.defaultValue(true)}, nil
	}
	return nil, errors.Errorf("unknown type %q", c.Type)
}
