// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package schema

import (
	"fmt"
	"strings"
)

// Kind is the semantic type of a column.
type Kind int

const (
	KindInteger Kind = iota + 1
	KindDecimal
	KindCharacter
	KindText
	KindBlob
	KindDate
	KindTime
	KindDateTime
	KindTimestamp
)

var kindNames = map[Kind]string{
	KindInteger:   "integer",
	KindDecimal:   "decimal",
	KindCharacter: "character",
	KindText:      "text",
	KindBlob:      "blob",
	KindDate:      "date",
	KindTime:      "time",
	KindDateTime:  "datetime",
	KindTimestamp: "timestamp",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Temporal reports whether the kind holds a date or time value.
func (k Kind) Temporal() bool {
	return k == KindDate || k == KindTime || k == KindDateTime || k == KindTimestamp
}

// Size is a storage size class. For integers it is the width in bytes, for
// text and blob columns it selects the TINY/regular/MEDIUM/LONG variant.
type Size int

const (
	Tiny   Size = 1
	Small  Size = 2
	Medium Size = 3
	Normal Size = 4
	Big    Size = 8
)

func (s Size) valid() bool {
	switch s {
	case Tiny, Small, Medium, Normal, Big:
		return true
	}
	return false
}

const (
	// MaxFixedCharacter is the largest size of a fixed width character column.
	MaxFixedCharacter = 255
	// MaxVariableCharacter is the largest size of a variable width character
	// column.
	MaxVariableCharacter = 65535

	maxDecimalPrecision = 65
	maxDecimalScale     = 30
)

// Token is a named time function that can be used as a column default. Tokens
// are rendered unquoted.
type Token string

const (
	CurrentTimestamp Token = "CURRENT_TIMESTAMP"
	CurrentDate      Token = "CURRENT_DATE"
	CurrentTime      Token = "CURRENT_TIME"
	Now              Token = "NOW"
)

// ParseToken returns the Token named by s, ignoring case.
func ParseToken(s string) (Token, bool) {
	switch t := Token(strings.ToUpper(s)); t {
	case CurrentTimestamp, CurrentDate, CurrentTime, Now:
		return t, true
	}
	return "", false
}

// Type is a column type specification. It is implemented by Integer, Decimal,
// Character, Text, Blob, Date, Time, DateTime and Timestamp.
type Type interface {
	column(name string) (Column, error)
}

// Integer is an integer column. Size must be one of Tiny, Small, Medium,
// Normal or Big.
//
// A Serial integer is auto incremented by the database. It must be at least
// Small, unsigned, unique and not null.
type Integer struct {
	Size     Size
	Unsigned bool
	Serial   bool
	Null     bool
	Unique   bool
	Default  any
}

// Boolean returns the Integer specification used for boolean columns.
func Boolean() Integer {
	return Integer{Size: Tiny, Unsigned: true}
}

// Serial returns the Integer specification of an auto incremented key of the
// given size.
func Serial(size Size) Integer {
	return Integer{Size: size, Unsigned: true, Serial: true, Unique: true}
}

func (t Integer) column(name string) (Column, error) {
	if !t.Size.valid() {
		return Column{}, columnError(name, "Size must be one of the allowed ones")
	}
	if t.Serial {
		switch {
		case t.Size < Small:
			return Column{}, columnError(name, "serial column must be at least 2 bytes")
		case t.Null:
			return Column{}, columnError(name, "serial column cannot be null")
		case !t.Unsigned:
			return Column{}, columnError(name, "serial column must be unsigned")
		case !t.Unique:
			return Column{}, columnError(name, "serial column must be unique")
		case t.Default != nil:
			return Column{}, columnError(name, "serial column cannot have a default")
		}
	}
	c := Column{
		Name:     name,
		Kind:     KindInteger,
		Size:     int(t.Size),
		Unsigned: t.Unsigned,
		Serial:   t.Serial,
		Null:     t.Null,
		Unique:   t.Unique,
		Default:  t.Default,
	}
	return c, c.checkDefault()
}

// Decimal is an exact or, when Approximate is set, floating point number
// column. A zero Precision means 10.
type Decimal struct {
	Precision   int
	Scale       int
	Approximate bool
	Null        bool
	Unique      bool
	Default     any
}

func (t Decimal) column(name string) (Column, error) {
	precision := t.Precision
	if precision == 0 {
		precision = 10
	}
	switch {
	case precision < 1 || precision > maxDecimalPrecision:
		return Column{}, columnError(name, fmt.Sprintf("precision must be between 1 and %d", maxDecimalPrecision))
	case t.Scale < 0 || t.Scale > maxDecimalScale:
		return Column{}, columnError(name, fmt.Sprintf("scale must be between 0 and %d", maxDecimalScale))
	case t.Scale > precision:
		return Column{}, columnError(name, "scale cannot exceed precision")
	}
	c := Column{
		Name:        name,
		Kind:        KindDecimal,
		Precision:   precision,
		Scale:       t.Scale,
		Approximate: t.Approximate,
		Null:        t.Null,
		Unique:      t.Unique,
		Default:     t.Default,
	}
	return c, c.checkDefault()
}

// Character is a fixed or variable width string column. Binary columns hold
// bytes and cannot carry a collation.
type Character struct {
	Size    int
	Fixed   bool
	Binary  bool
	Collate string
	Null    bool
	Unique  bool
	Default any
}

func (t Character) column(name string) (Column, error) {
	switch {
	case t.Size < 1:
		return Column{}, columnError(name, "size must be at least 1")
	case t.Fixed && t.Size > MaxFixedCharacter:
		return Column{}, columnError(name, fmt.Sprintf("fixed size cannot exceed %d", MaxFixedCharacter))
	case !t.Fixed && t.Size > MaxVariableCharacter:
		return Column{}, columnError(name, fmt.Sprintf("variable size cannot exceed %d", MaxVariableCharacter))
	case t.Binary && t.Collate != "":
		return Column{}, columnError(name, "binary column cannot have a collation")
	}
	c := Column{
		Name:    name,
		Kind:    KindCharacter,
		Size:    t.Size,
		Fixed:   t.Fixed,
		Binary:  t.Binary,
		Collate: t.Collate,
		Null:    t.Null,
		Unique:  t.Unique,
		Default: t.Default,
	}
	return c, c.checkDefault()
}

// Text is a long string column. A zero Size means Normal.
type Text struct {
	Size    Size
	Collate string
	Null    bool
	Default any
}

func (t Text) column(name string) (Column, error) {
	size := t.Size
	if size == 0 {
		size = Normal
	}
	if !size.valid() {
		return Column{}, columnError(name, "Size must be one of the allowed ones")
	}
	c := Column{
		Name:    name,
		Kind:    KindText,
		Size:    int(size),
		Collate: t.Collate,
		Null:    t.Null,
		Default: t.Default,
	}
	return c, c.checkDefault()
}

// Blob is a binary large object column. A zero Size means Normal.
type Blob struct {
	Size Size
	Null bool
}

func (t Blob) column(name string) (Column, error) {
	size := t.Size
	if size == 0 {
		size = Normal
	}
	if !size.valid() {
		return Column{}, columnError(name, "Size must be one of the allowed ones")
	}
	return Column{Name: name, Kind: KindBlob, Size: int(size), Binary: true, Null: t.Null}, nil
}

// Date is a calendar date column.
type Date struct {
	Null    bool
	Unique  bool
	Default any
}

func (t Date) column(name string) (Column, error) {
	return temporalColumn(name, KindDate, t.Null, t.Unique, t.Default)
}

// Time is a time of day column.
type Time struct {
	Null    bool
	Unique  bool
	Default any
}

func (t Time) column(name string) (Column, error) {
	return temporalColumn(name, KindTime, t.Null, t.Unique, t.Default)
}

// DateTime is a date and time column.
type DateTime struct {
	Null    bool
	Unique  bool
	Default any
}

func (t DateTime) column(name string) (Column, error) {
	return temporalColumn(name, KindDateTime, t.Null, t.Unique, t.Default)
}

// Timestamp is a point in time column.
type Timestamp struct {
	Null    bool
	Unique  bool
	Default any
}

func (t Timestamp) column(name string) (Column, error) {
	return temporalColumn(name, KindTimestamp, t.Null, t.Unique, t.Default)
}

func temporalColumn(name string, kind Kind, null, unique bool, def any) (Column, error) {
	c := Column{Name: name, Kind: kind, Null: null, Unique: unique, Default: def}
	return c, c.checkDefault()
}
