// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/canonical/sqlrecord/internal/typeinfo"
)

// Now is the raw value that makes a Temporal read as the current time.
const Now = "now"

// now is replaced in tests.
var now = time.Now

// Temporal holds a date or time column value. The raw value is absent, the
// literal Now, or whatever was stored: a time.Time, a string in one of the
// layouts written by the drivers, or Unix seconds. Time normalizes the raw
// value to a time.Time and keeps the result.
//
// Temporal implements sql.Scanner and driver.Valuer, so it can be used as a
// record field for created_at style columns.
type Temporal struct {
	raw    any
	parsed bool
	t      time.Time
}

// NewTemporal returns a Temporal holding raw.
func NewTemporal(raw any) Temporal {
	var t Temporal
	t.Set(raw)
	return t
}

// Set replaces the raw value.
func (t *Temporal) Set(raw any) {
	if tt, ok := raw.(time.Time); ok {
		*t = Temporal{raw: raw, parsed: true, t: tt}
		return
	}
	*t = Temporal{raw: raw}
}

// Raw returns the raw value.
func (t Temporal) Raw() any {
	return t.raw
}

// Absent reports whether no value is held.
func (t Temporal) Absent() bool {
	return t.raw == nil
}

// Time returns the value as a time.Time. An absent value is the zero time.
// The result replaces the raw value, so Now is resolved once.
func (t *Temporal) Time() (time.Time, error) {
	if t.parsed {
		return t.t, nil
	}
	tt, err := t.normalize()
	if err != nil {
		return time.Time{}, err
	}
	if t.raw != nil {
		t.raw, t.parsed, t.t = tt, true, tt
	}
	return tt, nil
}

func (t Temporal) normalize() (time.Time, error) {
	switch v := t.raw.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case string:
		if strings.EqualFold(v, Now) {
			return now(), nil
		}
		return typeinfo.ParseTime(v)
	case []byte:
		return Temporal{raw: string(v)}.normalize()
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to a time", t.raw)
}

// Scan implements sql.Scanner.
func (t *Temporal) Scan(src any) error {
	t.Set(src)
	return nil
}

// Value implements driver.Valuer. An absent value is NULL.
func (t Temporal) Value() (driver.Value, error) {
	if t.parsed {
		return t.t, nil
	}
	if t.raw == nil {
		return nil, nil
	}
	return t.normalize()
}

func (t Temporal) String() string {
	if t.raw == nil {
		return ""
	}
	tt, err := t.normalize()
	if err != nil {
		return fmt.Sprint(t.raw)
	}
	return tt.Format(time.RFC3339Nano)
}
