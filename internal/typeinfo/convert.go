// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// timeLayouts are the text forms of date and time values returned by drivers
// that do not parse them.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
}

// structValue returns the struct that dst points to.
func structValue(dst any) (reflect.Value, *Info, error) {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, nil, fmt.Errorf("need non-nil struct pointer, got %T", dst)
	}
	info, err := ForType(v.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return v.Elem(), info, nil
}

// Hydrate sets the fields of the struct pointed to by dst from the values of
// row. Columns without a tagged field are ignored.
func Hydrate(dst any, row map[string]any) error {
	s, info, err := structValue(dst)
	if err != nil {
		return err
	}
	for col, raw := range row {
		f, ok := info.TagToField[col]
		if !ok {
			continue
		}
		if err := assign(s.Field(f.Index), raw); err != nil {
			return fmt.Errorf("cannot set field %q from column %q: %w", f.Name, col, err)
		}
	}
	return nil
}

// SetValue sets the field tagged col of the struct pointed to by dst.
func SetValue(dst any, col string, v any) error {
	s, info, err := structValue(dst)
	if err != nil {
		return err
	}
	f, ok := info.TagToField[col]
	if !ok {
		return fmt.Errorf("type %s has no field with db tag %q", info.Type.Name(), col)
	}
	if err := assign(s.Field(f.Index), v); err != nil {
		return fmt.Errorf("cannot set field %q: %w", f.Name, err)
	}
	return nil
}

// Value returns the value of the field tagged col. Nil pointers are returned
// as nil.
func Value(src any, col string) (any, error) {
	v := reflect.Indirect(reflect.ValueOf(src))
	info, err := ForType(v.Type())
	if err != nil {
		return nil, err
	}
	f, ok := info.TagToField[col]
	if !ok {
		return nil, fmt.Errorf("type %s has no field with db tag %q", info.Type.Name(), col)
	}
	return fieldValue(v.Field(f.Index)), nil
}

// Extract returns the tagged fields of src keyed by column. Fields tagged
// omitempty are left out when they hold their zero value.
func Extract(src any) (map[string]any, error) {
	v := reflect.ValueOf(src)
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, fmt.Errorf("cannot extract from nil %T", src)
	}
	v = reflect.Indirect(v)
	info, err := ForType(v.Type())
	if err != nil {
		return nil, err
	}
	row := make(map[string]any, len(info.Tags))
	for _, tag := range info.Tags {
		f := info.TagToField[tag]
		fv := v.Field(f.Index)
		if f.OmitEmpty && fv.IsZero() {
			continue
		}
		row[tag] = fieldValue(fv)
	}
	return row, nil
}

func fieldValue(fv reflect.Value) any {
	if fv.Kind() == reflect.Pointer && fv.IsNil() {
		return nil
	}
	return fv.Interface()
}

// assign stores the driver value raw in field, converting between the types
// drivers return and the field type.
func assign(field reflect.Value, raw any) error {
	if field.CanAddr() {
		if scanner, ok := field.Addr().Interface().(sql.Scanner); ok {
			return scanner.Scan(raw)
		}
	}
	if raw == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := assign(elem.Elem(), raw); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}
	if b, ok := raw.([]byte); ok {
		if field.Kind() == reflect.String {
			field.SetString(string(b))
			return nil
		}
		if field.Type() == reflect.TypeOf([]byte(nil)) {
			field.SetBytes(append([]byte(nil), b...))
			return nil
		}
		raw = string(b)
	}

	src := reflect.ValueOf(raw)
	if src.Type().AssignableTo(field.Type()) {
		field.Set(src)
		return nil
	}

	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(raw)
		if err != nil {
			return err
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, field.Type())
		}
		field.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toUint64(raw, field.Type())
		if err != nil {
			return err
		}
		if field.OverflowUint(n) {
			return fmt.Errorf("value %d overflows %s", n, field.Type())
		}
		field.SetUint(n)
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(raw)
		if err != nil {
			return err
		}
		field.SetFloat(f)
		return nil
	case reflect.Bool:
		n, err := toInt64(raw)
		if err != nil {
			return err
		}
		field.SetBool(n != 0)
		return nil
	case reflect.String:
		switch raw := raw.(type) {
		case int64, float64, bool:
			field.SetString(fmt.Sprint(raw))
			return nil
		case time.Time:
			field.SetString(raw.Format("2006-01-02 15:04:05"))
			return nil
		}
	}
	if field.Type() == reflect.TypeOf(time.Time{}) {
		if s, ok := raw.(string); ok {
			t, err := ParseTime(s)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(t))
			return nil
		}
	}
	if src.Type().ConvertibleTo(field.Type()) && src.Kind() == field.Kind() {
		field.Set(src.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot convert %T to %s", raw, field.Type())
}

// ParseTime parses the text forms of date and time values used by the
// supported drivers.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a time", s)
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to an integer", raw)
}

// toUint64 reads unsigned values for a field of type typ, including those
// above the int64 range that MySQL returns for BIGINT UNSIGNED columns.
func toUint64(raw any, typ reflect.Type) (uint64, error) {
	switch v := raw.(type) {
	case uint64:
		return v, nil
	case string:
		return strconv.ParseUint(v, 10, 64)
	}
	n, err := toInt64(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("value %d overflows %s", n, typ)
	}
	return uint64(n), nil
}

func toFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to a float", raw)
}
