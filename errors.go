// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/canonical/sqlrecord/conn"
)

// Sentinel errors matched by the typed errors of this package with errors.Is.
var (
	ErrRecordNotFound           = errors.New("record not found")
	ErrScopeNotDefined          = errors.New("scope not defined")
	ErrRecordNotValid           = errors.New("record not valid")
	ErrRelationConfig           = errors.New("invalid relation")
	ErrModelAlreadyInstantiated = errors.New("model already instantiated")
	ErrModelNotDefined          = errors.New("model not defined")
)

// RecordNotFoundError is returned when a lookup by key finds nothing. For a
// lookup of several keys it is only returned when all of them miss.
type RecordNotFoundError struct {
	Model string
	Keys  []any
	// Partial is the *KeyMap[*T] of the lookup, with nil for every key that
	// was not found.
	Partial any
}

func (e *RecordNotFoundError) Error() string {
	if len(e.Keys) == 1 {
		return fmt.Sprintf("%s record with key %v not found", e.Model, e.Keys[0])
	}
	return fmt.Sprintf("%s records with keys %v not found", e.Model, e.Keys)
}

func (e *RecordNotFoundError) Is(err error) bool {
	return err == ErrRecordNotFound
}

// PartialResult returns the per key result carried by a RecordNotFoundError
// for records of type T.
func PartialResult[T any](err error) (*KeyMap[*T], bool) {
	var e *RecordNotFoundError
	if !errors.As(err, &e) {
		return nil, false
	}
	km, ok := e.Partial.(*KeyMap[*T])
	return km, ok
}

// IsRecordNotFound reports whether err is or wraps a RecordNotFoundError.
func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// ScopeNotDefinedError is returned when a scope is requested by a name that
// was never defined on the model.
type ScopeNotDefinedError struct {
	Name  string
	Model string
}

func (e *ScopeNotDefinedError) Error() string {
	return fmt.Sprintf("scope %q not defined on model %q", e.Name, e.Model)
}

func (e *ScopeNotDefinedError) Is(err error) bool {
	return err == ErrScopeNotDefined
}

// IsScopeNotDefined reports whether err is or wraps a ScopeNotDefinedError.
func IsScopeNotDefined(err error) bool {
	return errors.Is(err, ErrScopeNotDefined)
}

// RecordNotValidError is returned by Save when the validator rejects the
// properties. Nothing is written.
type RecordNotValidError struct {
	Model string
	// Fields maps property names to the reasons they were rejected.
	Fields map[string][]string
}

func (e *RecordNotValidError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + strings.Join(e.Fields[name], ", ")
	}
	return fmt.Sprintf("%s record not valid: %s", e.Model, strings.Join(parts, "; "))
}

func (e *RecordNotValidError) Is(err error) bool {
	return err == ErrRecordNotValid
}

// IsRecordNotValid reports whether err is or wraps a RecordNotValidError.
func IsRecordNotValid(err error) bool {
	return errors.Is(err, ErrRecordNotValid)
}

// RelationConfigError is returned when a relation cannot be declared or
// looked up.
type RelationConfigError struct {
	Relation string
	Model    string
	Reason   string
}

func (e *RelationConfigError) Error() string {
	return fmt.Sprintf("relation %q of model %q: %s", e.Relation, e.Model, e.Reason)
}

func (e *RelationConfigError) Is(err error) bool {
	return err == ErrRelationConfig
}

// IsRelationConfig reports whether err is or wraps a RelationConfigError.
func IsRelationConfig(err error) bool {
	return errors.Is(err, ErrRelationConfig)
}

// ModelAlreadyInstantiatedError is returned when a second model is created
// with the name of an existing one.
type ModelAlreadyInstantiatedError struct {
	Model string
}

func (e *ModelAlreadyInstantiatedError) Error() string {
	return fmt.Sprintf("model %q already instantiated", e.Model)
}

func (e *ModelAlreadyInstantiatedError) Is(err error) bool {
	return err == ErrModelAlreadyInstantiated
}

// ModelNotDefinedError is returned when looking up a model that was never
// created.
type ModelNotDefinedError struct {
	Model string
}

func (e *ModelNotDefinedError) Error() string {
	return fmt.Sprintf("model %q not defined", e.Model)
}

func (e *ModelNotDefinedError) Is(err error) bool {
	return err == ErrModelNotDefined
}

// IsModelNotDefined reports whether err is or wraps a ModelNotDefinedError.
func IsModelNotDefined(err error) bool {
	return errors.Is(err, ErrModelNotDefined)
}

// IsStatementInvalid reports whether err was caused by the database
// rejecting a statement. The *conn.StatementError can be retrieved with
// errors.As.
func IsStatementInvalid(err error) bool {
	return conn.IsStatementError(err)
}
