package domain

import (
	"errors"
	"fmt"
)

// Definition errors.
var (
	ErrSchemaDefinition = errors.New("schema definition error")
	ErrDomainSealed     = errors.New("domain is sealed")
)

// Value errors.
var (
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrReadOnlyViolation = errors.New("property is read only")
	ErrNullValidation    = errors.New("value is required")
	ErrRangeValidation   = errors.New("value out of range")
	ErrLengthValidation  = errors.New("value too long")
)

// Lookup errors.
var (
	ErrUndefinedEntity          = errors.New("undefined entity")
	ErrUndefinedProperty        = errors.New("undefined property")
	ErrUndefinedForeignKey      = errors.New("undefined foreign key")
	ErrUnsupportedKeyColumnType = errors.New("unsupported key column type")
)

// SchemaError reports a problem found while declaring properties or building
// an entity definition. It unwraps to ErrSchemaDefinition.
type SchemaError struct {
	EntityID   string
	PropertyID string
	Reason     string
}

func (e *SchemaError) Error() string {
	switch {
	case e.EntityID != "" && e.PropertyID != "":
		return fmt.Sprintf("%s: %s.%s: %s", ErrSchemaDefinition, e.EntityID, e.PropertyID, e.Reason)
	case e.EntityID != "":
		return fmt.Sprintf("%s: %s: %s", ErrSchemaDefinition, e.EntityID, e.Reason)
	case e.PropertyID != "":
		return fmt.Sprintf("%s: %s: %s", ErrSchemaDefinition, e.PropertyID, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrSchemaDefinition, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchemaDefinition }

func schemaErrorf(entityID, propertyID, format string, args ...any) *SchemaError {
	return &SchemaError{EntityID: entityID, PropertyID: propertyID, Reason: fmt.Sprintf(format, args...)}
}

// ValueError reports a rejected value. Err is one of ErrTypeMismatch,
// ErrReadOnlyViolation, ErrNullValidation, ErrRangeValidation,
// ErrLengthValidation or ErrUnsupportedKeyColumnType.
type ValueError struct {
	Err        error
	EntityID   string
	PropertyID string
	Value      any
	Reason     string
}

func (e *ValueError) Error() string {
	msg := fmt.Sprintf("%s: %s.%s", e.Err, e.EntityID, e.PropertyID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value %v)", e.Value)
	}
	return msg
}

func (e *ValueError) Unwrap() error { return e.Err }

func valueError(err error, p Property, value any, format string, args ...any) *ValueError {
	return &ValueError{
		Err:        err,
		EntityID:   p.EntityID(),
		PropertyID: p.ID(),
		Value:      value,
		Reason:     fmt.Sprintf(format, args...),
	}
}

// LookupError reports an unknown domain, entity, property or foreign key id.
type LookupError struct {
	Err        error
	DomainID   string
	EntityID   string
	PropertyID string
}

func (e *LookupError) Error() string {
	switch {
	case e.PropertyID != "":
		return fmt.Sprintf("%s: %s.%s", e.Err, e.EntityID, e.PropertyID)
	case e.EntityID != "" && e.DomainID != "":
		return fmt.Sprintf("%s: %s in domain %s", e.Err, e.EntityID, e.DomainID)
	case e.EntityID != "":
		return fmt.Sprintf("%s: %s", e.Err, e.EntityID)
	}
	return fmt.Sprintf("%s: domain %s", e.Err, e.DomainID)
}

func (e *LookupError) Unwrap() error { return e.Err }
