package domain

import "unicode/utf8"

// Validator checks entity values against property constraints.
type Validator interface {
	// Validate checks every writable property of e.
	Validate(e *Entity) error
	// ValidateProperty checks null, range and length constraints of p.
	ValidateProperty(e *Entity, p Property) error
	// IsNullable reports whether p may be null in e.
	IsNullable(e *Entity, p Property) bool
}

// DefaultValidator performs null, range and length validation.
type DefaultValidator struct {
	performNullValidation bool
}

// NewValidator returns a validator. Null validation can be turned off, for
// example when the database enforces it.
func NewValidator(performNullValidation bool) *DefaultValidator {
	return &DefaultValidator{performNullValidation: performNullValidation}
}

// Validate implements Validator.
func (v *DefaultValidator) Validate(e *Entity) error {
	for _, p := range e.def.properties {
		if p.ReadOnly() {
			continue
		}
		if err := v.ValidateProperty(e, p); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProperty implements Validator. Reference columns are not null
// checked on their own; their foreign key is.
func (v *DefaultValidator) ValidateProperty(e *Entity, p Property) error {
	own, err := e.property(p)
	if err != nil {
		return err
	}
	if v.performNullValidation && !isReferenceColumn(own) {
		if err := v.validateNull(e, own); err != nil {
			return err
		}
	}
	value := e.Get(own)
	if value == nil {
		return nil
	}
	switch {
	case own.Type().IsNumerical():
		return validateRange(own, value)
	case own.Type().IsString():
		return validateLength(own, value)
	}
	return nil
}

// IsNullable implements Validator.
func (v *DefaultValidator) IsNullable(_ *Entity, p Property) bool {
	return p.Nullable()
}

func (v *DefaultValidator) validateNull(e *Entity, p Property) error {
	if v.IsNullable(e, p) || !e.IsValueNull(p) {
		return nil
	}
	if IsNew(e) {
		if c, ok := p.(Column); ok {
			if !c.IsPrimaryKey() && c.ColumnHasDefault() {
				return nil
			}
			if c.IsPrimaryKey() && !e.def.keyGenerator.IsManual() {
				return nil
			}
		}
	}
	return valueError(ErrNullValidation, p, nil, "%s is required", p)
}

func validateRange(p Property, value any) error {
	x, ok := toFloat64(value)
	if !ok {
		return nil
	}
	if lo, ok := p.Min(); ok && x < lo {
		return valueError(ErrRangeValidation, p, value, "minimum is %v", lo)
	}
	if hi, ok := p.Max(); ok && x > hi {
		return valueError(ErrRangeValidation, p, value, "maximum is %v", hi)
	}
	return nil
}

func validateLength(p Property, value any) error {
	s, ok := value.(string)
	if !ok || p.MaxLength() <= 0 {
		return nil
	}
	if n := utf8.RuneCountInString(s); n > p.MaxLength() {
		return valueError(ErrLengthValidation, p, value, "length %d exceeds %d", n, p.MaxLength())
	}
	return nil
}

func isReferenceColumn(p Property) bool {
	c, ok := p.(Column)
	return ok && c.ForeignKey() != nil
}

// ValidateAll validates each entity with its definition's validator and
// stops at the first failure.
func ValidateAll(entities []*Entity) error {
	for _, e := range entities {
		if err := e.def.validator.Validate(e); err != nil {
			return err
		}
	}
	return nil
}
