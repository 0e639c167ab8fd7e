package domain

import "slices"

// Option configures a property at declaration time. An option that does not
// apply to the property's type or variant records a configuration error,
// reported by Property.Err and by Domain.Define.
type Option func(p Property)

func apply(p Property, opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
}

// Caption sets the display caption. Properties without a caption are hidden
// from generated user interfaces.
func Caption(caption string) Option {
	return func(p Property) { p.base().caption = caption }
}

// Description sets a longer description.
func Description(description string) Option {
	return func(p Property) { p.base().description = description }
}

// Nullable sets whether the value may be null. On a foreign key the setting
// is applied to its reference columns as well.
func Nullable(nullable bool) Option {
	return func(p Property) {
		p.base().nullable = nullable
		if fk, ok := p.(*ForeignKeyProperty); ok {
			for _, ref := range fk.references {
				if ref != nil {
					ref.base().nullable = nullable
				}
			}
		}
	}
}

// Default sets the value new entities are initialized with.
func Default(value any) Option {
	return func(p Property) {
		a := p.base()
		v, ok := normalize(a.valueType, value)
		if !ok {
			a.fail("default value %v (%T) is not %s", value, value, a.valueType)
			return
		}
		a.defaultValue = v
	}
}

// ReadOnly marks the property as read only. Derived and denormalized view
// properties are always read only, and reference columns follow their
// foreign key.
func ReadOnly(readOnly bool) Option {
	return func(p Property) {
		a := p.base()
		switch p.Kind() {
		case KindDerived, KindDenormalizedView, KindSubquery:
			if !readOnly {
				a.fail("%s property is always read only", p.Kind())
			}
			return
		}
		if c, ok := p.(Column); ok && c.ForeignKey() != nil {
			a.fail("reference column read only state follows foreign key %s", c.ForeignKey().ID())
			return
		}
		a.readOnly = readOnly
	}
}

// Hidden hides the property from generated user interfaces.
func Hidden(hidden bool) Option {
	return func(p Property) { p.base().hidden = hidden }
}

// Range sets the allowed numeric range, inclusive.
func Range(lo, hi float64) Option {
	return func(p Property) {
		a := p.base()
		if !a.valueType.IsNumerical() {
			a.fail("range requires a numerical property, not %s", a.valueType)
			return
		}
		if lo > hi {
			a.fail("range minimum %v exceeds maximum %v", lo, hi)
			return
		}
		a.min, a.max = &lo, &hi
	}
}

// MaxLength limits string values to n characters.
func MaxLength(n int) Option {
	return func(p Property) {
		a := p.base()
		if !a.valueType.IsString() {
			a.fail("maximum length requires a string property, not %s", a.valueType)
			return
		}
		if n <= 0 {
			a.fail("maximum length must be positive, got %d", n)
			return
		}
		a.maxLength = n
	}
}

// WithFormat sets the display format. Numerical properties require a
// *NumberFormat and temporal properties a *DateFormat.
func WithFormat(f Format) Option {
	return func(p Property) {
		a := p.base()
		format := f
		switch nf := f.(type) {
		case *NumberFormat:
			if !a.valueType.IsNumerical() {
				a.fail("number format on %s property", a.valueType)
				return
			}
			if a.valueType.IsDouble() {
				a.fractionDigits = nf.MaximumFractionDigits
			}
			own := *nf
			format = &own
		case *DateFormat:
			if !a.valueType.IsTemporal() {
				a.fail("date format on %s property", a.valueType)
				return
			}
		default:
			if a.valueType.IsNumerical() {
				a.fail("numerical property requires a number format")
				return
			}
			if a.valueType.IsTemporal() {
				a.fail("temporal property requires a date format")
				return
			}
		}
		a.format = format
	}
}

// MaximumFractionDigits sets the fraction digits double values are rounded
// to on put.
func MaximumFractionDigits(n int) Option {
	return func(p Property) {
		a := p.base()
		if !a.valueType.IsDouble() {
			a.fail("fraction digits require a double property, not %s", a.valueType)
			return
		}
		if n < 0 {
			a.fail("fraction digits must not be negative, got %d", n)
			return
		}
		a.fractionDigits = n
		if nf, ok := a.format.(*NumberFormat); ok {
			own := *nf
			own.MaximumFractionDigits = n
			a.format = &own
		}
	}
}

func columnOption(name string, fn func(c *column)) Option {
	return func(p Property) {
		c, ok := p.(Column)
		if !ok {
			p.base().fail("%s applies to columns only, not %s", name, p.Kind())
			return
		}
		fn(c.col())
	}
}

// ColumnName sets the physical column name, which defaults to the id.
func ColumnName(name string) Option {
	return columnOption("column name", func(c *column) { c.columnName = name })
}

// ColumnType sets the storage type when it differs from the logical type.
func ColumnType(t ValueType) Option {
	return columnOption("column type", func(c *column) {
		if !validValueTypes[t] {
			c.fail("unknown column type %q", t)
			return
		}
		c.columnType = t
	})
}

// PrimaryKeyIndex places the column in the primary key. Key columns are not
// nullable and not updatable.
func PrimaryKeyIndex(index int) Option {
	return columnOption("primary key index", func(c *column) {
		if index < 0 {
			c.fail("primary key index must be non-negative, got %d", index)
			return
		}
		c.primaryKeyIndex = index
		c.nullable = false
		c.updatable = false
	})
}

// Updatable sets whether the column is included in updates.
func Updatable(updatable bool) Option {
	return columnOption("updatable", func(c *column) { c.updatable = updatable })
}

// Searchable sets whether text searches include the column.
func Searchable(searchable bool) Option {
	return columnOption("searchable", func(c *column) { c.searchable = searchable })
}

// Grouping marks the column as a group by column.
func Grouping() Option {
	return columnOption("grouping", func(c *column) {
		if c.aggregate {
			c.fail("an aggregate column can not be a grouping column")
			return
		}
		c.grouping = true
	})
}

// Aggregate marks the column as an aggregate function column.
func Aggregate() Option {
	return columnOption("aggregate", func(c *column) {
		if c.grouping {
			c.fail("a grouping column can not be an aggregate column")
			return
		}
		c.aggregate = true
	})
}

// ColumnHasDefault declares that storage supplies a value on insert, so a
// new entity may leave the column null.
func ColumnHasDefault() Option {
	return columnOption("column default", func(c *column) { c.hasDefault = true })
}

// BooleanStorage stores a boolean column as columnType using the given
// true and false values.
func BooleanStorage(columnType ValueType, trueValue, falseValue any) Option {
	return columnOption("boolean storage", func(c *column) {
		if !c.valueType.IsBoolean() {
			c.fail("boolean storage on %s property", c.valueType)
			return
		}
		t, okTrue := normalize(columnType, trueValue)
		f, okFalse := normalize(columnType, falseValue)
		if !okTrue || !okFalse || t == nil || f == nil || valueEquals(t, f) {
			c.fail("invalid boolean storage values %v/%v for %s", trueValue, falseValue, columnType)
			return
		}
		c.columnType = columnType
		c.trueValue, c.falseValue = t, f
	})
}

// ReferencedColumns names the columns of the referenced entity that the
// foreign key's reference columns match, by position.
func ReferencedColumns(ids ...string) Option {
	return func(p Property) {
		fk, ok := p.(*ForeignKeyProperty)
		if !ok {
			p.base().fail("referenced columns apply to foreign keys only")
			return
		}
		fk.referencedIDs = slices.Clone(ids)
	}
}

// FetchDepth sets how many levels of referenced entities a loader follows.
func FetchDepth(depth int) Option {
	return func(p Property) {
		fk, ok := p.(*ForeignKeyProperty)
		if !ok {
			p.base().fail("fetch depth applies to foreign keys only")
			return
		}
		if depth < 0 {
			fk.fail("fetch depth must not be negative, got %d", depth)
			return
		}
		fk.fetchDepth = depth
	}
}

// ModifiesEntity sets whether changes to a transient property count towards
// Entity.IsModified.
func ModifiesEntity(modifies bool) Option {
	return func(p Property) {
		tp, ok := p.(*TransientProperty)
		if !ok {
			p.base().fail("modifies entity applies to transient properties only")
			return
		}
		tp.modifiesEntity = modifies
	}
}
