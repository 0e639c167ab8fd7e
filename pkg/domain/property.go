package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Kind tags the property variants.
type Kind int

const (
	KindColumn Kind = iota
	KindForeignKey
	KindDerived
	KindDenormalized
	KindDenormalizedView
	KindValueList
	KindMirror
	KindSubquery
	KindAuditTime
	KindAuditUser
	KindTransient
)

var kindNames = [...]string{
	KindColumn:           "column",
	KindForeignKey:       "foreign_key",
	KindDerived:          "derived",
	KindDenormalized:     "denormalized",
	KindDenormalizedView: "denormalized_view",
	KindValueList:        "value_list",
	KindMirror:           "mirror",
	KindSubquery:         "subquery",
	KindAuditTime:        "audit_time",
	KindAuditUser:        "audit_user",
	KindTransient:        "transient",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Property describes one attribute of an entity type. The variants are
// *ColumnProperty, *ForeignKeyProperty, *DerivedProperty,
// *DenormalizedProperty, *DenormalizedViewProperty, *ValueListProperty,
// *MirrorProperty, *SubqueryProperty, *AuditProperty and *TransientProperty.
type Property interface {
	ID() string
	Is(id string) bool
	// EntityID is empty until the property is part of a definition.
	EntityID() string
	Kind() Kind
	Type() ValueType
	Caption() string
	Description() string
	Nullable() bool
	DefaultValue() any
	ReadOnly() bool
	Hidden() bool
	Min() (float64, bool)
	Max() (float64, bool)
	// MaxLength is zero when strings are unbounded.
	MaxLength() int
	Format() Format
	// MaximumFractionDigits is -1 for non-double properties.
	MaximumFractionDigits() int
	// Err returns the first configuration error recorded by an Option.
	Err() error
	String() string

	base() *attributes
}

// attributes is the state common to every property variant.
type attributes struct {
	id             string
	entityID       string
	kind           Kind
	valueType      ValueType
	caption        string
	description    string
	nullable       bool
	defaultValue   any
	readOnly       bool
	hidden         bool
	min, max       *float64
	maxLength      int
	format         Format
	fractionDigits int
	err            error
}

func newAttributes(id string, kind Kind, t ValueType) attributes {
	a := attributes{
		id:             id,
		kind:           kind,
		valueType:      t,
		nullable:       true,
		format:         defaultFormat(t),
		fractionDigits: -1,
	}
	if id == "" {
		a.fail("property id must not be empty")
	}
	if !validValueTypes[t] {
		a.fail("unknown value type %q", t)
	}
	if t == TypeDouble {
		a.fractionDigits = DefaultMaximumFractionDigits
	}
	return a
}

func (a *attributes) ID() string                 { return a.id }
func (a *attributes) Is(id string) bool          { return a.id == id }
func (a *attributes) EntityID() string           { return a.entityID }
func (a *attributes) Kind() Kind                 { return a.kind }
func (a *attributes) Type() ValueType            { return a.valueType }
func (a *attributes) Caption() string            { return a.caption }
func (a *attributes) Description() string        { return a.description }
func (a *attributes) Nullable() bool             { return a.nullable }
func (a *attributes) DefaultValue() any          { return a.defaultValue }
func (a *attributes) ReadOnly() bool             { return a.readOnly }
func (a *attributes) Hidden() bool               { return a.hidden }
func (a *attributes) MaxLength() int             { return a.maxLength }
func (a *attributes) Format() Format             { return a.format }
func (a *attributes) MaximumFractionDigits() int { return a.fractionDigits }
func (a *attributes) Err() error                 { return a.err }
func (a *attributes) base() *attributes          { return a }

func (a *attributes) Min() (float64, bool) {
	if a.min == nil {
		return 0, false
	}
	return *a.min, true
}

func (a *attributes) Max() (float64, bool) {
	if a.max == nil {
		return 0, false
	}
	return *a.max, true
}

func (a *attributes) String() string {
	if a.caption != "" {
		return a.caption
	}
	return a.id
}

// fail records the first configuration error.
func (a *attributes) fail(format string, args ...any) {
	if a.err == nil {
		a.err = schemaErrorf(a.entityID, a.id, format, args...)
	}
}

func (a *attributes) setEntityID(entityID string) error {
	if a.entityID != "" && a.entityID != entityID {
		return schemaErrorf(entityID, a.id, "property already belongs to entity %s", a.entityID)
	}
	a.entityID = entityID
	return nil
}

// Column is implemented by the variants stored in a physical column.
type Column interface {
	Property
	ColumnName() string
	ColumnType() ValueType
	// PrimaryKeyIndex is -1 for non-key columns.
	PrimaryKeyIndex() int
	IsPrimaryKey() bool
	Updatable() bool
	Searchable() bool
	Grouping() bool
	Aggregate() bool
	ColumnHasDefault() bool
	// ForeignKey returns the foreign key this column is a reference of, or nil.
	ForeignKey() *ForeignKeyProperty
	// FromColumnValue converts a value read from storage to the logical type.
	FromColumnValue(v any) (any, error)
	// ToColumnValue converts a logical value to its storage representation.
	ToColumnValue(v any) any

	col() *column
}

type column struct {
	attributes
	columnName      string
	columnType      ValueType
	primaryKeyIndex int
	updatable       bool
	searchable      bool
	grouping        bool
	aggregate       bool
	hasDefault      bool
	trueValue       any
	falseValue      any
	foreignKey      *ForeignKeyProperty
}

func newColumn(id string, kind Kind, t ValueType) column {
	return column{
		attributes:      newAttributes(id, kind, t),
		columnName:      id,
		columnType:      t,
		primaryKeyIndex: -1,
		updatable:       true,
		searchable:      t == TypeString,
	}
}

func (c *column) ColumnName() string              { return c.columnName }
func (c *column) ColumnType() ValueType           { return c.columnType }
func (c *column) PrimaryKeyIndex() int            { return c.primaryKeyIndex }
func (c *column) IsPrimaryKey() bool              { return c.primaryKeyIndex >= 0 }
func (c *column) Updatable() bool                 { return c.updatable }
func (c *column) Searchable() bool                { return c.searchable }
func (c *column) Grouping() bool                  { return c.grouping }
func (c *column) Aggregate() bool                 { return c.aggregate }
func (c *column) ColumnHasDefault() bool          { return c.hasDefault }
func (c *column) ForeignKey() *ForeignKeyProperty { return c.foreignKey }
func (c *column) col() *column                    { return c }

// ReadOnly follows the owning foreign key for reference columns.
func (c *column) ReadOnly() bool {
	if c.foreignKey != nil {
		return c.foreignKey.ReadOnly()
	}
	return c.readOnly
}

// FromColumnValue implements Column.
func (c *column) FromColumnValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if c.valueType == TypeBoolean {
		if c.trueValue != nil {
			switch {
			case storageEquals(c.trueValue, v):
				return true, nil
			case storageEquals(c.falseValue, v):
				return false, nil
			}
			return nil, valueError(ErrTypeMismatch, c, v, "not a boolean column value")
		}
		if n, ok := toInt64(v); ok {
			return n != 0, nil
		}
	}
	if c.valueType.IsTemporal() {
		switch x := v.(type) {
		case string:
			return parseTemporal(c.valueType, x, c)
		case []byte:
			return parseTemporal(c.valueType, string(x), c)
		}
	}
	if b, ok := v.([]byte); ok && c.valueType == TypeString {
		return string(b), nil
	}
	n, ok := normalize(c.valueType, v)
	if !ok {
		return nil, valueError(ErrTypeMismatch, c, v, "column value %T is not %s", v, c.valueType)
	}
	return n, nil
}

// ToColumnValue implements Column.
func (c *column) ToColumnValue(v any) any {
	if b, ok := v.(bool); ok && c.trueValue != nil {
		if b {
			return c.trueValue
		}
		return c.falseValue
	}
	return v
}

func storageEquals(a, b any) bool {
	if x, ok := toInt64(a); ok {
		y, ok := toInt64(b)
		return ok && x == y
	}
	if s, ok := b.([]byte); ok {
		b = string(s)
	}
	return valueEquals(a, b)
}

var temporalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	DateLayout,
	TimeLayout,
}

func parseTemporal(t ValueType, s string, p Property) (any, error) {
	for _, layout := range temporalLayouts {
		if tm, err := time.Parse(layout, s); err == nil {
			return tm, nil
		}
	}
	return nil, valueError(ErrTypeMismatch, p, s, "cannot parse %s", t)
}

// ColumnProperty is a plain physical column.
type ColumnProperty struct {
	column
}

// NewColumn declares a column property.
func NewColumn(id string, t ValueType, opts ...Option) *ColumnProperty {
	p := &ColumnProperty{column: newColumn(id, KindColumn, t)}
	apply(p, opts)
	return p
}

// NewPrimaryKey declares a single primary key column with index 0. Pass
// PrimaryKeyIndex to place it in a composite key.
func NewPrimaryKey(id string, t ValueType, opts ...Option) *ColumnProperty {
	return NewColumn(id, t, append([]Option{PrimaryKeyIndex(0)}, opts...)...)
}

// Item is one entry of a value list.
type Item struct {
	Value   any
	Caption string
}

// ValueListProperty is a column restricted to an enumerated set of values.
type ValueListProperty struct {
	column
	items []Item
}

// NewValueList declares a value list column. Item values must be of type t.
func NewValueList(id string, t ValueType, items []Item, opts ...Option) *ValueListProperty {
	p := &ValueListProperty{column: newColumn(id, KindValueList, t)}
	for _, item := range items {
		v, ok := normalize(t, item.Value)
		if !ok {
			p.fail("value list item %v is not %s", item.Value, t)
			continue
		}
		p.items = append(p.items, Item{Value: v, Caption: item.Caption})
	}
	apply(p, opts)
	return p
}

// Items returns the value list entries in declaration order.
func (p *ValueListProperty) Items() []Item { return slices.Clone(p.items) }

// IsValid reports whether v is nil or one of the item values.
func (p *ValueListProperty) IsValid(v any) bool {
	if v == nil {
		return true
	}
	return slices.ContainsFunc(p.items, func(item Item) bool { return valueEquals(item.Value, v) })
}

// ItemCaption returns the caption of the item holding v.
func (p *ValueListProperty) ItemCaption(v any) string {
	for _, item := range p.items {
		if valueEquals(item.Value, v) {
			return item.Caption
		}
	}
	return ""
}

// MirrorProperty is a reference column of a composite foreign key whose
// storage is shared with another reference column. It is never written to
// storage on its own.
type MirrorProperty struct {
	column
}

// NewMirror declares a mirror column.
func NewMirror(id string, t ValueType, opts ...Option) *MirrorProperty {
	p := &MirrorProperty{column: newColumn(id, KindMirror, t)}
	p.updatable = false
	apply(p, opts)
	return p
}

// SubqueryProperty is a read-only column whose value comes from a subquery.
type SubqueryProperty struct {
	column
	query string
}

// NewSubquery declares a subquery column.
func NewSubquery(id string, t ValueType, query string, opts ...Option) *SubqueryProperty {
	p := &SubqueryProperty{column: newColumn(id, KindSubquery, t), query: query}
	p.readOnly = true
	p.updatable = false
	if strings.TrimSpace(query) == "" {
		p.fail("subquery must not be empty")
	}
	apply(p, opts)
	return p
}

// Query returns the subquery text.
func (p *SubqueryProperty) Query() string { return p.query }

// AuditAction is the operation an audit column stamps.
type AuditAction int

const (
	AuditInsert AuditAction = iota
	AuditUpdate
)

func (a AuditAction) String() string {
	if a == AuditUpdate {
		return "update"
	}
	return "insert"
}

// AuditProperty is a read-only column stamped with a time or user name when
// a row is inserted or updated.
type AuditProperty struct {
	column
	action AuditAction
}

// NewAuditTime declares a timestamp audit column.
func NewAuditTime(id string, action AuditAction, opts ...Option) *AuditProperty {
	return newAudit(id, KindAuditTime, TypeTimestamp, action, opts)
}

// NewAuditUser declares a user name audit column.
func NewAuditUser(id string, action AuditAction, opts ...Option) *AuditProperty {
	return newAudit(id, KindAuditUser, TypeString, action, opts)
}

func newAudit(id string, kind Kind, t ValueType, action AuditAction, opts []Option) *AuditProperty {
	p := &AuditProperty{column: newColumn(id, kind, t), action: action}
	p.readOnly = true
	apply(p, opts)
	return p
}

// Action returns the audited operation.
func (p *AuditProperty) Action() AuditAction { return p.action }

// DenormalizedProperty is a physical column whose value is copied from the
// entity referenced by a foreign key whenever that foreign key is set.
type DenormalizedProperty struct {
	column
	foreignKeyID string
	source       Property
}

// NewDenormalized declares a column copied from source, a property of the
// entity referenced by the foreign key foreignKeyID.
func NewDenormalized(id, foreignKeyID string, source Property, opts ...Option) *DenormalizedProperty {
	t := TypeObject
	if source != nil {
		t = source.Type()
	}
	p := &DenormalizedProperty{column: newColumn(id, KindDenormalized, t), foreignKeyID: foreignKeyID, source: source}
	if source == nil {
		p.fail("denormalized property requires a source property")
	}
	apply(p, opts)
	return p
}

// ForeignKeyID returns the id of the foreign key the value is copied through.
func (p *DenormalizedProperty) ForeignKeyID() string { return p.foreignKeyID }

// Source returns the property of the referenced entity.
func (p *DenormalizedProperty) Source() Property { return p.source }

// ForeignKeyProperty references another entity through one or more
// reference columns. Its value is the referenced *Entity.
type ForeignKeyProperty struct {
	attributes
	referencedEntityID string
	references         []Column
	referencedIDs      []string
	fetchDepth         int
}

// NewForeignKey declares a foreign key to referencedEntityID. The reference
// columns match the referenced primary key by position unless
// ReferencedColumns names the referenced columns explicitly.
func NewForeignKey(id, referencedEntityID string, references []Column, opts ...Option) *ForeignKeyProperty {
	p := &ForeignKeyProperty{
		attributes:         newAttributes(id, KindForeignKey, TypeEntity),
		referencedEntityID: referencedEntityID,
		references:         slices.Clone(references),
		fetchDepth:         1,
	}
	p.format = nil
	if referencedEntityID == "" {
		p.fail("referenced entity id must not be empty")
	}
	if len(references) == 0 {
		p.fail("foreign key requires at least one reference column")
	}
	for _, ref := range references {
		if ref == nil {
			p.fail("nil reference column")
			continue
		}
		if ref.ID() == id {
			p.fail("reference column id %s equals the foreign key id", ref.ID())
		}
		c := ref.col()
		if c.foreignKey != nil && c.foreignKey != p {
			p.fail("column %s already references %s", ref.ID(), c.foreignKey.ID())
			continue
		}
		if c.readOnly {
			p.fail("reference column %s can not be read only, set it on the foreign key", ref.ID())
		}
		c.foreignKey = p
	}
	apply(p, opts)
	if len(p.referencedIDs) > 0 && len(p.referencedIDs) != len(p.references) {
		p.fail("%d reference columns but %d referenced columns", len(p.references), len(p.referencedIDs))
	}
	return p
}

// ReferencedEntityID returns the id of the referenced entity type.
func (p *ForeignKeyProperty) ReferencedEntityID() string { return p.referencedEntityID }

// References returns the reference columns in order.
func (p *ForeignKeyProperty) References() []Column { return slices.Clone(p.references) }

// ReferencedColumnIDs returns the explicitly referenced column ids, or nil
// when the foreign key references the primary key.
func (p *ForeignKeyProperty) ReferencedColumnIDs() []string { return slices.Clone(p.referencedIDs) }

// IsComposite reports whether more than one column is referenced.
func (p *ForeignKeyProperty) IsComposite() bool { return len(p.references) > 1 }

// FetchDepth returns how many levels of referenced entities a loader follows.
func (p *ForeignKeyProperty) FetchDepth() int { return p.fetchDepth }

// ValueProvider computes a derived value from the named source values.
type ValueProvider func(sources map[string]any) any

// DerivedProperty is a read-only value computed from other properties.
type DerivedProperty struct {
	attributes
	provider  ValueProvider
	sourceIDs []string
}

// NewDerived declares a property computed by provider from sourceIDs.
func NewDerived(id string, t ValueType, provider ValueProvider, sourceIDs []string, opts ...Option) *DerivedProperty {
	p := &DerivedProperty{attributes: newAttributes(id, KindDerived, t), provider: provider, sourceIDs: slices.Clone(sourceIDs)}
	p.readOnly = true
	if len(sourceIDs) == 0 {
		p.fail("derived property requires at least one source property")
	}
	if provider == nil {
		p.fail("derived property requires a value provider")
	}
	apply(p, opts)
	return p
}

// SourceIDs returns the ids of the properties the value is computed from.
func (p *DerivedProperty) SourceIDs() []string { return slices.Clone(p.sourceIDs) }

// Provider returns the value function.
func (p *DerivedProperty) Provider() ValueProvider { return p.provider }

// DenormalizedViewProperty is a read-only value taken from the entity
// referenced by a foreign key at read time. It is never persisted.
type DenormalizedViewProperty struct {
	attributes
	foreignKeyID string
	source       Property
}

// NewDenormalizedView declares a view of source through foreignKeyID.
func NewDenormalizedView(id, foreignKeyID string, source Property, opts ...Option) *DenormalizedViewProperty {
	t := TypeObject
	if source != nil {
		t = source.Type()
	}
	p := &DenormalizedViewProperty{attributes: newAttributes(id, KindDenormalizedView, t), foreignKeyID: foreignKeyID, source: source}
	p.readOnly = true
	if source == nil {
		p.fail("denormalized view requires a source property")
	}
	apply(p, opts)
	return p
}

// ForeignKeyID returns the id of the foreign key the value is read through.
func (p *DenormalizedViewProperty) ForeignKeyID() string { return p.foreignKeyID }

// Source returns the property of the referenced entity.
func (p *DenormalizedViewProperty) Source() Property { return p.source }

// TransientProperty holds a value that is never persisted.
type TransientProperty struct {
	attributes
	modifiesEntity bool
}

// NewTransient declares a transient property. By default a change to it
// marks the entity as modified.
func NewTransient(id string, t ValueType, opts ...Option) *TransientProperty {
	p := &TransientProperty{attributes: newAttributes(id, KindTransient, t), modifiesEntity: true}
	apply(p, opts)
	return p
}

// ModifiesEntity reports whether changes count towards Entity.IsModified.
func (p *TransientProperty) ModifiesEntity() bool { return p.modifiesEntity }

// isTransient reports whether p is never persisted.
func isTransient(p Property) bool {
	switch p.Kind() {
	case KindTransient, KindDerived, KindDenormalizedView:
		return true
	}
	return false
}
