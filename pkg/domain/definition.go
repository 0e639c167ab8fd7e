package domain

import (
	"errors"
	"slices"
	"sort"
)

// Definition is the schema of one entity type. It is built by Domain.Define
// and is read only afterwards, except for the one-time settable clauses.
type Definition struct {
	domain          *Domain
	entityID        string
	tableName       string
	selectTableName string
	caption         string
	description     string

	properties   []Property
	byID         map[string]Property
	columns      []Column
	primaryKey   []Column
	foreignKeys  []*ForeignKeyProperty
	transients   []Property
	derived      map[string][]*DerivedProperty
	denormalized map[string][]*DenormalizedProperty
	// references maps a reference column id to the foreign keys using it.
	references map[string][]*ForeignKeyProperty

	keyGenerator   KeyGenerator
	validator      Validator
	stringProvider func(*Entity) string
	comparator     func(a, b *Entity) int

	orderBy     string
	groupBy     string
	having      string
	selectQuery string

	readOnly     bool
	smallDataset bool
	staticData   bool
}

// DefinitionOption configures a definition while it is built.
type DefinitionOption func(d *Definition) error

// TableName sets the table name, which defaults to the entity id.
func TableName(name string) DefinitionOption {
	return func(d *Definition) error {
		if name == "" {
			return schemaErrorf(d.entityID, "", "table name must not be empty")
		}
		d.tableName = name
		return nil
	}
}

// SelectTableName sets the table or view selected from, which defaults to
// the table name.
func SelectTableName(name string) DefinitionOption {
	return func(d *Definition) error {
		d.selectTableName = name
		return nil
	}
}

// EntityCaption sets the entity type caption.
func EntityCaption(caption string) DefinitionOption {
	return func(d *Definition) error {
		d.caption = caption
		return nil
	}
}

// EntityDescription sets the entity type description.
func EntityDescription(description string) DefinitionOption {
	return func(d *Definition) error {
		d.description = description
		return nil
	}
}

// WithKeyGenerator sets the primary key generation strategy.
func WithKeyGenerator(g KeyGenerator) DefinitionOption {
	return func(d *Definition) error {
		if g == nil {
			return schemaErrorf(d.entityID, "", "key generator must not be nil")
		}
		if !g.IsManual() && len(d.primaryKey) > 1 {
			return schemaErrorf(d.entityID, "", "%s key generation requires a single column primary key", g.Type())
		}
		d.keyGenerator = g
		return nil
	}
}

// WithValidator replaces the default validator.
func WithValidator(v Validator) DefinitionOption {
	return func(d *Definition) error {
		if v == nil {
			return schemaErrorf(d.entityID, "", "validator must not be nil")
		}
		d.validator = v
		return nil
	}
}

// WithStringProvider sets the function that renders entities as strings.
func WithStringProvider(fn func(*Entity) string) DefinitionOption {
	return func(d *Definition) error {
		d.stringProvider = fn
		return nil
	}
}

// WithComparator sets the entity ordering used by Entity.Compare.
func WithComparator(fn func(a, b *Entity) int) DefinitionOption {
	return func(d *Definition) error {
		d.comparator = fn
		return nil
	}
}

// OrderBy sets the default order by clause.
func OrderBy(clause string) DefinitionOption {
	return func(d *Definition) error { return d.SetOrderBy(clause) }
}

// GroupBy sets the group by clause.
func GroupBy(clause string) DefinitionOption {
	return func(d *Definition) error { return d.SetGroupBy(clause) }
}

// Having sets the having clause.
func Having(clause string) DefinitionOption {
	return func(d *Definition) error { return d.SetHaving(clause) }
}

// SelectQuery sets a custom select query.
func SelectQuery(query string) DefinitionOption {
	return func(d *Definition) error { return d.SetSelectQuery(query) }
}

// ReadOnlyEntity marks the entity type as read only.
func ReadOnlyEntity() DefinitionOption {
	return func(d *Definition) error {
		d.readOnly = true
		return nil
	}
}

// SmallDataset marks the entity type as having few rows.
func SmallDataset() DefinitionOption {
	return func(d *Definition) error {
		d.smallDataset = true
		return nil
	}
}

// StaticData marks the entity type's rows as rarely changing, so stores may
// cache them.
func StaticData() DefinitionOption {
	return func(d *Definition) error {
		d.staticData = true
		return nil
	}
}

func newDefinition(dom *Domain, entityID string, properties []Property) (*Definition, error) {
	if entityID == "" {
		return nil, schemaErrorf("", "", "entity id must not be empty")
	}
	d := &Definition{
		domain:       dom,
		entityID:     entityID,
		tableName:    entityID,
		byID:         make(map[string]Property, len(properties)),
		derived:      make(map[string][]*DerivedProperty),
		denormalized: make(map[string][]*DenormalizedProperty),
		references:   make(map[string][]*ForeignKeyProperty),
		keyGenerator: ManualKeyGenerator(),
	}
	var mirrors []*MirrorProperty
	for _, p := range properties {
		if p == nil {
			return nil, schemaErrorf(entityID, "", "nil property")
		}
		if err := d.register(p); err != nil {
			return nil, err
		}
		fk, ok := p.(*ForeignKeyProperty)
		if !ok {
			continue
		}
		for _, ref := range fk.references {
			if m, ok := ref.(*MirrorProperty); ok {
				if err := m.setEntityID(entityID); err != nil {
					return nil, err
				}
				mirrors = append(mirrors, m)
				continue
			}
			if err := d.register(ref); err != nil {
				return nil, err
			}
		}
	}
	for _, m := range mirrors {
		if c, ok := d.byID[m.id].(Column); !ok || c.Kind() == KindMirror {
			return nil, schemaErrorf(entityID, m.id, "mirror does not match a column")
		}
	}
	for _, p := range d.properties {
		switch x := p.(type) {
		case Column:
			d.columns = append(d.columns, x)
			if x.IsPrimaryKey() {
				d.primaryKey = append(d.primaryKey, x)
			}
		case *ForeignKeyProperty:
			d.foreignKeys = append(d.foreignKeys, x)
			for _, ref := range x.references {
				d.references[ref.ID()] = append(d.references[ref.ID()], x)
			}
		}
		if isTransient(p) {
			d.transients = append(d.transients, p)
		}
	}
	if err := d.checkPrimaryKey(); err != nil {
		return nil, err
	}
	if err := d.indexDependencies(); err != nil {
		return nil, err
	}
	d.validator = NewValidator(true)
	return d, nil
}

func (d *Definition) register(p Property) error {
	if err := p.Err(); err != nil {
		var se *SchemaError
		if errors.As(err, &se) && se.EntityID == "" {
			return &SchemaError{EntityID: d.entityID, PropertyID: se.PropertyID, Reason: se.Reason}
		}
		return err
	}
	if _, ok := d.byID[p.ID()]; ok {
		return schemaErrorf(d.entityID, p.ID(), "duplicate property id")
	}
	if err := p.base().setEntityID(d.entityID); err != nil {
		return err
	}
	d.byID[p.ID()] = p
	d.properties = append(d.properties, p)
	return nil
}

func (d *Definition) checkPrimaryKey() error {
	if len(d.primaryKey) == 0 {
		return schemaErrorf(d.entityID, "", "no primary key columns")
	}
	sort.SliceStable(d.primaryKey, func(i, j int) bool {
		return d.primaryKey[i].PrimaryKeyIndex() < d.primaryKey[j].PrimaryKeyIndex()
	})
	for i, c := range d.primaryKey {
		idx := c.PrimaryKeyIndex()
		if i > 0 && d.primaryKey[i-1].PrimaryKeyIndex() == idx {
			return schemaErrorf(d.entityID, c.ID(), "primary key index %d already used by %s", idx, d.primaryKey[i-1].ID())
		}
		if idx != i {
			return schemaErrorf(d.entityID, c.ID(), "primary key index %d is not contiguous", idx)
		}
	}
	return nil
}

func (d *Definition) indexDependencies() error {
	for _, p := range d.properties {
		switch x := p.(type) {
		case *DerivedProperty:
			for _, src := range x.sourceIDs {
				if _, ok := d.byID[src]; !ok {
					return schemaErrorf(d.entityID, x.id, "undefined source property %s", src)
				}
				d.derived[src] = append(d.derived[src], x)
			}
		case *DenormalizedProperty:
			if err := d.checkDenormalizedSource(x.id, x.foreignKeyID, x.source); err != nil {
				return err
			}
			d.denormalized[x.foreignKeyID] = append(d.denormalized[x.foreignKeyID], x)
		case *DenormalizedViewProperty:
			if err := d.checkDenormalizedSource(x.id, x.foreignKeyID, x.source); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Definition) checkDenormalizedSource(id, foreignKeyID string, source Property) error {
	fk, ok := d.byID[foreignKeyID].(*ForeignKeyProperty)
	if !ok {
		return schemaErrorf(d.entityID, id, "undefined foreign key %s", foreignKeyID)
	}
	if source.EntityID() != "" && source.EntityID() != fk.referencedEntityID {
		return schemaErrorf(d.entityID, id, "source %s belongs to %s, not %s", source.ID(), source.EntityID(), fk.referencedEntityID)
	}
	return nil
}

// checkForeignKeys verifies that referenced entities are defined and that
// the reference columns match the referenced columns. defined resolves
// entity ids other than the definition's own.
func (d *Definition) checkForeignKeys(defined func(entityID string) (*Definition, bool)) error {
	for _, fk := range d.foreignKeys {
		ref := d
		if fk.referencedEntityID != d.entityID {
			var ok bool
			if ref, ok = defined(fk.referencedEntityID); !ok {
				return schemaErrorf(d.entityID, fk.id, "referenced entity %s is not defined", fk.referencedEntityID)
			}
		}
		cols, err := ref.referencedColumns(fk)
		if err != nil {
			return err
		}
		if len(cols) != len(fk.references) {
			return schemaErrorf(d.entityID, fk.id, "%d reference columns but %s has %d referenced columns",
				len(fk.references), ref.entityID, len(cols))
		}
	}
	return nil
}

// EntityID returns the entity type id.
func (d *Definition) EntityID() string { return d.entityID }

// DomainID returns the id of the owning domain.
func (d *Definition) DomainID() string { return d.domain.id }

// Domain returns the owning domain.
func (d *Definition) Domain() *Domain { return d.domain }

// TableName returns the table rows are written to.
func (d *Definition) TableName() string { return d.tableName }

// SelectTableName returns the table or view rows are selected from.
func (d *Definition) SelectTableName() string {
	if d.selectTableName != "" {
		return d.selectTableName
	}
	return d.tableName
}

// Caption returns the display caption of the entity type.
func (d *Definition) Caption() string { return d.caption }

// Description returns the description of the entity type.
func (d *Definition) Description() string { return d.description }

// KeyGenerator returns the primary key generator, ManualKeyGenerator by default.
func (d *Definition) KeyGenerator() KeyGenerator { return d.keyGenerator }

// Validator returns the validator entities of this type are checked with.
func (d *Definition) Validator() Validator { return d.validator }

// OrderByClause returns the default order by clause, or "".
func (d *Definition) OrderByClause() string { return d.orderBy }

// GroupByClause returns the group by clause, or "".
func (d *Definition) GroupByClause() string { return d.groupBy }

// HavingClause returns the having clause, or "".
func (d *Definition) HavingClause() string { return d.having }

// SelectQueryText returns the custom select query, or "" when rows come
// from the select table.
func (d *Definition) SelectQueryText() string { return d.selectQuery }

// IsReadOnly reports whether entities of this type can not be written.
func (d *Definition) IsReadOnly() bool { return d.readOnly }

// IsSmallDataset reports whether the whole table is small enough to list.
func (d *Definition) IsSmallDataset() bool { return d.smallDataset }

// IsStaticData reports whether rows rarely change and may be cached.
func (d *Definition) IsStaticData() bool { return d.staticData }

// HasDerived reports whether derived properties are computed from sourceID.
func (d *Definition) HasDerived(sourceID string) bool {
	return len(d.derived[sourceID]) > 0
}

// HasDenormalized reports whether properties are copied through fkID.
func (d *Definition) HasDenormalized(fkID string) bool {
	return len(d.denormalized[fkID]) > 0
}

func setOnce(d *Definition, field *string, name, value string) error {
	if *field != "" {
		return schemaErrorf(d.entityID, "", "%s has already been set", name)
	}
	*field = value
	return nil
}

// SetOrderBy sets the order by clause. It fails if already set.
func (d *Definition) SetOrderBy(clause string) error {
	return setOnce(d, &d.orderBy, "order by clause", clause)
}

// SetGroupBy sets the group by clause. It fails if already set.
func (d *Definition) SetGroupBy(clause string) error {
	return setOnce(d, &d.groupBy, "group by clause", clause)
}

// SetHaving sets the having clause. It fails if already set.
func (d *Definition) SetHaving(clause string) error {
	return setOnce(d, &d.having, "having clause", clause)
}

// SetSelectQuery sets the select query. It fails if already set.
func (d *Definition) SetSelectQuery(query string) error {
	return setOnce(d, &d.selectQuery, "select query", query)
}

// Property returns the property with the given id.
func (d *Definition) Property(id string) (Property, error) {
	p, ok := d.byID[id]
	if !ok {
		return nil, &LookupError{Err: ErrUndefinedProperty, DomainID: d.DomainID(), EntityID: d.entityID, PropertyID: id}
	}
	return p, nil
}

// Column returns the column with the given id.
func (d *Definition) Column(id string) (Column, error) {
	p, err := d.Property(id)
	if err != nil {
		return nil, err
	}
	c, ok := p.(Column)
	if !ok {
		return nil, &LookupError{Err: ErrUndefinedProperty, DomainID: d.DomainID(), EntityID: d.entityID, PropertyID: id}
	}
	return c, nil
}

// ForeignKey returns the foreign key with the given id.
func (d *Definition) ForeignKey(id string) (*ForeignKeyProperty, error) {
	fk, ok := d.byID[id].(*ForeignKeyProperty)
	if !ok {
		return nil, &LookupError{Err: ErrUndefinedForeignKey, DomainID: d.DomainID(), EntityID: d.entityID, PropertyID: id}
	}
	return fk, nil
}

// Properties returns all properties in declaration order. Foreign key
// reference columns follow their foreign key.
func (d *Definition) Properties() []Property { return slices.Clone(d.properties) }

// Columns returns the column backed properties in declaration order.
func (d *Definition) Columns() []Column { return slices.Clone(d.columns) }

// SelectColumns returns the columns a row source supplies, in order.
func (d *Definition) SelectColumns() []Column {
	out := make([]Column, 0, len(d.columns))
	for _, c := range d.columns {
		if c.Kind() != KindMirror {
			out = append(out, c)
		}
	}
	return out
}

// WritableColumns returns the columns written on insert, or on update when
// update is true.
func (d *Definition) WritableColumns(update bool) []Column {
	out := make([]Column, 0, len(d.columns))
	for _, c := range d.columns {
		switch c.Kind() {
		case KindMirror, KindSubquery:
			continue
		}
		if update && !c.Updatable() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// PrimaryKey returns the primary key columns ordered by index.
func (d *Definition) PrimaryKey() []Column { return slices.Clone(d.primaryKey) }

// ForeignKeys returns the foreign keys in declaration order.
func (d *Definition) ForeignKeys() []*ForeignKeyProperty { return slices.Clone(d.foreignKeys) }

// Transients returns the properties that are never persisted.
func (d *Definition) Transients() []Property { return slices.Clone(d.transients) }

// DerivedFrom returns the derived properties computed from sourceID.
func (d *Definition) DerivedFrom(sourceID string) []*DerivedProperty {
	return slices.Clone(d.derived[sourceID])
}

// DenormalizedFrom returns the denormalized columns copied through fkID.
func (d *Definition) DenormalizedFrom(fkID string) []*DenormalizedProperty {
	return slices.Clone(d.denormalized[fkID])
}

// ReferencedColumns returns the columns of the referenced entity that fk's
// reference columns match, by position.
func (d *Definition) ReferencedColumns(fk *ForeignKeyProperty) ([]Column, error) {
	ref, err := d.domain.Definition(fk.referencedEntityID)
	if err != nil {
		return nil, err
	}
	return ref.referencedColumns(fk)
}

// referencedColumns resolves fk against d, the referenced definition.
func (d *Definition) referencedColumns(fk *ForeignKeyProperty) ([]Column, error) {
	if len(fk.referencedIDs) == 0 {
		return d.primaryKey, nil
	}
	cols := make([]Column, 0, len(fk.referencedIDs))
	for _, id := range fk.referencedIDs {
		c, err := d.Column(id)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// RowSource supplies column values for one row, converted to their logical
// types.
type RowSource interface {
	ColumnValue(index int, column Column) (any, error)
}

// PackRow builds an entity from one row. The row source is asked for each
// of SelectColumns in order. The values are initial, so the entity is not
// modified.
func (d *Definition) PackRow(src RowSource) (*Entity, error) {
	e := newEntity(d)
	for i, c := range d.SelectColumns() {
		raw, err := src.ColumnValue(i, c)
		if err != nil {
			return nil, err
		}
		v, ok := normalize(c.Type(), raw)
		if !ok {
			return nil, valueError(ErrTypeMismatch, c, raw, "row value is not %s", c.Type())
		}
		e.values[c.ID()] = v
	}
	return e, nil
}
