package domain

import (
	"bytes"
	"fmt"
	"time"
)

// Entity is a mutable record of one entity type. Values are keyed by
// property id. The first change of a property records its original value;
// setting the original value again clears it.
//
// An Entity is not safe for concurrent mutation. Use Copy to hand an
// independent snapshot to another goroutine.
type Entity struct {
	def       *Definition
	values    map[string]any
	originals map[string]any

	key            *Key
	referencedKeys map[string]*Key
	display        string
	displayValid   bool

	// propagating suppresses the stale foreign key check while a foreign
	// key writes its reference columns.
	propagating bool
}

func newEntity(def *Definition) *Entity {
	return &Entity{
		def:            def,
		values:         make(map[string]any, len(def.properties)),
		originals:      make(map[string]any),
		referencedKeys: make(map[string]*Key),
	}
}

// Definition returns the entity type definition.
func (e *Entity) Definition() *Definition { return e.def }

// EntityID returns the entity type id.
func (e *Entity) EntityID() string { return e.def.entityID }

// property resolves p to the definition's own property with the same id.
// A mirror column resolves to the column it mirrors.
func (e *Entity) property(p Property) (Property, error) {
	if p != nil {
		own, ok := e.def.byID[p.ID()]
		if ok && (p.EntityID() == "" || p.EntityID() == e.def.entityID) {
			return own, nil
		}
	}
	id := ""
	if p != nil {
		id = p.ID()
	}
	return nil, &LookupError{Err: ErrUndefinedProperty, DomainID: e.def.DomainID(), EntityID: e.def.entityID, PropertyID: id}
}

// Contains reports whether a value, possibly nil, is present for p.
func (e *Entity) Contains(p Property) bool {
	own, err := e.property(p)
	if err != nil {
		return false
	}
	_, ok := e.values[own.ID()]
	return ok
}

// Get returns the current value of p. Derived values are computed from
// their sources on every call and denormalized views are read from the
// referenced entity. A foreign key without a loaded entity returns an
// entity built from the referenced key, or nil when that key is null.
func (e *Entity) Get(p Property) any {
	own, err := e.property(p)
	if err != nil {
		return nil
	}
	switch x := own.(type) {
	case *DerivedProperty:
		return e.derivedValue(x)
	case *DenormalizedViewProperty:
		fk, ok := e.def.byID[x.foreignKeyID].(*ForeignKeyProperty)
		if !ok {
			return nil
		}
		ref := e.ForeignKeyValue(fk)
		if ref == nil {
			return nil
		}
		return ref.Get(x.source)
	case *ForeignKeyProperty:
		if ref := e.ForeignKeyValue(x); ref != nil {
			return ref
		}
		return nil
	}
	return e.values[own.ID()]
}

// ValueOf returns the value of p as a T. The second result is false when
// the value is nil or not a T.
func ValueOf[T any](e *Entity, p Property) (T, bool) {
	v, ok := e.Get(p).(T)
	return v, ok
}

func (e *Entity) derivedValue(p *DerivedProperty) any {
	sources := make(map[string]any, len(p.sourceIDs))
	for _, id := range p.sourceIDs {
		sources[id] = e.Get(e.def.byID[id])
	}
	return p.provider(sources)
}

// Put sets the value of p. Derived and denormalized view properties are
// rejected with ErrReadOnlyViolation, values of the wrong type with
// ErrTypeMismatch. Setting a foreign key also sets its reference columns
// and the denormalized columns copied through it.
func (e *Entity) Put(p Property, value any) error {
	own, err := e.property(p)
	if err != nil {
		return err
	}
	return e.put(own, value)
}

func (e *Entity) put(p Property, value any) error {
	switch p.Kind() {
	case KindDerived, KindDenormalizedView:
		return valueError(ErrReadOnlyViolation, p, value, "%s values can not be set", p.Kind())
	}
	v, err := e.checkType(p, value)
	if err != nil {
		return err
	}
	if vl, ok := p.(*ValueListProperty); ok && !vl.IsValid(v) {
		return valueError(ErrTypeMismatch, p, value, "not a value list item")
	}
	if f, ok := v.(float64); ok {
		v = round(f, p.MaximumFractionDigits())
	}
	if fk, ok := p.(*ForeignKeyProperty); ok {
		ref, _ := v.(*Entity)
		if err := e.propagate(fk, ref); err != nil {
			return err
		}
	}
	e.setValue(p, v)
	return nil
}

func (e *Entity) checkType(p Property, value any) (any, error) {
	v, ok := normalize(p.Type(), value)
	if !ok {
		return nil, valueError(ErrTypeMismatch, p, value, "%T is not %s", value, p.Type())
	}
	if fk, isFK := p.(*ForeignKeyProperty); isFK && v != nil {
		if ref := v.(*Entity); ref.EntityID() != fk.referencedEntityID {
			return nil, valueError(ErrTypeMismatch, p, ref.EntityID(), "expected %s entity", fk.referencedEntityID)
		}
	}
	return v, nil
}

// propagate writes the reference columns and denormalized columns of fk
// from ref, which may be nil.
func (e *Entity) propagate(fk *ForeignKeyProperty, ref *Entity) error {
	e.propagating = true
	defer func() { e.propagating = false }()

	var cols []Column
	if ref != nil {
		var err error
		if cols, err = ref.def.referencedColumns(fk); err != nil {
			return err
		}
	}
	for i, c := range fk.references {
		if c.Kind() == KindMirror {
			continue
		}
		var v any
		if ref != nil && i < len(cols) {
			v = ref.values[cols[i].ID()]
		}
		if err := e.put(c, v); err != nil {
			return err
		}
	}
	for _, d := range e.def.denormalized[fk.id] {
		var v any
		if ref != nil {
			v = ref.Get(d.source)
		}
		if err := e.put(d, v); err != nil {
			return err
		}
	}
	delete(e.referencedKeys, fk.id)
	return nil
}

// setValue stores v and maintains the original value of p.
func (e *Entity) setValue(p Property, v any) {
	id := p.ID()
	prev, had := e.values[id]
	if had && valueEquals(prev, v) {
		if _, isEntity := v.(*Entity); isEntity {
			e.values[id] = v
		}
		return
	}
	e.values[id] = v
	if had {
		if orig, modified := e.originals[id]; modified {
			if valueEquals(orig, v) {
				delete(e.originals, id)
			}
		} else {
			e.originals[id] = prev
		}
	}
	e.changed(p)
}

// changed invalidates the caches that depend on p.
func (e *Entity) changed(p Property) {
	e.displayValid = false
	switch x := p.(type) {
	case *ForeignKeyProperty:
		delete(e.referencedKeys, x.id)
	case Column:
		if x.IsPrimaryKey() {
			e.key = nil
		}
		for _, fk := range e.def.references[x.ID()] {
			delete(e.referencedKeys, fk.id)
			if !e.propagating {
				e.dropStaleForeignKey(fk)
			}
		}
	}
}

// dropStaleForeignKey removes a loaded foreign key entity that no longer
// matches the reference column values.
func (e *Entity) dropStaleForeignKey(fk *ForeignKeyProperty) {
	ref, _ := e.values[fk.id].(*Entity)
	if ref == nil {
		return
	}
	cols, err := ref.def.referencedColumns(fk)
	if err != nil {
		return
	}
	for i, c := range fk.references {
		if i >= len(cols) {
			return
		}
		v, _ := normalize(cols[i].Type(), e.values[c.ID()])
		if !valueEquals(v, ref.values[cols[i].ID()]) {
			delete(e.values, fk.id)
			delete(e.originals, fk.id)
			return
		}
	}
}

// Remove deletes the value and original value of p and returns the removed
// value. Removing a foreign key removes its reference columns as well.
func (e *Entity) Remove(p Property) any {
	own, err := e.property(p)
	if err != nil {
		return nil
	}
	return e.remove(own)
}

func (e *Entity) remove(p Property) any {
	prev, ok := e.values[p.ID()]
	if !ok {
		return nil
	}
	delete(e.values, p.ID())
	delete(e.originals, p.ID())
	if fk, isFK := p.(*ForeignKeyProperty); isFK {
		for _, c := range fk.references {
			if c.Kind() != KindMirror {
				e.remove(c)
			}
		}
	}
	e.changed(p)
	return prev
}

// IsModified reports whether an updatable, writable column or a transient
// property that modifies the entity differs from its original value.
func (e *Entity) IsModified() bool {
	for id := range e.originals {
		switch x := e.def.byID[id].(type) {
		case *TransientProperty:
			if x.modifiesEntity {
				return true
			}
		case Column:
			if !x.ReadOnly() && x.Updatable() {
				return true
			}
		}
	}
	return false
}

// IsPropertyModified reports whether p differs from its original value.
func (e *Entity) IsPropertyModified(p Property) bool {
	own, err := e.property(p)
	if err != nil {
		return false
	}
	_, ok := e.originals[own.ID()]
	return ok
}

// IsValueNull reports whether p has no value. A foreign key is null when
// its referenced key can not be built from the reference columns.
func (e *Entity) IsValueNull(p Property) bool {
	own, err := e.property(p)
	if err != nil {
		return true
	}
	if fk, ok := own.(*ForeignKeyProperty); ok {
		return e.isForeignKeyNull(fk)
	}
	return e.Get(own) == nil
}

func (e *Entity) isForeignKeyNull(fk *ForeignKeyProperty) bool {
	if !fk.IsComposite() {
		return e.values[fk.references[0].ID()] == nil
	}
	cols, err := e.def.ReferencedColumns(fk)
	for i, c := range fk.references {
		if e.values[c.ID()] != nil {
			continue
		}
		if err != nil || i >= len(cols) || !cols[i].Nullable() {
			return true
		}
	}
	return false
}

// Original returns the original value of p if it has been modified,
// otherwise the current value.
func (e *Entity) Original(p Property) any {
	own, err := e.property(p)
	if err != nil {
		return nil
	}
	if orig, ok := e.originals[own.ID()]; ok {
		return orig
	}
	return e.Get(own)
}

// Save accepts the current value of p as its original value.
func (e *Entity) Save(p Property) {
	if own, err := e.property(p); err == nil {
		delete(e.originals, own.ID())
	}
}

// SaveAll accepts all current values.
func (e *Entity) SaveAll() {
	clear(e.originals)
}

// Revert restores the original value of p. Reverting a foreign key
// restores its reference columns and denormalized columns as well.
func (e *Entity) Revert(p Property) {
	own, err := e.property(p)
	if err != nil {
		return
	}
	e.revert(own)
}

func (e *Entity) revert(p Property) {
	orig, ok := e.originals[p.ID()]
	if !ok {
		return
	}
	if fk, isFK := p.(*ForeignKeyProperty); isFK {
		if err := e.put(fk, orig); err == nil {
			delete(e.originals, fk.id)
			return
		}
	}
	e.values[p.ID()] = orig
	delete(e.originals, p.ID())
	e.changed(p)
}

// RevertAll restores all original values. Foreign keys are reverted first
// so their reference columns follow the restored entities.
func (e *Entity) RevertAll() {
	modified := e.ModifiedProperties()
	for _, p := range modified {
		if p.Kind() == KindForeignKey {
			e.revert(p)
		}
	}
	for _, p := range modified {
		if p.Kind() != KindForeignKey {
			e.revert(p)
		}
	}
}

// ModifiedProperties returns the properties with original values, in
// declaration order.
func (e *Entity) ModifiedProperties() []Property {
	var out []Property
	for _, p := range e.def.properties {
		if _, ok := e.originals[p.ID()]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Key returns a copy of the primary key built from the current values.
func (e *Entity) Key() *Key {
	return e.cachedKey().Copy()
}

// cachedKey returns the primary key, cached until a primary key column
// changes. Callers must not modify it.
func (e *Entity) cachedKey() *Key {
	if e.key == nil {
		e.key = e.buildKey(false)
	}
	return e.key
}

// OriginalKey returns the primary key built from the original values.
func (e *Entity) OriginalKey() *Key {
	return e.buildKey(true)
}

func (e *Entity) buildKey(original bool) *Key {
	k := newKey(e.def)
	for _, c := range e.def.primaryKey {
		v, ok := e.values[c.ID()]
		if original {
			if orig, modified := e.originals[c.ID()]; modified {
				v, ok = orig, true
			}
		}
		if ok {
			k.values[c.ID()] = v
		}
	}
	return k
}

// ReferencedKey returns the key of the entity fk references, built from the
// reference column values. It is nil when a non-nullable referenced column
// has no value.
func (e *Entity) ReferencedKey(fk *ForeignKeyProperty) *Key {
	if k, ok := e.referencedKeys[fk.id]; ok {
		return k
	}
	k := e.buildReferencedKey(fk)
	if k != nil {
		e.referencedKeys[fk.id] = k
	}
	return k
}

func (e *Entity) buildReferencedKey(fk *ForeignKeyProperty) *Key {
	if own, ok := e.def.byID[fk.id]; !ok || own != Property(fk) {
		return nil
	}
	var ref *Definition
	if loaded, _ := e.values[fk.id].(*Entity); loaded != nil {
		ref = loaded.def
	} else {
		var err error
		if ref, err = e.def.domain.Definition(fk.referencedEntityID); err != nil {
			return nil
		}
	}
	cols, err := ref.referencedColumns(fk)
	if err != nil || len(cols) != len(fk.references) {
		return nil
	}
	k := newReferenceKey(ref, cols)
	for i, c := range fk.references {
		v := e.values[c.ID()]
		if v == nil {
			if !fk.IsComposite() || !cols[i].Nullable() {
				return nil
			}
		}
		nv, ok := normalize(cols[i].Type(), v)
		if !ok {
			return nil
		}
		k.values[cols[i].ID()] = nv
	}
	return k
}

// ForeignKeyValue returns the entity fk references. When no entity is
// loaded one is built from the referenced key, with only key values set.
func (e *Entity) ForeignKeyValue(fk *ForeignKeyProperty) *Entity {
	if ref, _ := e.values[fk.id].(*Entity); ref != nil {
		return ref
	}
	k := e.ReferencedKey(fk)
	if k == nil {
		return nil
	}
	return entityFromKey(k)
}

// IsLoaded reports whether an entity value is present for fk.
func (e *Entity) IsLoaded(fk *ForeignKeyProperty) bool {
	ref, _ := e.values[fk.id].(*Entity)
	return ref != nil
}

func entityFromKey(k *Key) *Entity {
	e := newEntity(k.def)
	for id, v := range k.values {
		e.values[id] = v
	}
	return e
}

// ValuesEqual reports whether other holds the same column values. Blob
// columns are not compared.
func (e *Entity) ValuesEqual(other *Entity) bool {
	if other == nil || other.def != e.def {
		return false
	}
	for _, c := range e.def.columns {
		if c.Type().IsBlob() {
			continue
		}
		v1, ok1 := e.values[c.ID()]
		v2, ok2 := other.values[c.ID()]
		if ok1 != ok2 || !valueEquals(v1, v2) {
			return false
		}
	}
	return true
}

// Copy returns a deep copy. Referenced entities are copied as well; an
// entity reachable more than once, including through a cycle, is copied
// once.
func (e *Entity) Copy() *Entity {
	return e.copy(make(map[*Entity]*Entity))
}

func (e *Entity) copy(seen map[*Entity]*Entity) *Entity {
	if c, ok := seen[e]; ok {
		return c
	}
	c := newEntity(e.def)
	seen[e] = c
	c.copyValues(e, seen)
	return c
}

func (e *Entity) copyValues(from *Entity, seen map[*Entity]*Entity) {
	for id, v := range from.values {
		e.values[id] = copyValue(v, seen)
	}
	for id, v := range from.originals {
		e.originals[id] = copyValue(v, seen)
	}
}

func copyValue(v any, seen map[*Entity]*Entity) any {
	switch x := v.(type) {
	case *Entity:
		if x == nil {
			return x
		}
		return x.copy(seen)
	case []byte:
		return bytes.Clone(x)
	}
	return v
}

// SetAs replaces all values and original values with copies of those of
// other, which must be of the same entity type. A nil other clears the
// entity.
func (e *Entity) SetAs(other *Entity) error {
	if other == e {
		return nil
	}
	if other != nil && other.def != e.def {
		return fmt.Errorf("%w: expected %s entity, got %s", ErrTypeMismatch, e.def.entityID, other.EntityID())
	}
	e.Clear()
	if other == nil {
		return nil
	}
	e.copyValues(other, map[*Entity]*Entity{other: e})
	return nil
}

// ClearKeyValues removes the primary key values, making the entity new.
func (e *Entity) ClearKeyValues() {
	for _, c := range e.def.primaryKey {
		e.remove(c)
	}
	e.key = nil
}

// Clear removes all values and original values.
func (e *Entity) Clear() {
	clear(e.values)
	clear(e.originals)
	clear(e.referencedKeys)
	e.key = nil
	e.displayValid = false
}

// Equal reports whether both entities have equal primary keys.
func (e *Entity) Equal(other *Entity) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.cachedKey().Equal(other.cachedKey())
}

// Compare orders entities with the definition's comparator, which
// defaults to comparing display strings.
func (e *Entity) Compare(other *Entity) int {
	if e.def.comparator != nil {
		return e.def.comparator(e, other)
	}
	return compareStrings(e.String(), other.String())
}

// String renders the entity with the definition's string provider, which
// defaults to "entityID: key".
func (e *Entity) String() string {
	if !e.displayValid {
		if e.def.stringProvider != nil {
			e.display = e.def.stringProvider(e)
		} else {
			e.display = e.def.entityID + ": " + e.cachedKey().String()
		}
		e.displayValid = true
	}
	return e.display
}

// Formatted returns the display text of p: the item caption for value
// lists, the referenced entity for foreign keys, otherwise the value
// rendered with the property format.
func (e *Entity) Formatted(p Property) string {
	own, err := e.property(p)
	if err != nil {
		return ""
	}
	switch x := own.(type) {
	case *ValueListProperty:
		return x.ItemCaption(e.values[x.id])
	case *ForeignKeyProperty:
		if ref, _ := e.values[x.id].(*Entity); ref != nil {
			return ref.String()
		}
		if k := e.ReferencedKey(x); k != nil {
			return k.String()
		}
		return ""
	}
	v := e.Get(own)
	if v == nil {
		return ""
	}
	if f := own.Format(); f != nil {
		return f.Format(v)
	}
	switch x := v.(type) {
	case time.Time:
		return x.Format(TimestampLayout)
	case rune:
		return string(x)
	}
	return fmt.Sprint(v)
}
