package domain

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Key is the primary key value of an entity. A key with a single integer or
// long column hashes to the column value itself.
type Key struct {
	def     *Definition
	columns []Column
	values  map[string]any
	hash    int
	null    bool
	dirty   bool
}

func newKey(def *Definition) *Key {
	return newReferenceKey(def, def.primaryKey)
}

// newReferenceKey builds a key over columns, which are the primary key or
// the columns a foreign key explicitly references.
func newReferenceKey(def *Definition, columns []Column) *Key {
	return &Key{def: def, columns: columns, values: make(map[string]any, len(columns)), dirty: true}
}

// EntityID returns the entity type id.
func (k *Key) EntityID() string { return k.def.entityID }

// Definition returns the entity definition the key belongs to.
func (k *Key) Definition() *Definition { return k.def }

// Columns returns the key columns in order.
func (k *Key) Columns() []Column { return slices.Clone(k.columns) }

// IsComposite reports whether the key has more than one column.
func (k *Key) IsComposite() bool { return len(k.columns) > 1 }

// IsSingleInteger reports whether the key is one integer or long column.
func (k *Key) IsSingleInteger() bool {
	if len(k.columns) != 1 {
		return false
	}
	t := k.columns[0].Type()
	return t == TypeInteger || t == TypeLong
}

// Get returns the value of a key column.
func (k *Key) Get(c Column) any { return k.values[c.ID()] }

// Value returns the value of the first key column.
func (k *Key) Value() any { return k.values[k.columns[0].ID()] }

// Put sets the value of a key column.
func (k *Key) Put(c Column, value any) error {
	if !k.isKeyColumn(c) {
		return &LookupError{Err: ErrUndefinedProperty, DomainID: k.def.DomainID(), EntityID: k.def.entityID, PropertyID: c.ID()}
	}
	v, ok := normalize(c.Type(), value)
	if !ok {
		return valueError(ErrTypeMismatch, c, value, "%T is not %s", value, c.Type())
	}
	k.values[c.ID()] = v
	k.dirty = true
	return nil
}

func (k *Key) isKeyColumn(c Column) bool {
	return slices.ContainsFunc(k.columns, func(pk Column) bool { return pk.ID() == c.ID() })
}

// Hash returns the key hash. The second result is false when the key is
// null, that is when a non-nullable key column has no value.
func (k *Key) Hash() (int, bool) {
	if k.dirty {
		k.hash, k.null = k.computeHash()
		k.dirty = false
	}
	return k.hash, !k.null
}

// IsNull reports whether the key does not yet identify a row.
func (k *Key) IsNull() bool {
	_, ok := k.Hash()
	return !ok
}

func (k *Key) computeHash() (int, bool) {
	if len(k.values) == 0 {
		return 0, true
	}
	if !k.IsComposite() {
		v := k.Value()
		if v == nil {
			return 0, true
		}
		return hashValue(v), false
	}
	sum := 0
	for _, c := range k.columns {
		v := k.values[c.ID()]
		if v == nil {
			if !c.Nullable() {
				return 0, true
			}
			continue
		}
		sum += hashValue(v)
	}
	return sum, false
}

// Equal reports whether both keys belong to the same entity type and hold
// the same key values.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	if k == other {
		return true
	}
	if k.def.entityID != other.def.entityID {
		return false
	}
	switch {
	case k.IsComposite():
		for _, c := range k.columns {
			if !valueEquals(k.values[c.ID()], other.values[c.ID()]) {
				return false
			}
		}
		return true
	case k.IsSingleInteger():
		h1, ok1 := k.Hash()
		h2, ok2 := other.Hash()
		return ok1 == ok2 && h1 == h2
	}
	return valueEquals(k.Value(), other.Value())
}

// Copy returns an independent copy of the key.
func (k *Key) Copy() *Key {
	c := newReferenceKey(k.def, k.columns)
	maps.Copy(c.values, k.values)
	c.hash, c.null, c.dirty = k.hash, k.null, k.dirty
	return c
}

// String renders the key values. Composite keys are written as
// column=value pairs.
func (k *Key) String() string {
	if !k.IsComposite() {
		return formatKeyValue(k.Value())
	}
	parts := make([]string, 0, len(k.columns))
	for _, c := range k.columns {
		parts = append(parts, c.ID()+"="+formatKeyValue(k.values[c.ID()]))
	}
	return strings.Join(parts, ", ")
}

// mapKey identifies the key across entity types, for grouping.
func (k *Key) mapKey() string {
	return k.def.entityID + ":" + k.String()
}

func formatKeyValue(v any) string {
	if v == nil {
		return "null"
	}
	if tm, ok := v.(time.Time); ok {
		return tm.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// hashValue hashes a single key value. Integers hash to themselves.
func hashValue(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case rune:
		return int(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		bits := math.Float64bits(x)
		return int(bits ^ (bits >> 32))
	case string:
		return int(xxhash.Sum64String(x))
	case []byte:
		return int(xxhash.Sum64(x))
	case time.Time:
		return int(x.UnixNano())
	case *Entity:
		if x == nil {
			return 0
		}
		h, _ := x.cachedKey().Hash()
		return h
	}
	return int(xxhash.Sum64String(fmt.Sprint(v)))
}
