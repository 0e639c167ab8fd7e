package domain

import (
	"slices"
)

// IsNew reports whether e has not been stored yet, that is whether its key
// or original key is null.
func IsNew(e *Entity) bool {
	return e.cachedKey().IsNull() || e.OriginalKey().IsNull()
}

// Modified returns the entities that are modified.
func Modified(entities []*Entity) []*Entity {
	var out []*Entity
	for _, e := range entities {
		if e.IsModified() {
			out = append(out, e)
		}
	}
	return out
}

// Keys returns the primary keys of entities, or their original keys.
func Keys(entities []*Entity, original bool) []*Key {
	out := make([]*Key, 0, len(entities))
	for _, e := range entities {
		if original {
			out = append(out, e.OriginalKey())
		} else {
			out = append(out, e.Key())
		}
	}
	return out
}

// KeyValues returns the first column value of each key.
func KeyValues(keys []*Key) []any {
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Value())
	}
	return out
}

// MapToKey indexes entities by primary key. Later entities replace earlier
// ones with an equal key.
func MapToKey(entities []*Entity) map[string]*Entity {
	out := make(map[string]*Entity, len(entities))
	for _, e := range entities {
		out[e.cachedKey().mapKey()] = e
	}
	return out
}

// Values returns the value of p in each entity, skipping nil values unless
// includeNull is set.
func Values(p Property, entities []*Entity, includeNull bool) []any {
	out := make([]any, 0, len(entities))
	for _, e := range entities {
		v := e.Get(p)
		if v == nil && !includeNull {
			continue
		}
		out = append(out, v)
	}
	return out
}

// DistinctValues returns the non-nil values of p without duplicates, in
// order of first appearance.
func DistinctValues(p Property, entities []*Entity) []any {
	var out []any
	for _, v := range Values(p, entities, false) {
		if !slices.ContainsFunc(out, func(seen any) bool { return valueEquals(seen, v) }) {
			out = append(out, v)
		}
	}
	return out
}

// ValueGroup is the set of entities sharing one value.
type ValueGroup struct {
	Value    any
	Entities []*Entity
}

// GroupByValue groups entities by the value of p, in order of first
// appearance. Nil values form their own group.
func GroupByValue(p Property, entities []*Entity) []ValueGroup {
	var groups []ValueGroup
	for _, e := range entities {
		v := e.Get(p)
		i := slices.IndexFunc(groups, func(g ValueGroup) bool { return valueEquals(g.Value, v) })
		if i < 0 {
			groups = append(groups, ValueGroup{Value: v})
			i = len(groups) - 1
		}
		groups[i].Entities = append(groups[i].Entities, e)
	}
	return groups
}

// GroupByEntityID groups entities by entity type.
func GroupByEntityID(entities []*Entity) map[string][]*Entity {
	out := make(map[string][]*Entity)
	for _, e := range entities {
		out[e.EntityID()] = append(out[e.EntityID()], e)
	}
	return out
}

// GroupKeysByEntityID groups keys by entity type.
func GroupKeysByEntityID(keys []*Key) map[string][]*Key {
	out := make(map[string][]*Key)
	for _, k := range keys {
		out[k.EntityID()] = append(out[k.EntityID()], k)
	}
	return out
}

// CopyAll returns deep copies of entities.
func CopyAll(entities []*Entity) []*Entity {
	out := make([]*Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Copy())
	}
	return out
}

// PutAll sets p to value in each entity and returns the previous values,
// in order. It stops at the first failure.
func PutAll(p Property, value any, entities []*Entity) ([]any, error) {
	previous := make([]any, 0, len(entities))
	for _, e := range entities {
		previous = append(previous, e.Get(p))
		if err := e.Put(p, value); err != nil {
			return previous, err
		}
	}
	return previous, nil
}

// Sort orders entities in place using Entity.Compare.
func Sort(entities []*Entity) {
	slices.SortStableFunc(entities, func(a, b *Entity) int { return a.Compare(b) })
}
