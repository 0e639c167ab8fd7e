package domain

import "fmt"

// Accessor maps one property of an entity to a field of a T.
type Accessor[T any] struct {
	propertyID string
	foreignKey bool
	toEntity   func(bean *T, e *Entity, p Property) error
	toBean     func(bean *T, e *Entity, p Property) error
}

// Field maps a property whose values are V. V must be the Go type of the
// property's logical type; a nil value sets the zero V.
func Field[T, V any](propertyID string, get func(*T) V, set func(*T, V)) Accessor[T] {
	return Accessor[T]{
		propertyID: propertyID,
		toEntity: func(bean *T, e *Entity, p Property) error {
			return e.Put(p, get(bean))
		},
		toBean: func(bean *T, e *Entity, p Property) error {
			v := e.Get(p)
			if v == nil {
				var zero V
				set(bean, zero)
				return nil
			}
			x, ok := v.(V)
			if !ok {
				return valueError(ErrTypeMismatch, p, v, "%T can not be assigned to %T", v, x)
			}
			set(bean, x)
			return nil
		},
	}
}

// OptionalField maps a nullable property to a pointer field.
func OptionalField[T, V any](propertyID string, get func(*T) *V, set func(*T, *V)) Accessor[T] {
	return Accessor[T]{
		propertyID: propertyID,
		toEntity: func(bean *T, e *Entity, p Property) error {
			ptr := get(bean)
			if ptr == nil {
				return e.Put(p, nil)
			}
			return e.Put(p, *ptr)
		},
		toBean: func(bean *T, e *Entity, p Property) error {
			v := e.Get(p)
			if v == nil {
				set(bean, nil)
				return nil
			}
			x, ok := v.(V)
			if !ok {
				return valueError(ErrTypeMismatch, p, v, "%T can not be assigned to %T", v, x)
			}
			set(bean, &x)
			return nil
		},
	}
}

// Nested maps a foreign key to a pointer to another bean type, converted
// with mapper.
func Nested[T, R any](foreignKeyID string, mapper *BeanMapper[R], get func(*T) *R, set func(*T, *R)) Accessor[T] {
	return Accessor[T]{
		propertyID: foreignKeyID,
		foreignKey: true,
		toEntity: func(bean *T, e *Entity, p Property) error {
			r := get(bean)
			if r == nil {
				return e.Put(p, nil)
			}
			ref, err := mapper.ToEntity(r)
			if err != nil {
				return err
			}
			return e.Put(p, ref)
		},
		toBean: func(bean *T, e *Entity, p Property) error {
			ref, _ := e.Get(p).(*Entity)
			if ref == nil {
				set(bean, nil)
				return nil
			}
			r, err := mapper.ToBean(ref)
			if err != nil {
				return err
			}
			set(bean, r)
			return nil
		},
	}
}

// BeanMapper converts between entities of one type and values of T using
// an explicit accessor table.
type BeanMapper[T any] struct {
	def        *Definition
	accessors  []Accessor[T]
	properties []Property
}

// NewBeanMapper returns a mapper for entityID. Every accessor must name a
// property of the entity; nested accessors must name a foreign key.
func NewBeanMapper[T any](d *Domain, entityID string, accessors ...Accessor[T]) (*BeanMapper[T], error) {
	def, err := d.Definition(entityID)
	if err != nil {
		return nil, err
	}
	m := &BeanMapper[T]{def: def, accessors: accessors}
	for _, a := range accessors {
		var p Property
		if a.foreignKey {
			p, err = def.ForeignKey(a.propertyID)
		} else {
			p, err = def.Property(a.propertyID)
		}
		if err != nil {
			return nil, err
		}
		m.properties = append(m.properties, p)
	}
	return m, nil
}

// ToEntity converts bean to a new entity. The values are initial, so the
// entity is not modified.
func (m *BeanMapper[T]) ToEntity(bean *T) (*Entity, error) {
	e := newEntity(m.def)
	for i, a := range m.accessors {
		if err := a.toEntity(bean, e, m.properties[i]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ToBean converts e to a new T.
func (m *BeanMapper[T]) ToBean(e *Entity) (*T, error) {
	if e.def != m.def {
		return nil, fmt.Errorf("%w: expected %s entity, got %s", ErrTypeMismatch, m.def.entityID, e.EntityID())
	}
	bean := new(T)
	for i, a := range m.accessors {
		if err := a.toBean(bean, e, m.properties[i]); err != nil {
			return nil, err
		}
	}
	return bean, nil
}

// ToEntities converts beans in order.
func (m *BeanMapper[T]) ToEntities(beans []*T) ([]*Entity, error) {
	out := make([]*Entity, 0, len(beans))
	for _, b := range beans {
		e, err := m.ToEntity(b)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ToBeans converts entities in order.
func (m *BeanMapper[T]) ToBeans(entities []*Entity) ([]*T, error) {
	out := make([]*T, 0, len(entities))
	for _, e := range entities {
		b, err := m.ToBean(e)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
