package domain

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Registry maps domain ids to domains. Codecs use it to resolve the
// definitions of decoded entities.
type Registry struct {
	mu      sync.RWMutex
	domains map[string]*Domain
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{domains: make(map[string]*Domain)}
}

// Register adds d. Registering a second domain with the same id fails.
func (r *Registry) Register(d *Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.domains[d.id]; ok {
		return fmt.Errorf("%w: domain %s already registered", ErrSchemaDefinition, d.id)
	}
	r.domains[d.id] = d
	return nil
}

// Domain returns the domain with the given id.
func (r *Registry) Domain(id string) (*Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.domains[id]
	if !ok {
		return nil, &LookupError{Err: ErrUndefinedEntity, DomainID: id}
	}
	return d, nil
}

// Definition resolves an entity definition by domain and entity id.
func (r *Registry) Definition(domainID, entityID string) (*Definition, error) {
	d, err := r.Domain(domainID)
	if err != nil {
		return nil, err
	}
	return d.Definition(entityID)
}

// DomainIDs returns the registered domain ids, sorted.
func (r *Registry) DomainIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.domains))
}

// Domain holds the entity definitions of one application domain and
// manufactures entities and keys. Definitions are added during startup;
// after Seal the domain is read only.
type Domain struct {
	id                string
	strictForeignKeys bool
	logger            *zap.Logger

	mu          sync.RWMutex
	sealed      bool
	definitions map[string]*Definition
	order       []string
	referencing map[string][]*ForeignKeyProperty
}

// DomainOption configures a Domain.
type DomainOption func(d *Domain)

// StrictForeignKeys sets whether foreign keys must reference entities that
// are already defined. It is on by default.
func StrictForeignKeys(strict bool) DomainOption {
	return func(d *Domain) { d.strictForeignKeys = strict }
}

// WithLogger sets the logger definition events are written to.
func WithLogger(logger *zap.Logger) DomainOption {
	return func(d *Domain) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDomain returns an empty domain.
func NewDomain(id string, opts ...DomainOption) *Domain {
	d := &Domain{
		id:                id,
		strictForeignKeys: true,
		logger:            zap.NewNop(),
		definitions:       make(map[string]*Definition),
		referencing:       make(map[string][]*ForeignKeyProperty),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("domain", id))
	return d
}

// ID returns the domain id.
func (d *Domain) ID() string { return d.id }

// Define builds the definition of entityID from properties and adds it to
// the domain. Properties belong to one definition only.
func (d *Domain) Define(entityID string, properties []Property, opts ...DefinitionOption) (*Definition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sealed {
		return nil, fmt.Errorf("defining %s: %w", entityID, ErrDomainSealed)
	}
	if _, ok := d.definitions[entityID]; ok {
		return nil, schemaErrorf(entityID, "", "entity already defined in domain %s", d.id)
	}
	def, err := newDefinition(d, entityID, properties)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(def); err != nil {
			return nil, err
		}
	}
	if d.strictForeignKeys {
		err := def.checkForeignKeys(func(id string) (*Definition, bool) {
			ref, ok := d.definitions[id]
			return ref, ok
		})
		if err != nil {
			return nil, err
		}
	}
	d.definitions[entityID] = def
	d.order = append(d.order, entityID)
	for _, fk := range def.foreignKeys {
		d.referencing[fk.referencedEntityID] = append(d.referencing[fk.referencedEntityID], fk)
	}
	d.logger.Debug("entity defined",
		zap.String("entity", entityID),
		zap.String("table", def.tableName),
		zap.Int("properties", len(def.properties)),
		zap.Int("foreign_keys", len(def.foreignKeys)),
		zap.String("key_generator", string(def.keyGenerator.Type())),
	)
	return def, nil
}

// Seal ends the definition phase. When foreign keys are not strict, Seal
// verifies them now that every entity is defined.
func (d *Domain) Seal() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sealed {
		return nil
	}
	if !d.strictForeignKeys {
		for _, id := range d.order {
			err := d.definitions[id].checkForeignKeys(func(id string) (*Definition, bool) {
				ref, ok := d.definitions[id]
				return ref, ok
			})
			if err != nil {
				return err
			}
		}
	}
	d.sealed = true
	d.logger.Debug("domain sealed", zap.Int("entities", len(d.order)))
	return nil
}

// Sealed reports whether Seal has been called.
func (d *Domain) Sealed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sealed
}

// Definition returns the definition of entityID.
func (d *Domain) Definition(entityID string) (*Definition, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	def, ok := d.definitions[entityID]
	if !ok {
		return nil, &LookupError{Err: ErrUndefinedEntity, DomainID: d.id, EntityID: entityID}
	}
	return def, nil
}

// Definitions returns all definitions in the order they were defined.
func (d *Domain) Definitions() []*Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Definition, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.definitions[id])
	}
	return out
}

// Property returns a property of entityID.
func (d *Domain) Property(entityID, propertyID string) (Property, error) {
	def, err := d.Definition(entityID)
	if err != nil {
		return nil, err
	}
	return def.Property(propertyID)
}

// ForeignKey returns a foreign key of entityID.
func (d *Domain) ForeignKey(entityID, fkID string) (*ForeignKeyProperty, error) {
	def, err := d.Definition(entityID)
	if err != nil {
		return nil, err
	}
	return def.ForeignKey(fkID)
}

// ReferencingForeignKeys returns the foreign keys, of any entity type, that
// reference entityID.
func (d *Domain) ReferencingForeignKeys(entityID string) []*ForeignKeyProperty {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.referencing[entityID])
}

// Entity returns a new entity of type entityID with no values.
func (d *Domain) Entity(entityID string) (*Entity, error) {
	def, err := d.Definition(entityID)
	if err != nil {
		return nil, err
	}
	return newEntity(def), nil
}

// DefaultEntity returns a new entity of type entityID initialized with the
// default values of its properties.
func (d *Domain) DefaultEntity(entityID string) (*Entity, error) {
	e, err := d.Entity(entityID)
	if err != nil {
		return nil, err
	}
	for _, p := range e.def.properties {
		if isTransient(p) && p.Kind() != KindTransient {
			continue
		}
		if v := p.DefaultValue(); v != nil {
			if err := e.put(p, v); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}

// EntityFromKey returns a new entity holding only the values of k.
func (d *Domain) EntityFromKey(k *Key) *Entity {
	return entityFromKey(k.Copy())
}

// EntityFromValues returns an entity with the given current values and,
// for modified properties, original values. Values are type checked.
func (d *Domain) EntityFromValues(entityID string, values, originals map[string]any) (*Entity, error) {
	e, err := d.Entity(entityID)
	if err != nil {
		return nil, err
	}
	if err := e.load(values, originals); err != nil {
		return nil, err
	}
	return e, nil
}

// load sets values and originals without change tracking.
func (e *Entity) load(values, originals map[string]any) error {
	for id, value := range values {
		p, err := e.def.Property(id)
		if err != nil {
			return err
		}
		if isTransient(p) && p.Kind() != KindTransient {
			continue
		}
		v, err := e.checkType(p, value)
		if err != nil {
			return err
		}
		e.values[id] = v
	}
	for id, value := range originals {
		p, err := e.def.Property(id)
		if err != nil {
			return err
		}
		v, err := e.checkType(p, value)
		if err != nil {
			return err
		}
		e.originals[id] = v
	}
	return nil
}

// Key returns a key of a single column entity type.
func (d *Domain) Key(entityID string, value any) (*Key, error) {
	def, err := d.Definition(entityID)
	if err != nil {
		return nil, err
	}
	if len(def.primaryKey) != 1 {
		return nil, fmt.Errorf("%w: %s has a composite primary key", ErrTypeMismatch, entityID)
	}
	k := newKey(def)
	if err := k.Put(def.primaryKey[0], value); err != nil {
		return nil, err
	}
	return k, nil
}

// CompositeKey returns a key built from primary key column values by id.
func (d *Domain) CompositeKey(entityID string, values map[string]any) (*Key, error) {
	def, err := d.Definition(entityID)
	if err != nil {
		return nil, err
	}
	k := newKey(def)
	for id, v := range values {
		c, err := def.Column(id)
		if err != nil {
			return nil, err
		}
		if err := k.Put(c, v); err != nil {
			return nil, err
		}
	}
	return k, nil
}
