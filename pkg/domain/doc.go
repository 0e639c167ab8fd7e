// Package domain defines properties, entity definitions, entities and keys:
// a small type system for relational rows that is declared once per entity
// type and shared by every record of that type.
//
// A Domain is built at startup by calling Define for each entity type and
// is then sealed. Entities and Keys manufactured by the domain consult their
// Definition for type checking, foreign key propagation and derived values.
// Entities and Keys are not safe for concurrent mutation; definitions and
// properties are read-only once the domain is sealed.
package domain
