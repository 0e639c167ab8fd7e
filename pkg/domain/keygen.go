package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// KeyGeneratorType names a primary key generation strategy.
type KeyGeneratorType string

// Key generator types.
const (
	// KeyGenNone leaves key values to the caller.
	KeyGenNone KeyGeneratorType = "none"
	// KeyGenIncrement selects max(column)+1 before insert.
	KeyGenIncrement KeyGeneratorType = "increment"
	// KeyGenSequence selects the next sequence value before insert.
	KeyGenSequence KeyGeneratorType = "sequence"
	// KeyGenQuery runs a caller supplied query before insert.
	KeyGenQuery KeyGeneratorType = "query"
	// KeyGenAutomatic reads the database generated value after insert.
	KeyGenAutomatic KeyGeneratorType = "automatic"
	// KeyGenUUID sets a UUID v7 string key before insert.
	KeyGenUUID KeyGeneratorType = "uuid"
)

// QueryExecutor runs key generation queries. It is implemented by the
// storage layer.
type QueryExecutor interface {
	// QueryInt64 runs query and returns the single integer it selects.
	QueryInt64(query string) (int64, error)
	// SequenceQuery returns the query selecting the next value of sequence.
	SequenceQuery(sequence string) string
	// AutoIncrementQuery returns the query selecting the value just
	// generated for source, a table or identity column name.
	AutoIncrementQuery(source string) string
}

// KeyGenerator populates the primary key of a new entity around insert.
type KeyGenerator interface {
	// Type returns the generation strategy.
	Type() KeyGeneratorType
	// IsManual reports whether the caller supplies key values.
	IsManual() bool
	// IsAutoIncrement reports whether the database generates the value.
	IsAutoIncrement() bool
	// BeforeInsert sets the key of e when the strategy selects it up front.
	// A key value already present is kept.
	BeforeInsert(e *Entity, q QueryExecutor) error
	// AfterInsert reads back a key the database generated for e.
	AfterInsert(e *Entity, q QueryExecutor) error
}

type keyGenerator struct {
	typ    KeyGeneratorType
	query  func(q QueryExecutor) string
	before bool
}

// ManualKeyGenerator leaves key values to the caller.
func ManualKeyGenerator() KeyGenerator {
	return &keyGenerator{typ: KeyGenNone}
}

// IncrementKeyGenerator selects max(column)+1 from table before insert.
func IncrementKeyGenerator(table, column string) KeyGenerator {
	query := fmt.Sprintf("select coalesce(max(%s), 0) + 1 from %s", column, table)
	return &keyGenerator{typ: KeyGenIncrement, before: true, query: func(QueryExecutor) string { return query }}
}

// SequenceKeyGenerator selects the next value of sequence before insert.
func SequenceKeyGenerator(sequence string) KeyGenerator {
	return &keyGenerator{typ: KeyGenSequence, before: true, query: func(q QueryExecutor) string { return q.SequenceQuery(sequence) }}
}

// QueryKeyGenerator runs query before insert to select the next key value.
func QueryKeyGenerator(query string) KeyGenerator {
	return &keyGenerator{typ: KeyGenQuery, before: true, query: func(QueryExecutor) string { return query }}
}

// AutomaticKeyGenerator reads the value the database generated for source
// after insert.
func AutomaticKeyGenerator(source string) KeyGenerator {
	return &keyGenerator{typ: KeyGenAutomatic, query: func(q QueryExecutor) string { return q.AutoIncrementQuery(source) }}
}

func (g *keyGenerator) Type() KeyGeneratorType { return g.typ }
func (g *keyGenerator) IsManual() bool         { return g.typ == KeyGenNone }
func (g *keyGenerator) IsAutoIncrement() bool  { return g.typ == KeyGenAutomatic }

func (g *keyGenerator) BeforeInsert(e *Entity, q QueryExecutor) error {
	if g.query == nil || !g.before {
		return nil
	}
	pk := e.def.primaryKey[0]
	if e.values[pk.ID()] != nil {
		return nil
	}
	return g.queryAndSet(e, pk, q)
}

func (g *keyGenerator) AfterInsert(e *Entity, q QueryExecutor) error {
	if g.query == nil || g.before {
		return nil
	}
	return g.queryAndSet(e, e.def.primaryKey[0], q)
}

func (g *keyGenerator) queryAndSet(e *Entity, pk Column, q QueryExecutor) error {
	t := pk.ColumnType()
	if t != TypeInteger && t != TypeLong {
		return valueError(ErrUnsupportedKeyColumnType, pk, nil, "%s key generation requires an integer or long key, not %s", g.typ, t)
	}
	v, err := q.QueryInt64(g.query(q))
	if err != nil {
		return fmt.Errorf("generating %s key for %s: %w", g.typ, e.def.entityID, err)
	}
	return e.Put(pk, v)
}

// UUIDKeyGenerator sets a null string primary key to a UUID v7 before insert.
func UUIDKeyGenerator() KeyGenerator {
	return uuidKeyGenerator{}
}

type uuidKeyGenerator struct{}

func (uuidKeyGenerator) Type() KeyGeneratorType { return KeyGenUUID }
func (uuidKeyGenerator) IsManual() bool         { return false }
func (uuidKeyGenerator) IsAutoIncrement() bool  { return false }

func (uuidKeyGenerator) BeforeInsert(e *Entity, _ QueryExecutor) error {
	pk := e.def.primaryKey[0]
	if pk.Type() != TypeString {
		return valueError(ErrUnsupportedKeyColumnType, pk, nil, "uuid key generation requires a string key, not %s", pk.Type())
	}
	if e.values[pk.ID()] != nil {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating uuid key for %s: %w", e.def.entityID, err)
	}
	return e.Put(pk, id.String())
}

func (uuidKeyGenerator) AfterInsert(*Entity, QueryExecutor) error { return nil }
