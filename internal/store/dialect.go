package store

import (
	"fmt"
	"strconv"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th argument, 1-based.
	Placeholder(n int) string
	// ColumnType returns the DDL type storing values of t.
	ColumnType(t domain.ValueType) string
	// IdentityColumn returns the DDL of a database generated primary key.
	IdentityColumn(t domain.ValueType) string
	// SequenceQuery returns the query selecting the next value of sequence,
	// or "" when the database has no sequences.
	SequenceQuery(sequence string) string
	// AutoIncrementQuery returns the query selecting the last generated
	// value for source.
	AutoIncrementQuery(source string) string
}

// SQLite is the dialect of modernc.org/sqlite.
var SQLite Dialect = sqliteDialect{}

// Postgres is the dialect of PostgreSQL through pgx.
var Postgres Dialect = postgresDialect{}

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "sqlite":
		return SQLite, nil
	case "postgres", "pg":
		return Postgres, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", name)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string          { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) ColumnType(t domain.ValueType) string {
	switch t {
	case domain.TypeInteger, domain.TypeLong, domain.TypeBoolean:
		return "INTEGER"
	case domain.TypeDouble:
		return "REAL"
	case domain.TypeDate:
		return "DATE"
	case domain.TypeTimestamp:
		return "TIMESTAMP"
	case domain.TypeBlob:
		return "BLOB"
	}
	return "TEXT"
}

func (sqliteDialect) IdentityColumn(domain.ValueType) string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (sqliteDialect) SequenceQuery(string) string { return "" }

func (sqliteDialect) AutoIncrementQuery(string) string { return "select last_insert_rowid()" }

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) ColumnType(t domain.ValueType) string {
	switch t {
	case domain.TypeInteger:
		return "INTEGER"
	case domain.TypeLong:
		return "BIGINT"
	case domain.TypeDouble:
		return "DOUBLE PRECISION"
	case domain.TypeBoolean:
		return "BOOLEAN"
	case domain.TypeCharacter:
		return "CHAR(1)"
	case domain.TypeDate:
		return "DATE"
	case domain.TypeTimestamp:
		return "TIMESTAMPTZ"
	case domain.TypeTime:
		return "TIME"
	case domain.TypeBlob:
		return "BYTEA"
	}
	return "TEXT"
}

func (postgresDialect) IdentityColumn(t domain.ValueType) string {
	if t == domain.TypeInteger {
		return "INTEGER GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	}
	return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
}

func (postgresDialect) SequenceQuery(sequence string) string {
	return fmt.Sprintf("select nextval('%s')", sequence)
}

func (postgresDialect) AutoIncrementQuery(source string) string {
	return fmt.Sprintf("select currval('%s')", source)
}
