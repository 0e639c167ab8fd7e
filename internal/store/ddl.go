package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// CreateSchema creates a table for every definition that is not backed by
// a select query. Existing tables are left alone. Foreign key constraints
// are declared towards tables created earlier in definition order and
// towards the table itself.
func (s *Store) CreateSchema(ctx context.Context) error {
	stmts, err := SchemaSQL(s.dialect, s.domain)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(q querier) error {
		for _, stmt := range stmts {
			if _, err := s.exec(ctx, q, stmt, nil); err != nil {
				return fmt.Errorf("creating schema: %w", err)
			}
		}
		return nil
	})
}

// SchemaSQL returns the CREATE TABLE statements for the definitions of d.
func SchemaSQL(dialect Dialect, d *domain.Domain) ([]string, error) {
	created := make(map[string]bool)
	var out []string
	for _, def := range d.Definitions() {
		if def.SelectQueryText() != "" {
			continue
		}
		created[def.EntityID()] = true
		stmt, err := createTableSQL(dialect, def, created)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

func createTableSQL(dialect Dialect, def *domain.Definition, created map[string]bool) (string, error) {
	pk := def.PrimaryKey()
	identity := len(pk) == 1 && def.KeyGenerator().IsAutoIncrement()

	var lines []string
	for _, c := range def.Columns() {
		switch c.Kind() {
		case domain.KindMirror, domain.KindSubquery:
			continue
		}
		if identity && c.IsPrimaryKey() {
			lines = append(lines, c.ColumnName()+" "+dialect.IdentityColumn(c.ColumnType()))
			continue
		}
		line := c.ColumnName() + " " + dialect.ColumnType(c.ColumnType())
		if !c.Nullable() {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}
	if !identity {
		lines = append(lines, "PRIMARY KEY ("+columnNames(pk)+")")
	}
	for _, fk := range def.ForeignKeys() {
		if !created[fk.ReferencedEntityID()] {
			continue
		}
		refDef, err := def.Domain().Definition(fk.ReferencedEntityID())
		if err != nil {
			return "", err
		}
		refCols, err := def.ReferencedColumns(fk)
		if err != nil {
			return "", err
		}
		if !slices.Equal(refCols, refDef.PrimaryKey()) {
			continue
		}
		lines = append(lines, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			columnNames(fk.References()), refDef.TableName(), columnNames(refCols)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", def.TableName(), strings.Join(lines, ",\n  ")), nil
}

func columnNames(cols []domain.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.ColumnName()
	}
	return strings.Join(names, ", ")
}
