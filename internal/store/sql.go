package store

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// binder collects statement arguments and returns their placeholders.
type binder struct {
	dialect Dialect
	args    []any
}

func (s *Store) binder() *binder { return &binder{dialect: s.dialect} }

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

// bindValue converts a logical value to the value handed to the driver.
func bindValue(c domain.Column, v any) any {
	v = c.ToColumnValue(v)
	if r, ok := v.(rune); ok && c.ColumnType() == domain.TypeCharacter {
		return string(r)
	}
	return v
}

func columnExpression(c domain.Column) string {
	if sq, ok := c.(*domain.SubqueryProperty); ok {
		return "(" + sq.Query() + ") AS " + c.ColumnName()
	}
	return c.ColumnName()
}

func fromClause(def *domain.Definition) string {
	if q := def.SelectQueryText(); q != "" {
		return "(" + q + ") AS q"
	}
	return def.SelectTableName()
}

func selectSQL(def *domain.Definition, where string) string {
	cols := def.SelectColumns()
	exprs := make([]string, len(cols))
	for i, c := range cols {
		exprs[i] = columnExpression(c)
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(exprs, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(fromClause(def))
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if g := def.GroupByClause(); g != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(g)
	}
	if h := def.HavingClause(); h != "" {
		sb.WriteString(" HAVING ")
		sb.WriteString(h)
	}
	if o := def.OrderByClause(); o != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(o)
	}
	return sb.String()
}

func insertSQL(def *domain.Definition, cols []domain.Column, bind func(domain.Column) string) string {
	if len(cols) == 0 {
		return "INSERT INTO " + def.TableName() + " DEFAULT VALUES"
	}
	names := make([]string, len(cols))
	values := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.ColumnName()
		values[i] = bind(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", def.TableName(), strings.Join(names, ", "), strings.Join(values, ", "))
}

func updateSQL(def *domain.Definition, cols []domain.Column, bind func(domain.Column) string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c.ColumnName() + " = " + bind(c)
	}
	return "UPDATE " + def.TableName() + " SET " + strings.Join(sets, ", ")
}

// keyCondition matches the key columns of k. Null key values match IS NULL.
func keyCondition(k *domain.Key, b *binder) string {
	cols := k.Columns()
	conds := make([]string, len(cols))
	for i, c := range cols {
		v := k.Get(c)
		if v == nil {
			conds[i] = c.ColumnName() + " IS NULL"
			continue
		}
		conds[i] = c.ColumnName() + " = " + b.bind(bindValue(c, v))
	}
	return strings.Join(conds, " AND ")
}

func joinOr(conds []string) string {
	return strings.Join(conds, " OR ")
}

// groupKeys groups keys by entity type in order of first appearance.
func groupKeys(keys []*domain.Key) [][]*domain.Key {
	index := make(map[string]int)
	var groups [][]*domain.Key
	for _, k := range keys {
		i, ok := index[k.EntityID()]
		if !ok {
			i = len(groups)
			index[k.EntityID()] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], k)
	}
	return groups
}

func distinctKeys(keys []*domain.Key) []*domain.Key {
	seen := make(map[string]bool, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		s := k.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, k)
	}
	return out
}

// valuesKey renders the values of cols into a map key. Numeric values of
// different integer types render alike.
func valuesKey(cols []domain.Column, get func(domain.Property) any) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%v", get(c))
	}
	return strings.Join(parts, "\x00")
}
