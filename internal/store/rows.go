package store

import (
	"database/sql"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// scannedRow serves one scanned result row to Definition.PackRow.
type scannedRow []any

func (r scannedRow) ColumnValue(index int, c domain.Column) (any, error) {
	return c.FromColumnValue(r[index])
}

func packRows(def *domain.Definition, rows *sql.Rows) ([]*domain.Entity, error) {
	n := len(def.SelectColumns())
	var out []*domain.Entity
	for rows.Next() {
		row := make(scannedRow, n)
		dest := make([]any, n)
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		e, err := def.PackRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
