package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// executor runs key generation queries inside the transaction of an insert.
type executor struct {
	ctx   context.Context
	q     querier
	store *Store
}

var _ domain.QueryExecutor = executor{}

func (s *Store) executor(ctx context.Context, q querier) executor {
	return executor{ctx: ctx, q: q, store: s}
}

func (x executor) QueryInt64(query string) (int64, error) {
	if query == "" {
		return 0, fmt.Errorf("%s: %w", x.store.dialect.Name(), ErrUnsupportedQuery)
	}
	x.store.log(query, nil)
	var n sql.NullInt64
	if err := x.q.QueryRowContext(x.ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	if !n.Valid {
		return 0, fmt.Errorf("%s selected null", query)
	}
	return n.Int64, nil
}

func (x executor) SequenceQuery(sequence string) string {
	return x.store.dialect.SequenceQuery(sequence)
}

func (x executor) AutoIncrementQuery(source string) string {
	return x.store.dialect.AutoIncrementQuery(source)
}
