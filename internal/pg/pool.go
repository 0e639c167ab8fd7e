package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesh-intelligence/domainkit/internal/store"
	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// NewPool creates a pgx connection pool for url and pings it.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// Executor runs key generation queries on a pgx pool, outside any insert.
type Executor struct {
	ctx  context.Context
	pool *pgxpool.Pool
}

var _ domain.QueryExecutor = (*Executor)(nil)

// NewExecutor returns an executor running queries on pool with ctx.
func NewExecutor(ctx context.Context, pool *pgxpool.Pool) *Executor {
	return &Executor{ctx: ctx, pool: pool}
}

// QueryInt64 implements domain.QueryExecutor.
func (x *Executor) QueryInt64(query string) (int64, error) {
	var n *int64
	if err := x.pool.QueryRow(x.ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	if n == nil {
		return 0, fmt.Errorf("%s selected null", query)
	}
	return *n, nil
}

// SequenceQuery implements domain.QueryExecutor.
func (x *Executor) SequenceQuery(sequence string) string {
	return store.Postgres.SequenceQuery(sequence)
}

// AutoIncrementQuery implements domain.QueryExecutor.
func (x *Executor) AutoIncrementQuery(source string) string {
	return store.Postgres.AutoIncrementQuery(source)
}

// ReserveKeys runs the before-insert key generation of each entity on pool,
// so callers know the keys before the entities are inserted. Entities whose
// generator runs after insert are left alone.
func ReserveKeys(ctx context.Context, pool *pgxpool.Pool, entities ...*domain.Entity) error {
	x := NewExecutor(ctx, pool)
	for _, e := range entities {
		if err := e.Definition().KeyGenerator().BeforeInsert(e, x); err != nil {
			return err
		}
	}
	return nil
}
