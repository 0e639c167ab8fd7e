// Package store persists domain entities in a SQL database through
// database/sql. Statements are derived from entity definitions and bound
// with the placeholders of a Dialect.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store reads and writes the entities of one domain.
type Store struct {
	db      *sql.DB
	dialect Dialect
	domain  *domain.Domain
	logger  *zap.Logger
	user    string
	now     func() time.Time
	static  *gocache.Cache
}

// Option configures a Store.
type Option func(s *Store)

// WithLogger sets the logger statements are written to at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithUser sets the name stamped into audit user columns.
func WithUser(user string) Option {
	return func(s *Store) { s.user = user }
}

// WithClock replaces time.Now for audit time columns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithStaticCache caches SelectAll results of static data entity types for
// expiration. Writes through the store invalidate the cached type.
func WithStaticCache(expiration time.Duration) Option {
	return func(s *Store) {
		s.static = gocache.New(expiration, 2*expiration)
	}
}

// New returns a store over db for the entities of d.
func New(db *sql.DB, dialect Dialect, d *domain.Domain, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		domain:  d,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Domain returns the domain whose entities the store persists.
func (s *Store) Domain() *domain.Domain { return s.domain }

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() Dialect { return s.dialect }

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Insert inserts entities in one transaction and returns their keys.
// Generated key values and audit columns are written back into the
// entities, which are unmodified afterwards.
func (s *Store) Insert(ctx context.Context, entities ...*domain.Entity) ([]*domain.Key, error) {
	keys := make([]*domain.Key, 0, len(entities))
	err := s.inTx(ctx, func(q querier) error {
		for _, e := range entities {
			if err := s.insert(ctx, q, e); err != nil {
				return err
			}
			keys = append(keys, e.Key().Copy())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(entities)
	return keys, nil
}

func (s *Store) insert(ctx context.Context, q querier, e *domain.Entity) error {
	def := e.Definition()
	if def.IsReadOnly() {
		return fmt.Errorf("inserting %s: %w", def.EntityID(), ErrReadOnlyEntity)
	}
	if _, err := s.stamp(e, domain.AuditInsert); err != nil {
		return err
	}
	x := s.executor(ctx, q)
	gen := def.KeyGenerator()
	if err := gen.BeforeInsert(e, x); err != nil {
		return err
	}
	if err := def.Validator().Validate(e); err != nil {
		return err
	}

	var cols []domain.Column
	for _, c := range def.WritableColumns(false) {
		if !e.Contains(c) {
			continue
		}
		if c.IsPrimaryKey() && gen.IsAutoIncrement() && e.IsValueNull(c) {
			continue
		}
		cols = append(cols, c)
	}
	b := s.binder()
	stmt := insertSQL(def, cols, func(c domain.Column) string { return b.bind(bindValue(c, e.Get(c))) })
	if _, err := s.exec(ctx, q, stmt, b.args); err != nil {
		return fmt.Errorf("inserting %s: %w", def.EntityID(), err)
	}
	if err := gen.AfterInsert(e, x); err != nil {
		return err
	}
	e.SaveAll()
	return nil
}

// Update writes the modified columns of entities in one transaction. Rows
// are located by the original key, so updatable key columns may change.
// Unmodified entities are skipped.
func (s *Store) Update(ctx context.Context, entities ...*domain.Entity) error {
	err := s.inTx(ctx, func(q querier) error {
		for _, e := range entities {
			if err := s.update(ctx, q, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(entities)
	return nil
}

func (s *Store) update(ctx context.Context, q querier, e *domain.Entity) error {
	def := e.Definition()
	if def.IsReadOnly() {
		return fmt.Errorf("updating %s: %w", def.EntityID(), ErrReadOnlyEntity)
	}
	if !e.IsModified() {
		return nil
	}
	stamped, err := s.stamp(e, domain.AuditUpdate)
	if err != nil {
		return err
	}
	if err := def.Validator().Validate(e); err != nil {
		return err
	}

	var cols []domain.Column
	for _, c := range def.WritableColumns(true) {
		if e.IsPropertyModified(c) || slices.Contains(stamped, c) {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		e.SaveAll()
		return nil
	}
	b := s.binder()
	stmt := updateSQL(def, cols, func(c domain.Column) string { return b.bind(bindValue(c, e.Get(c))) })
	stmt += " WHERE " + keyCondition(e.OriginalKey(), b)
	res, err := s.exec(ctx, q, stmt, b.args)
	if err != nil {
		return fmt.Errorf("updating %s: %w", def.EntityID(), err)
	}
	if err := checkAffected(res, e.OriginalKey()); err != nil {
		return err
	}
	e.SaveAll()
	return nil
}

// Delete removes the rows identified by keys in one transaction.
func (s *Store) Delete(ctx context.Context, keys ...*domain.Key) error {
	err := s.inTx(ctx, func(q querier) error {
		for _, k := range keys {
			def := k.Definition()
			if def.IsReadOnly() {
				return fmt.Errorf("deleting %s: %w", def.EntityID(), ErrReadOnlyEntity)
			}
			b := s.binder()
			stmt := "DELETE FROM " + def.TableName() + " WHERE " + keyCondition(k, b)
			res, err := s.exec(ctx, q, stmt, b.args)
			if err != nil {
				return fmt.Errorf("deleting %s: %w", k, err)
			}
			if err := checkAffected(res, k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.static != nil {
		for entityID := range domain.GroupKeysByEntityID(keys) {
			s.static.Delete(entityID)
		}
	}
	return nil
}

// Select returns the entity identified by k with its foreign keys fetched
// to their fetch depth.
func (s *Store) Select(ctx context.Context, k *domain.Key) (*domain.Entity, error) {
	b := s.binder()
	entities, err := s.query(ctx, s.db, k.Definition(), keyCondition(k, b), b.args)
	if err != nil {
		return nil, err
	}
	switch len(entities) {
	case 0:
		return nil, fmt.Errorf("selecting %s: %w", k, ErrNotFound)
	case 1:
	default:
		return nil, fmt.Errorf("selecting %s: %w", k, ErrMultipleRows)
	}
	if err := s.fetchReferences(ctx, s.db, entities, 0); err != nil {
		return nil, err
	}
	return entities[0], nil
}

// SelectByKeys returns the entities identified by keys, which may span
// entity types. Keys without a row are skipped.
func (s *Store) SelectByKeys(ctx context.Context, keys []*domain.Key) ([]*domain.Entity, error) {
	return s.selectByKeys(ctx, s.db, keys, 0)
}

// SelectWhere returns the entities of entityID matching where, a SQL
// condition over column names using the dialect's placeholders. An empty
// where selects every row.
func (s *Store) SelectWhere(ctx context.Context, entityID, where string, args ...any) ([]*domain.Entity, error) {
	def, err := s.domain.Definition(entityID)
	if err != nil {
		return nil, err
	}
	entities, err := s.query(ctx, s.db, def, where, args)
	if err != nil {
		return nil, err
	}
	if err := s.fetchReferences(ctx, s.db, entities, 0); err != nil {
		return nil, err
	}
	return entities, nil
}

// SelectAll returns every entity of entityID in definition order. Static
// data types are served from the cache when one is configured.
func (s *Store) SelectAll(ctx context.Context, entityID string) ([]*domain.Entity, error) {
	def, err := s.domain.Definition(entityID)
	if err != nil {
		return nil, err
	}
	cached := s.static != nil && def.IsStaticData()
	if cached {
		if v, ok := s.static.Get(entityID); ok {
			return domain.CopyAll(v.([]*domain.Entity)), nil
		}
	}
	entities, err := s.SelectWhere(ctx, entityID, "")
	if err != nil {
		return nil, err
	}
	if cached {
		s.static.Set(entityID, domain.CopyAll(entities), gocache.DefaultExpiration)
	}
	return entities, nil
}

// Scan returns every row of entityID without fetching foreign keys.
func (s *Store) Scan(ctx context.Context, entityID string) ([]*domain.Entity, error) {
	def, err := s.domain.Definition(entityID)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, s.db, def, "", nil)
}

// Load writes entities as stored rows in one transaction. Key generation,
// audit stamping and validation are skipped, so exported rows restore
// unchanged.
func (s *Store) Load(ctx context.Context, entities ...*domain.Entity) error {
	err := s.inTx(ctx, func(q querier) error {
		for _, e := range entities {
			def := e.Definition()
			if def.SelectQueryText() != "" {
				return fmt.Errorf("loading %s: %w", def.EntityID(), ErrReadOnlyEntity)
			}
			var cols []domain.Column
			for _, c := range def.WritableColumns(false) {
				if e.Contains(c) {
					cols = append(cols, c)
				}
			}
			b := s.binder()
			stmt := insertSQL(def, cols, func(c domain.Column) string { return b.bind(bindValue(c, e.Get(c))) })
			if _, err := s.exec(ctx, q, stmt, b.args); err != nil {
				return fmt.Errorf("loading %s: %w", e.Key(), err)
			}
			e.SaveAll()
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(entities)
	return nil
}

// Count returns the number of rows of entityID matching where.
func (s *Store) Count(ctx context.Context, entityID, where string, args ...any) (int, error) {
	def, err := s.domain.Definition(entityID)
	if err != nil {
		return 0, err
	}
	stmt := "SELECT COUNT(*) FROM " + fromClause(def)
	if where != "" {
		stmt += " WHERE " + where
	}
	s.log(stmt, args)
	var n int
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", entityID, err)
	}
	return n, nil
}

// query selects rows of def and packs them into entities.
func (s *Store) query(ctx context.Context, q querier, def *domain.Definition, where string, args []any) ([]*domain.Entity, error) {
	stmt := selectSQL(def, where)
	s.log(stmt, args)
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", def.EntityID(), err)
	}
	defer rows.Close()
	entities, err := packRows(def, rows)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", def.EntityID(), err)
	}
	return entities, nil
}

func (s *Store) selectByKeys(ctx context.Context, q querier, keys []*domain.Key, depth int) ([]*domain.Entity, error) {
	var out []*domain.Entity
	for _, group := range groupKeys(keys) {
		def := group[0].Definition()
		b := s.binder()
		conds := make([]string, len(group))
		for i, k := range group {
			conds[i] = "(" + keyCondition(k, b) + ")"
		}
		entities, err := s.query(ctx, q, def, joinOr(conds), b.args)
		if err != nil {
			return nil, err
		}
		if err := s.fetchReferences(ctx, q, entities, depth); err != nil {
			return nil, err
		}
		out = append(out, entities...)
	}
	return out, nil
}

// fetchReferences loads the entities referenced by the foreign keys of
// entities whose fetch depth exceeds depth. Entities fetched at depth n
// have their own references fetched at n+1.
func (s *Store) fetchReferences(ctx context.Context, q querier, entities []*domain.Entity, depth int) error {
	if len(entities) == 0 {
		return nil
	}
	def := entities[0].Definition()
	for _, fk := range def.ForeignKeys() {
		if depth >= fk.FetchDepth() {
			continue
		}
		var keys []*domain.Key
		for _, e := range entities {
			if k := e.ReferencedKey(fk); k != nil {
				keys = append(keys, k)
			}
		}
		if len(keys) == 0 {
			continue
		}
		refs, err := s.selectByKeys(ctx, q, distinctKeys(keys), depth+1)
		if err != nil {
			return err
		}
		cols := keys[0].Columns()
		byKey := make(map[string]*domain.Entity, len(refs))
		for _, ref := range refs {
			byKey[valuesKey(cols, ref.Get)] = ref
		}
		for _, e := range entities {
			k := e.ReferencedKey(fk)
			if k == nil {
				continue
			}
			ref, ok := byKey[valuesKey(cols, func(p domain.Property) any { return k.Get(p.(domain.Column)) })]
			if !ok {
				continue
			}
			if err := e.Put(fk, ref); err != nil {
				return err
			}
			// Selected entities reflect the stored row.
			e.SaveAll()
		}
	}
	return nil
}

// stamp writes the audit columns of e for action and returns them.
func (s *Store) stamp(e *domain.Entity, action domain.AuditAction) ([]domain.Column, error) {
	var stamped []domain.Column
	for _, p := range e.Definition().Properties() {
		a, ok := p.(*domain.AuditProperty)
		if !ok || a.Action() != action {
			continue
		}
		var err error
		switch a.Kind() {
		case domain.KindAuditTime:
			err = e.Put(a, s.now().UTC())
		case domain.KindAuditUser:
			if s.user == "" {
				continue
			}
			err = e.Put(a, s.user)
		}
		if err != nil {
			return nil, err
		}
		stamped = append(stamped, a)
	}
	return stamped, nil
}

func (s *Store) invalidate(entities []*domain.Entity) {
	if s.static == nil {
		return
	}
	for _, e := range entities {
		s.static.Delete(e.EntityID())
	}
}

func (s *Store) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, q querier, stmt string, args []any) (sql.Result, error) {
	s.log(stmt, args)
	return q.ExecContext(ctx, stmt, args...)
}

func (s *Store) log(stmt string, args []any) {
	s.logger.Debug("sql", zap.String("dialect", s.dialect.Name()), zap.String("statement", stmt), zap.Int("args", len(args)))
}

func checkAffected(res sql.Result, k *domain.Key) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	switch {
	case n == 0:
		return fmt.Errorf("%s: %w", k, ErrNotFound)
	case n > 1:
		return fmt.Errorf("%s: %w", k, ErrMultipleRows)
	}
	return nil
}
