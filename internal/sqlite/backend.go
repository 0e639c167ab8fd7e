// Package sqlite stores domain entities in a SQLite database file. The data
// directory may also hold one JSONL file per entity type; when a sync
// strategy is active those files are the source of truth and the database
// is rebuilt from them on Attach.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/domainkit/internal/store"
	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// DatabaseFile is the name of the database file inside the data directory.
const DatabaseFile = "domainkit.db"

// Backend owns the SQLite connection and the store of one domain.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   Config
	registry *domain.Registry
	db       *sql.DB
	store    *store.Store
	logger   *zap.Logger

	// Entity types written since their last export.
	pending    map[string]bool
	writes     int
	batchTimer *time.Timer
	batchMu    sync.Mutex

	// exportMu orders JSONL exports so the last file written holds the
	// latest scan.
	exportMu sync.Mutex
}

// NewBackend creates a detached backend.
func NewBackend() *Backend {
	return &Backend{
		pending: make(map[string]bool),
		logger:  zap.NewNop(),
	}
}

// Attach opens the database in config.DataDir and creates the schema of the
// domain. Unless the sync strategy is SyncNone the database is recreated and
// loaded from the JSONL files, which are created empty when missing.
func (b *Backend) Attach(ctx context.Context, config Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Logger != nil {
		b.logger = config.Logger
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	config.DataDir = dataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	reg := domain.NewRegistry()
	if err := reg.Register(config.Domain); err != nil {
		return err
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)
	syncing := config.syncStrategy() != SyncNone
	if syncing {
		_ = os.Remove(dbPath)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return err
	}

	opts := []store.Option{store.WithLogger(b.logger), store.WithUser(config.User)}
	if config.StaticCacheTTL > 0 {
		opts = append(opts, store.WithStaticCache(config.StaticCacheTTL))
	}
	st := store.New(db, store.SQLite, config.Domain, opts...)
	if err := st.CreateSchema(ctx); err != nil {
		db.Close()
		return err
	}

	if syncing {
		if err := initJSONLFiles(dataDir, config.Domain); err != nil {
			db.Close()
			return err
		}
		if err := loadAllJSONL(ctx, st, reg, dataDir, b.logger); err != nil {
			db.Close()
			return fmt.Errorf("load JSONL: %w", err)
		}
	}

	b.db = db
	b.store = st
	b.config = config
	b.registry = reg
	b.pending = make(map[string]bool)
	b.writes = 0
	b.attached = true

	if config.syncStrategy() == SyncBatch && config.BatchInterval > 0 {
		b.startBatchTimer()
	}
	b.logger.Debug("backend attached",
		zap.String("data_dir", dataDir),
		zap.String("domain", config.Domain.ID()),
		zap.String("sync", config.syncStrategy()))
	return nil
}

// Detach exports pending entity types and closes the database. After Detach
// every operation returns ErrDetached. Detach is idempotent.
func (b *Backend) Detach(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.stopBatchTimer()
	if err := b.flush(ctx); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}
	if err := b.db.Close(); err != nil {
		return err
	}
	b.db = nil
	b.store = nil
	b.attached = false
	return nil
}

// Store returns the store of the attached domain.
func (b *Backend) Store() (*store.Store, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, ErrDetached
	}
	return b.store, nil
}

// Registry returns the registry the JSONL files are decoded through.
func (b *Backend) Registry() *domain.Registry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry
}

// Insert inserts entities through the store and syncs their types.
func (b *Backend) Insert(ctx context.Context, entities ...*domain.Entity) ([]*domain.Key, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, ErrDetached
	}
	keys, err := b.store.Insert(ctx, entities...)
	if err != nil {
		return nil, err
	}
	return keys, b.written(ctx, entityIDs(entities))
}

// Update updates entities through the store and syncs their types.
func (b *Backend) Update(ctx context.Context, entities ...*domain.Entity) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return ErrDetached
	}
	if err := b.store.Update(ctx, entities...); err != nil {
		return err
	}
	return b.written(ctx, entityIDs(entities))
}

// Delete deletes rows through the store and syncs their types.
func (b *Backend) Delete(ctx context.Context, keys ...*domain.Key) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return ErrDetached
	}
	if err := b.store.Delete(ctx, keys...); err != nil {
		return err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.EntityID())
	}
	return b.written(ctx, ids)
}

// Select returns the entity with key k.
func (b *Backend) Select(ctx context.Context, k *domain.Key) (*domain.Entity, error) {
	st, err := b.Store()
	if err != nil {
		return nil, err
	}
	return st.Select(ctx, k)
}

// SelectAll returns every entity of type entityID.
func (b *Backend) SelectAll(ctx context.Context, entityID string) ([]*domain.Entity, error) {
	st, err := b.Store()
	if err != nil {
		return nil, err
	}
	return st.SelectAll(ctx, entityID)
}

// Export writes every table backed entity type to its JSONL file.
func (b *Backend) Export(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return ErrDetached
	}
	b.exportMu.Lock()
	defer b.exportMu.Unlock()
	return ExportAll(ctx, b.store, b.config.DataDir)
}

// export writes the JSONL file of entityID. Concurrent writers each scan
// and rename under exportMu, so an older scan never replaces a newer one.
func (b *Backend) export(ctx context.Context, entityID string) error {
	b.exportMu.Lock()
	defer b.exportMu.Unlock()
	return exportEntityType(ctx, b.store, b.config.DataDir, entityID)
}

// written records a write to entity types according to the sync strategy.
// The caller must hold b.mu.
func (b *Backend) written(ctx context.Context, ids []string) error {
	switch b.config.syncStrategy() {
	case SyncNone:
		return nil
	case SyncImmediate:
		for _, id := range distinct(ids) {
			if err := b.export(ctx, id); err != nil {
				return err
			}
		}
		return nil
	}

	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	for _, id := range ids {
		b.pending[id] = true
	}
	b.writes++
	if b.config.syncStrategy() == SyncBatch && b.writes >= b.config.BatchSize {
		return b.flushLocked(ctx)
	}
	return nil
}

// flush exports the pending entity types. The caller must hold b.mu.
func (b *Backend) flush(ctx context.Context) error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	return b.flushLocked(ctx)
}

// flushLocked requires b.batchMu.
func (b *Backend) flushLocked(ctx context.Context) error {
	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := b.export(ctx, id); err != nil {
			return fmt.Errorf("export %s: %w", id, err)
		}
		delete(b.pending, id)
	}
	b.writes = 0
	return nil
}

func (b *Backend) startBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		return
	}
	interval := b.config.BatchInterval
	b.batchTimer = time.AfterFunc(interval, func() {
		b.mu.RLock()
		defer b.mu.RUnlock()
		if !b.attached {
			return
		}
		if err := b.flush(context.Background()); err != nil {
			b.logger.Warn("batch export failed", zap.Error(err))
		}

		b.batchMu.Lock()
		if b.batchTimer != nil {
			b.batchTimer.Reset(interval)
		}
		b.batchMu.Unlock()
	})
}

func (b *Backend) stopBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		b.batchTimer.Stop()
		b.batchTimer = nil
	}
}

func entityIDs(entities []*domain.Entity) []string {
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.EntityID()
	}
	return ids
}

func distinct(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
