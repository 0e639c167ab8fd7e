package cli

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/domainkit/internal/api"
	"github.com/mesh-intelligence/domainkit/internal/config"
	"github.com/mesh-intelligence/domainkit/internal/paths"
	"github.com/mesh-intelligence/domainkit/internal/pg"
	"github.com/mesh-intelligence/domainkit/internal/schema"
	"github.com/mesh-intelligence/domainkit/internal/sqlite"
	"github.com/mesh-intelligence/domainkit/internal/store"
	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// env is the resolved configuration a command runs with.
type env struct {
	configDir  string
	schemaPath string
	cfg        *config.Config
	logger     *zap.Logger
}

// loadEnv resolves the config directory, loads config.yaml and builds the
// logger.
func loadEnv() (*env, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return nil, sysError("resolve config dir: %w", err)
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, sysError("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, userError("invalid config: %w", err)
	}
	schemaPath, err := paths.ResolveSchema(flags.schema, cfg.Schema, configDir)
	if err != nil {
		return nil, sysError("resolve schema: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, sysError("create logger: %w", err)
	}
	return &env{configDir: configDir, schemaPath: schemaPath, cfg: cfg, logger: logger}, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if flags.verbose {
		return zap.NewDevelopment()
	}
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	return zc.Build()
}

// loadDomain builds the domain from the schema file.
func (e *env) loadDomain() (*domain.Domain, error) {
	opts := []schema.LoaderOption{
		schema.WithLogger(e.logger),
		schema.WithNullValidation(e.cfg.PerformNullValidation),
	}
	if e.cfg.StrictForeignKeys != nil {
		opts = append(opts, schema.WithStrictForeignKeys(*e.cfg.StrictForeignKeys))
	}
	d, err := schema.NewLoader(opts...).LoadFile(e.schemaPath)
	if err != nil {
		return nil, userError("load schema: %w", err)
	}
	return d, nil
}

func (e *env) user() string {
	if e.cfg.User != "" {
		return e.cfg.User
	}
	return os.Getenv("USER")
}

// repository is an opened backend.
type repository struct {
	api.Repository
	store *store.Store
	close func(ctx context.Context) error
}

// open attaches the configured backend for d.
func (e *env) open(ctx context.Context, d *domain.Domain) (*repository, error) {
	switch e.cfg.Backend {
	case config.BackendPostgres:
		url, err := pg.URL(e.cfg.DatabaseURL)
		if err != nil {
			return nil, userError("%w", err)
		}
		opts := []store.Option{store.WithUser(e.user())}
		if e.cfg.StaticCacheTTL > 0 {
			opts = append(opts, store.WithStaticCache(e.cfg.StaticCacheTTL))
		}
		st, err := pg.Connect(ctx, url, d, e.logger, opts...)
		if err != nil {
			return nil, sysError("%w", err)
		}
		return &repository{
			Repository: st,
			store:      st,
			close:      func(context.Context) error { return st.DB().Close() },
		}, nil
	}

	dataDir, err := paths.ResolveDataDir(flags.dataDir, e.cfg.DataDir)
	if err != nil {
		return nil, sysError("resolve data dir: %w", err)
	}
	b := sqlite.NewBackend()
	err = b.Attach(ctx, sqlite.Config{
		DataDir:        dataDir,
		Domain:         d,
		SyncStrategy:   e.cfg.SyncStrategy,
		BatchSize:      e.cfg.BatchSize,
		BatchInterval:  e.cfg.BatchInterval,
		User:           e.user(),
		StaticCacheTTL: e.cfg.StaticCacheTTL,
		Logger:         e.logger,
	})
	if err != nil {
		return nil, sysError("attach sqlite backend: %w", err)
	}
	st, err := b.Store()
	if err != nil {
		return nil, sysError("%w", err)
	}
	return &repository{Repository: b, store: st, close: b.Detach}, nil
}
