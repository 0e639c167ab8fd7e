package sqlite

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// Sync strategies decide when entity types are written back to their JSONL
// files.
const (
	// SyncNone keeps data in the database file only.
	SyncNone = "none"
	// SyncImmediate exports an entity type after every write to it.
	SyncImmediate = "immediate"
	// SyncOnClose exports written entity types on Detach.
	SyncOnClose = "on_close"
	// SyncBatch exports after BatchSize writes, every BatchInterval and on
	// Detach.
	SyncBatch = "batch"
)

// Backend errors.
var (
	ErrAlreadyAttached      = errors.New("backend already attached")
	ErrDetached             = errors.New("backend is detached")
	ErrDomainMissing        = errors.New("domain must not be nil")
	ErrSyncStrategyUnknown  = errors.New("unknown sync strategy")
	ErrBatchSizeInvalid     = errors.New("batch size must be positive")
	ErrBatchIntervalInvalid = errors.New("batch interval must not be negative")
)

// Config holds the parameters of Backend.Attach.
type Config struct {
	// DataDir holds the database file and the JSONL files. Defaults to ".".
	DataDir string
	Domain  *domain.Domain
	// SyncStrategy defaults to SyncImmediate.
	SyncStrategy  string
	BatchSize     int
	BatchInterval time.Duration
	// User is stamped into audit user columns.
	User string
	// StaticCacheTTL enables the static data cache when positive.
	StaticCacheTTL time.Duration
	Logger         *zap.Logger
}

var knownStrategies = map[string]bool{
	SyncNone:      true,
	SyncImmediate: true,
	SyncOnClose:   true,
	SyncBatch:     true,
}

// Validate checks that the Config is well formed.
func (c Config) Validate() error {
	if c.Domain == nil {
		return ErrDomainMissing
	}
	if c.SyncStrategy != "" && !knownStrategies[c.SyncStrategy] {
		return ErrSyncStrategyUnknown
	}
	if c.SyncStrategy == SyncBatch && c.BatchSize <= 0 {
		return ErrBatchSizeInvalid
	}
	if c.BatchInterval < 0 {
		return ErrBatchIntervalInvalid
	}
	return nil
}

func (c Config) syncStrategy() string {
	if c.SyncStrategy == "" {
		return SyncImmediate
	}
	return c.SyncStrategy
}
