package sqlite

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/domainkit/internal/store"
	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// loadAllJSONL reads the JSONL file of every table backed entity type, in
// definition order, and loads the records in one transaction. Records that
// do not decode against the domain are logged and skipped.
func loadAllJSONL(ctx context.Context, st *store.Store, reg *domain.Registry, dataDir string, logger *zap.Logger) error {
	var entities []*domain.Entity
	for _, def := range st.Domain().Definitions() {
		if def.SelectQueryText() != "" {
			continue
		}
		path := entityFile(dataDir, def.EntityID())
		records, err := readJSONL(path)
		if err != nil {
			return err
		}
		for i, rec := range records {
			e, err := domain.Decode(reg, rec)
			if err != nil {
				logger.Warn("skipping record", zap.String("file", path), zap.Int("line", i+1), zap.Error(err))
				continue
			}
			if e.EntityID() != def.EntityID() {
				logger.Warn("skipping record of another entity type",
					zap.String("file", path), zap.Int("line", i+1), zap.String("entity", e.EntityID()))
				continue
			}
			entities = append(entities, e)
		}
	}
	if len(entities) == 0 {
		return nil
	}
	if err := st.Load(ctx, entities...); err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	logger.Debug("loaded JSONL", zap.Int("records", len(entities)))
	return nil
}
