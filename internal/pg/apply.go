package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/domainkit/internal/store"
	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// duplicateObject is the SQLSTATE of an object that already exists.
const duplicateObject = "42710"

// ApplySchema creates the tables of d. Statements failing because the
// object already exists are logged and skipped.
func ApplySchema(ctx context.Context, db *sql.DB, d *domain.Domain, logger *zap.Logger) error {
	stmts, err := store.SchemaSQL(store.Postgres, d)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == duplicateObject {
				logger.Info("DDL skipped, already exists",
					zap.String("constraint", pgErr.ConstraintName),
					zap.String("message", strings.TrimSpace(pgErr.Message)))
				continue
			}
			return fmt.Errorf("DDL apply failed: %w", err)
		}
	}
	return nil
}

// Connect opens url, applies the schema of d and returns a store over it.
func Connect(ctx context.Context, url string, d *domain.Domain, logger *zap.Logger, opts ...store.Option) (*store.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := ApplySchema(ctx, db, d, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	opts = append([]store.Option{store.WithLogger(logger)}, opts...)
	return store.New(db, store.Postgres, d, opts...), nil
}
