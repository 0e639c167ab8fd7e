// Package pg connects domain stores to PostgreSQL through pgx.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
)

// EnvDatabaseURL names the environment variable holding the connection URL.
const EnvDatabaseURL = "DATABASE_URL"

// ErrNoDatabaseURL is returned when no connection URL is configured.
var ErrNoDatabaseURL = errors.New("DATABASE_URL not set")

// URL returns url, or the value of DATABASE_URL when url is empty.
func URL(url string) (string, error) {
	if url != "" {
		return url, nil
	}
	if env := os.Getenv(EnvDatabaseURL); env != "" {
		return env, nil
	}
	return "", ErrNoDatabaseURL
}

// Open opens a database/sql handle over the pgx driver and pings it.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
