package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// PostgresStore implements Store using Postgres through pgx.
type PostgresStore struct {
	*sizeTable
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and ensures the sizes table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: empty dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	t, err := newSizeTable(ctx, db, numberedPlaceholders)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{sizeTable: t}, nil
}

// Open returns the store selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, path, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(path)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
