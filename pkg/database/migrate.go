package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// Migrate applies every pending goose migration found at the root of fsys
// and returns the schema version afterwards.
func Migrate(ctx context.Context, db *sql.DB, driver string, fsys fs.FS) (int64, error) {
	dialect, err := gooseDialect(driver)
	if err != nil {
		return 0, err
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("init migrations: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func gooseDialect(driver string) (goose.Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return goose.DialectSQLite3, nil
	case "postgres", "pgx":
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("no migration dialect for driver %q", driver)
	}
}
