package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies the embedded migrations for the dialect of db.
func Migrate(ctx context.Context, db *bun.DB) error {
	provider, err := newProvider(db)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("database: migrate up: %w", err)
	}
	for _, r := range results {
		log.Info().
			Str("migration", r.Source.Path).
			Dur("elapsed", r.Duration).
			Msg("applied migration")
	}
	return nil
}

// Version reports the current schema version.
func Version(ctx context.Context, db *bun.DB) (int64, error) {
	provider, err := newProvider(db)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func newProvider(db *bun.DB) (*goose.Provider, error) {
	var (
		gooseDialect goose.Dialect
		dir          string
	)
	switch db.Dialect().Name() {
	case dialect.PG:
		gooseDialect, dir = goose.DialectPostgres, "migrations/postgres"
	case dialect.SQLite:
		gooseDialect, dir = goose.DialectSQLite3, "migrations/sqlite"
	default:
		return nil, fmt.Errorf("database: no migrations for dialect %s", db.Dialect().Name())
	}

	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("database: open migrations %s: %w", dir, err)
	}

	provider, err := goose.NewProvider(gooseDialect, db.DB, sub)
	if err != nil {
		return nil, fmt.Errorf("database: create migration provider: %w", err)
	}
	return provider, nil
}
