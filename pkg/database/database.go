package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

type Config struct {
	Driver          string        `envconfig:"DRIVER" default:"sqlite"`
	DSN             string        `envconfig:"DSN" default:"file:support.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"`
	AutoMigrate     bool          `envconfig:"AUTO_MIGRATE" split_words:"true" default:"true"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" split_words:"true" default:"30m"`
}

func (c Config) driver() (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(c.Driver))); d {
	case DriverPostgres, DriverSQLite:
		return d, nil
	case "pg", "postgresql":
		return DriverPostgres, nil
	case "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("database: unsupported driver %q", c.Driver)
	}
}

// Open connects to the configured database and verifies the connection.
// SQLite is limited to a single connection, which serializes writers.
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	driver, err := cfg.driver()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database: dsn is required")
	}

	var db *bun.DB
	switch driver {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("database: open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		sqldb.SetMaxIdleConns(1)
		sqldb.SetConnMaxLifetime(0)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	db.AddQueryHook(queryLogger{})

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping %s: %w", driver, err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}
