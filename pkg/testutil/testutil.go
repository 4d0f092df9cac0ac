// Package testutil provides databases for store and commerce tests: a
// migrated in-memory SQLite per test, and a Postgres container for the
// integration suite.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	storex "github.com/tanpawarit/Chative-Support-Router/commerce/store"
	"github.com/tanpawarit/Chative-Support-Router/pkg/database"
)

// NewSQLite opens a private in-memory database with the schema applied.
func NewSQLite(t testing.TB) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := database.Open(context.Background(), database.Config{
		Driver:      string(database.DriverSQLite),
		DSN:         dsn,
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewSeededStore returns a store over NewSQLite loaded with the demo catalog.
func NewSeededStore(t testing.TB) *storex.Store {
	t.Helper()

	st := storex.New(NewSQLite(t))
	if err := st.Seed(context.Background(), storex.NewDemoCatalog()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return st
}

type Postgres struct {
	Container testcontainers.Container
	DSN       string
}

// StartPostgres runs a throwaway Postgres container. Tests are skipped when
// run with -short or when no container runtime is reachable.
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "support",
				"POSTGRES_PASSWORD": "support",
				"POSTGRES_DB":       "support",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	return &Postgres{
		Container: container,
		DSN:       fmt.Sprintf("postgres://support:support@%s:%s/support?sslmode=disable", host, port.Port()),
	}
}

// Open connects to the container and applies migrations.
func (p *Postgres) Open(t *testing.T) *bun.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Driver:       string(database.DriverPostgres),
		DSN:          p.DSN,
		AutoMigrate:  true,
		MaxOpenConns: 10,
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
