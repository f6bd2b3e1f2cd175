// Package testutil provides shared testing utilities for the assistant
// project: a disposable Postgres container, a scripted model, and a
// scripted gateway.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/evscmms/assistant/internal/database"
	"github.com/evscmms/assistant/internal/log"
)

// TestDB wraps a PostgreSQL test container with a ready connection pool.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts a PostgreSQL container, applies the embedded
// migrations, and returns a pool plus a cleanup function the caller
// must run.
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	db, cleanup, err := SetupTestDBForMain()
	if err != nil {
		t.Fatalf("setting up test database: %v", err)
	}
	return db, cleanup
}

// SetupTestDBForMain is the TestMain-friendly variant: it returns an
// error instead of failing a *testing.T.
func SetupTestDBForMain() (*TestDB, func(), error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("assistant_test"),
		postgres.WithUsername("assistant_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("starting PostgreSQL container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("getting connection string: %w", err)
	}

	if err := database.Migrate(connStr, log.NewNop()); err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("opening connection pool: %w", err)
	}

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(context.Background())
	}
	return &TestDB{Container: pgContainer, Pool: pool, ConnStr: connStr}, cleanup, nil
}
