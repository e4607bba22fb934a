package test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joao-fontenele/storefront-checkout/internal/telemetry"
)

// StartSandboxDB runs a migrated Postgres for the sandbox API and returns a
// traced handle on it. Container and handle are released with the test.
func StartSandboxDB(ctx context.Context, t *testing.T) *sql.DB {
	t.Helper()

	ctr, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres dsn: %v", err)
	}
	if err := migrateUp(dsn); err != nil {
		t.Fatal(err)
	}

	db, err := telemetry.OpenDB(ctx, "postgres", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// StartKafka runs a single-node broker and returns its bootstrap addresses.
func StartKafka(ctx context.Context, t *testing.T) []string {
	t.Helper()

	ctr, err := kafka.Run(ctx, "confluentinc/confluent-local:7.8.0", kafka.WithClusterID("storefront-test"))
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("failed to start kafka: %v", err)
	}

	brokers, err := ctr.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to get kafka brokers: %v", err)
	}
	return brokers
}

func migrateUp(dsn string) error {
	_, file, _, _ := runtime.Caller(0)
	source := "file://" + filepath.Join(filepath.Dir(filepath.Dir(file)), "migrations")

	m, err := migrate.New(source, dsn)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
