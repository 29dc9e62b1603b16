// Package testutil provides testing utilities for the Rentora inventory service:
// an embedded SQLite store, a shared PostgreSQL testcontainer, sqlmock
// wrappers, fixtures and HTTP helpers.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rentora/rentora-backend/pkg/database"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:16-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "rentora_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:16-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:16-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "rentora_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

var (
	// Shared across all integration tests of one package
	sharedContainer *PostgresContainer
	sharedAdmin     *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationEnabled reports whether Postgres integration tests should run
func IntegrationEnabled() bool {
	return !testing.Short() && os.Getenv("RENTORA_INTEGRATION") != ""
}

// NewPostgresDB returns a migrated database on the shared container. Every
// call creates its own database so tests stay isolated. The test is skipped
// unless RENTORA_INTEGRATION is set and -short is off.
func NewPostgresDB(t *testing.T) *database.DB {
	t.Helper()
	if !IntegrationEnabled() {
		t.Skip("postgres integration tests need RENTORA_INTEGRATION=1 and no -short")
	}

	ctx := context.Background()
	containerOnce.Do(func() {
		sharedContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		sharedAdmin, containerErr = sharedContainer.Connect(ctx)
	})
	if containerErr != nil {
		t.Fatalf("postgres container: %v", containerErr)
	}

	name := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := sharedAdmin.ExecContext(ctx, "CREATE DATABASE "+name); err != nil {
		t.Fatalf("create database: %v", err)
	}

	dsn := strings.Replace(sharedContainer.DSN, "/rentora_test?", "/"+name+"?", 1)
	db, err := database.NewWithDSN(dsn, logger.Nop())
	if err != nil {
		t.Fatalf("connect %s: %v", name, err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate %s: %v", name, err)
	}

	t.Cleanup(func() {
		db.Close()
		sharedAdmin.ExecContext(ctx, "DROP DATABASE IF EXISTS "+name)
	})
	return db
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if sharedAdmin != nil {
		sharedAdmin.Close()
	}
	if sharedContainer != nil {
		sharedContainer.Terminate(ctx)
	}
}
