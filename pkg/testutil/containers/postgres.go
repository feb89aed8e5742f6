//go:build integration

package containers

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/iota-uz/tenantkit/migrations"
	"github.com/iota-uz/tenantkit/pkg/rls"
)

// DSNEnv points integration tests at an existing database instead of a container.
const DSNEnv = "TENANTKIT_TEST_DSN"

type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
}

// NewPostgresContainer starts Postgres, or reuses the database named by
// TENANTKIT_TEST_DSN. Outside CI an unavailable Docker skips the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	if dsn := strings.TrimSpace(os.Getenv(DSNEnv)); dsn != "" {
		return &PostgresContainer{DSN: dsn}
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("tenantkit"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		if isCI() {
			t.Fatalf("failed to start postgres container: %v", err)
		}
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}
	return &PostgresContainer{Container: container, DSN: dsn}
}

// MigratedPool opens a pool with binder installed and applies the embedded
// migrations.
func (p *PostgresContainer) MigratedPool(t *testing.T, binder *rls.Binder) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	pool, err := rls.NewPool(ctx, p.DSN, binder, rls.PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = db.Close() })

	migrator, err := migrations.New(db)
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	if _, err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return pool
}

func isCI() bool {
	return strings.TrimSpace(os.Getenv("CI")) != "" ||
		strings.EqualFold(strings.TrimSpace(os.Getenv("GITHUB_ACTIONS")), "true")
}
