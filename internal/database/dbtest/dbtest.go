// Package dbtest starts a throwaway Postgres for tests that need a real
// database.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/smarter-english/elt-trading-game/internal/database"
)

// Start runs a migrated Postgres container for the duration of the test and
// returns its connection string. The test is skipped under -short or when no
// container runtime is available.
func Start(t testing.TB) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("trading_test"),
		postgres.WithUsername("trading"),
		postgres.WithPassword("trading"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := database.Migrate(url); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return url
}

// Open is Start plus a connected Service that is closed with the test.
func Open(t testing.TB) database.Service {
	t.Helper()

	url := Start(t)
	svc, err := database.New(context.Background(), url)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(svc.Close)

	return svc
}
