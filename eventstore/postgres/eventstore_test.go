package postgres_test

import (
	"os"
	"testing"

	cqrs "github.com/terraskye/progression"
	"github.com/terraskye/progression/eventstore/postgres"
	"github.com/terraskye/progression/eventstore/storetest"
)

// connString returns the test database or skips the test.
func connString(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PROGRESSION_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("PROGRESSION_TEST_POSTGRES_URL not set")
	}
	return dsn
}

func TestPostgresStore(t *testing.T) {
	dsn := connString(t)
	if err := postgres.Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	storetest.Run(t, func(t *testing.T) cqrs.EventStore {
		store, err := postgres.Open(t.Context(), dsn, false)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return store
	})
}

func TestMigrateTwice(t *testing.T) {
	dsn := connString(t)
	for range 2 {
		if err := postgres.Migrate(dsn); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
}
