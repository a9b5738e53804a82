package kurrentdb_test

import (
	"os"
	"testing"

	cqrs "github.com/terraskye/progression"
	"github.com/terraskye/progression/eventstore/kurrentdb"
	"github.com/terraskye/progression/eventstore/storetest"
)

func TestKurrentDBStore(t *testing.T) {
	url := os.Getenv("PROGRESSION_TEST_KURRENTDB_URL")
	if url == "" {
		t.Skip("PROGRESSION_TEST_KURRENTDB_URL not set")
	}

	storetest.Run(t, func(t *testing.T) cqrs.EventStore {
		store, err := kurrentdb.Dial(url)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		return store
	})
}
