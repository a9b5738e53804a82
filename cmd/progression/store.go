package main

import (
	"context"
	"fmt"

	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/eventstore/bolt"
	"github.com/terraskye/progression/eventstore/kurrentdb"
	"github.com/terraskye/progression/eventstore/memory"
	"github.com/terraskye/progression/eventstore/postgres"
	"github.com/terraskye/progression/eventstore/sqlite"
	"github.com/terraskye/progression/internal/config"
	snapmemory "github.com/terraskye/progression/snapshot/memory"
	snapredis "github.com/terraskye/progression/snapshot/redis"
)

func openStore(ctx context.Context, cfg config.StoreConfig) (es.EventStore, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		return memory.NewMemoryStore(), nil
	case config.StoreBolt:
		return bolt.Open(cfg.BoltPath)
	case config.StoreSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.StorePostgres:
		return postgres.Open(ctx, cfg.PostgresURL, cfg.PostgresMigrate)
	case config.StoreKurrentDB:
		return kurrentdb.Dial(cfg.KurrentDBURL)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Backend)
	}
}

// openSnapshots returns the snapshot cache to use, or nil when snapshots are
// disabled. release closes the cache's connection.
func openSnapshots(ctx context.Context, cfg config.SnapshotConfig) (cache es.SnapshotCache, release func() error, err error) {
	release = func() error { return nil }
	if cfg.Every == 0 {
		return nil, release, nil
	}
	if cfg.RedisURL == "" {
		return snapmemory.New(), release, nil
	}
	client, err := snapredis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, release, fmt.Errorf("connect to redis: %w", err)
	}
	return snapredis.New(client, snapredis.WithTTL(cfg.TTL)), client.Close, nil
}
