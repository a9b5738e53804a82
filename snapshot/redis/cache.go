// Package redis stores snapshots in Redis as JSON, one key per stream.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goRedis "github.com/redis/go-redis/v9"
	es "github.com/terraskye/progression"
)

var _ es.SnapshotCache = (*Cache)(nil)

// Cache is a SnapshotCache backed by a Redis client.
type Cache struct {
	client goRedis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix sets the key prefix. Defaults to "snapshot:".
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithTTL expires snapshots after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

func New(client goRedis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{client: client, prefix: "snapshot:"}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewClient creates a Redis client from url and performs a health check.
func NewClient(ctx context.Context, url string) (*goRedis.Client, error) {
	opts, err := goRedis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := goRedis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Cache) key(aggregateType, streamID string) string {
	return c.prefix + aggregateType + ":" + streamID
}

func (c *Cache) Get(ctx context.Context, aggregateType, streamID string) (es.Snapshot, bool, error) {
	data, err := c.client.Get(ctx, c.key(aggregateType, streamID)).Bytes()
	if errors.Is(err, goRedis.Nil) {
		return es.Snapshot{}, false, nil
	}
	if err != nil {
		return es.Snapshot{}, false, fmt.Errorf("get snapshot %s/%s: %w", aggregateType, streamID, err)
	}

	var s es.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return es.Snapshot{}, false, fmt.Errorf("decode snapshot %s/%s: %w", aggregateType, streamID, err)
	}
	return s, true, nil
}

func (c *Cache) Put(ctx context.Context, s es.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot %s/%s: %w", s.AggregateType, s.StreamID, err)
	}
	if err := c.client.Set(ctx, c.key(s.AggregateType, s.StreamID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("put snapshot %s/%s: %w", s.AggregateType, s.StreamID, err)
	}
	return nil
}
