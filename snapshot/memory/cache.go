// Package memory is an in-process SnapshotCache.
package memory

import (
	"bytes"
	"context"
	"sync"

	es "github.com/terraskye/progression"
)

var _ es.SnapshotCache = (*Cache)(nil)

type key struct {
	aggregateType string
	streamID      string
}

// Cache keeps the newest snapshot per aggregate type and stream.
type Cache struct {
	mu        sync.RWMutex
	snapshots map[key]es.Snapshot
}

func New() *Cache {
	return &Cache{snapshots: make(map[key]es.Snapshot)}
}

func (c *Cache) Get(ctx context.Context, aggregateType, streamID string) (es.Snapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.snapshots[key{aggregateType, streamID}]
	if ok {
		s.State = bytes.Clone(s.State)
	}
	return s, ok, nil
}

// Put stores s unless a snapshot at a later version is already cached.
func (c *Cache) Put(ctx context.Context, s es.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{s.AggregateType, s.StreamID}
	if current, ok := c.snapshots[k]; ok && current.Version > s.Version {
		return nil
	}
	s.State = bytes.Clone(s.State)
	c.snapshots[k] = s
	return nil
}
