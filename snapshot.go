package progression

import (
	"context"
	"encoding/json"
	"time"
)

// Snapshot is the serialized state of an aggregate at a given stream version.
type Snapshot struct {
	AggregateType string          `json:"aggregateType"`
	StreamID      string          `json:"streamId"`
	Version       uint64          `json:"version"`
	State         json.RawMessage `json:"state"`
	TakenAt       time.Time       `json:"takenAt"`
}

// SnapshotCache stores the latest snapshot per aggregate type and stream.
//
// The cache is an optimization only. Rehydration falls back to a full replay
// whenever the cache misses, fails or holds a snapshot that cannot be used.
type SnapshotCache interface {
	Get(ctx context.Context, aggregateType, streamID string) (Snapshot, bool, error)
	Put(ctx context.Context, snapshot Snapshot) error
}
