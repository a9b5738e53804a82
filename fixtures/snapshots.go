package fixtures

import (
	"context"
	"sync"

	es "github.com/terraskye/progression"
)

var _ es.SnapshotCache = (*SnapshotSpy)(nil)

// SnapshotSpy is an in-memory SnapshotCache that counts calls and can be
// told to fail.
type SnapshotSpy struct {
	mu        sync.Mutex
	snapshots map[string]es.Snapshot

	GetErr error
	PutErr error

	GetCalls int
	PutCalls int
}

// NewSnapshotSpy creates an empty SnapshotSpy.
func NewSnapshotSpy() *SnapshotSpy {
	return &SnapshotSpy{snapshots: make(map[string]es.Snapshot)}
}

func (s *SnapshotSpy) Get(ctx context.Context, aggregateType, streamID string) (es.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls++
	if s.GetErr != nil {
		return es.Snapshot{}, false, s.GetErr
	}
	snap, ok := s.snapshots[aggregateType+"/"+streamID]
	return snap, ok, nil
}

func (s *SnapshotSpy) Put(ctx context.Context, snapshot es.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutCalls++
	if s.PutErr != nil {
		return s.PutErr
	}
	s.snapshots[snapshot.AggregateType+"/"+snapshot.StreamID] = snapshot
	return nil
}

// Snapshot returns the stored snapshot for a stream, if any.
func (s *SnapshotSpy) Snapshot(aggregateType, streamID string) (es.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[aggregateType+"/"+streamID]
	return snap, ok
}
