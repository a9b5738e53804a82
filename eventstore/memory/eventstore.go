package memory

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sync"

	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/eventstore/record"
)

var _ es.EventStore = (*MemoryStore)(nil)

// MemoryStore keeps every stream in process memory. Envelopes are copied on
// the way in and on the way out, so callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	closed bool
	global []es.Envelope
	events map[string][]es.Envelope
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string][]es.Envelope),
	}
}

func (m *MemoryStore) Save(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return es.AppendResult{}, err
	}
	if len(events) == 0 {
		return es.AppendResult{Successful: true}, nil
	}

	streamID, err := record.SameStream(events)
	if err != nil {
		return es.AppendResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return es.AppendResult{}, es.ErrStoreClosed
	}

	currentVersion := uint64(len(m.events[streamID]))
	if err := es.CheckRevision(streamID, revision, currentVersion); err != nil {
		return es.AppendResult{}, err
	}

	committed := make([]es.Envelope, 0, len(events))
	for _, env := range events {
		currentVersion++
		env.Version = currentVersion
		env.GlobalVersion = uint64(len(m.global) + 1)
		env.Metadata = maps.Clone(env.Metadata)
		m.events[streamID] = append(m.events[streamID], env)
		m.global = append(m.global, env)
		env.Metadata = maps.Clone(env.Metadata)
		committed = append(committed, env)
	}

	return es.AppendResult{
		Successful:          true,
		StreamID:            streamID,
		NextExpectedVersion: currentVersion,
		Events:              committed,
	}, nil
}

func (m *MemoryStore) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	return m.LoadStreamFrom(ctx, id, 0)
}

func (m *MemoryStore) LoadStreamFrom(ctx context.Context, id string, after uint64) (*es.Iterator[*es.Envelope], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, es.ErrStoreClosed
	}

	events, exists := m.events[id]
	if !exists {
		return nil, fmt.Errorf("load stream %q: %w", id, es.ErrStreamNotFound)
	}
	if after > uint64(len(events)) {
		return nil, fmt.Errorf(
			"load stream %q: requested events after %d but stream has %d: %w",
			id, after, len(events), es.ErrInvalidRevision,
		)
	}

	// streams only grow, so this prefix never changes
	return iterate(events[after:len(events):len(events)]), nil
}

func (m *MemoryStore) LoadFromAll(ctx context.Context, after uint64) (*es.Iterator[*es.Envelope], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, es.ErrStoreClosed
	}
	if after >= uint64(len(m.global)) {
		return es.NewSliceIterator[*es.Envelope](nil), nil
	}
	return iterate(m.global[after:len(m.global):len(m.global)]), nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = make(map[string][]es.Envelope)
	m.global = nil
	return nil
}

func iterate(events []es.Envelope) *es.Iterator[*es.Envelope] {
	index := 0
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if index >= len(events) {
			return nil, io.EOF
		}
		env := events[index]
		env.Metadata = maps.Clone(env.Metadata)
		index++
		return &env, nil
	})
}
