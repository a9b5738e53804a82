package fixtures

import (
	"context"
	"fmt"
	"sync"

	es "github.com/terraskye/progression"
)

var _ es.EventStore = (*StoreSpy)(nil)

// StoreSpy is a configurable EventStore for testing.
//
// Without overrides it behaves like a real store: Save enforces the expected
// revision and appends atomically, loads return ErrStreamNotFound for empty
// streams. Every call is counted and the last arguments are captured.
type StoreSpy struct {
	mu sync.Mutex

	// Function overrides for custom behavior
	LoadStreamFn     func(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error)
	LoadStreamFromFn func(ctx context.Context, id string, after uint64) (*es.Iterator[*es.Envelope], error)
	SaveFn           func(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error)

	// BeforeSave runs before the default Save logic, outside the lock.
	BeforeSave func(ctx context.Context, events []es.Envelope)

	// Call tracking
	LoadStreamCalls     int
	LoadStreamFromCalls int
	LoadFromAllCalls    int
	SaveCalls           int
	CloseCalls          int

	// Captured arguments from last call
	LastSaveEvents   []es.Envelope
	LastSaveRevision es.StreamState
	LastLoadStreamID string
	LastLoadFrom     uint64

	events map[string][]*es.Envelope
	global []*es.Envelope

	loadErr error
	saveErr error
}

// NewStoreSpy creates a new StoreSpy with default behavior.
func NewStoreSpy() *StoreSpy {
	return &StoreSpy{
		events: make(map[string][]*es.Envelope),
	}
}

// WithHistory pre-populates streamID with events at versions 1..n.
func (s *StoreSpy) WithHistory(streamID string, events ...es.Event) *StoreSpy {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range EnvelopesFor(streamID, events...) {
		env.GlobalVersion = uint64(len(s.global) + 1)
		s.events[streamID] = append(s.events[streamID], env)
		s.global = append(s.global, env)
	}
	return s
}

// FailOnLoad configures the store to return an error on load operations.
func (s *StoreSpy) FailOnLoad(err error) *StoreSpy {
	s.loadErr = err
	return s
}

// FailOnSave configures the store to return an error on save operations.
func (s *StoreSpy) FailOnSave(err error) *StoreSpy {
	s.saveErr = err
	return s
}

// Stream returns a copy of the stored history of id.
func (s *StoreSpy) Stream(id string) []es.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]es.Envelope, len(s.events[id]))
	for i, env := range s.events[id] {
		out[i] = *env
	}
	return out
}

// Streams returns the number of non-empty streams.
func (s *StoreSpy) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// LoadStream implements EventStore.LoadStream.
func (s *StoreSpy) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	s.mu.Lock()
	s.LoadStreamCalls++
	s.LastLoadStreamID = id
	s.mu.Unlock()

	if s.LoadStreamFn != nil {
		return s.LoadStreamFn(ctx, id)
	}
	return s.load(id, 0)
}

// LoadStreamFrom implements EventStore.LoadStreamFrom.
func (s *StoreSpy) LoadStreamFrom(ctx context.Context, id string, after uint64) (*es.Iterator[*es.Envelope], error) {
	s.mu.Lock()
	s.LoadStreamFromCalls++
	s.LastLoadStreamID = id
	s.LastLoadFrom = after
	s.mu.Unlock()

	if s.LoadStreamFromFn != nil {
		return s.LoadStreamFromFn(ctx, id, after)
	}
	return s.load(id, after)
}

func (s *StoreSpy) load(id string, after uint64) (*es.Iterator[*es.Envelope], error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}

	s.mu.Lock()
	events := s.events[id]
	s.mu.Unlock()

	if len(events) == 0 {
		return nil, fmt.Errorf("load stream %q: %w", id, es.ErrStreamNotFound)
	}
	if after > uint64(len(events)) {
		return nil, fmt.Errorf("load stream %q after %d: %w", id, after, es.ErrInvalidRevision)
	}
	return SliceIterator(events[after:]), nil
}

// LoadFromAll implements EventStore.LoadFromAll.
func (s *StoreSpy) LoadFromAll(ctx context.Context, after uint64) (*es.Iterator[*es.Envelope], error) {
	s.mu.Lock()
	s.LoadFromAllCalls++
	var all []*es.Envelope
	for _, env := range s.global {
		if env.GlobalVersion > after {
			all = append(all, env)
		}
	}
	s.mu.Unlock()

	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return SliceIterator(all), nil
}

// Save implements EventStore.Save.
func (s *StoreSpy) Save(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
	s.mu.Lock()
	s.SaveCalls++
	s.LastSaveEvents = events
	s.LastSaveRevision = revision
	s.mu.Unlock()

	if s.SaveFn != nil {
		return s.SaveFn(ctx, events, revision)
	}
	if s.BeforeSave != nil {
		s.BeforeSave(ctx, events)
	}
	if s.saveErr != nil {
		return es.AppendResult{}, s.saveErr
	}
	if len(events) == 0 {
		return es.AppendResult{Successful: true}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	streamID := events[0].StreamID
	current := uint64(len(s.events[streamID]))
	if err := es.CheckRevision(streamID, revision, current); err != nil {
		return es.AppendResult{}, err
	}

	committed := make([]es.Envelope, 0, len(events))
	for i := range events {
		env := events[i]
		current++
		env.Version = current
		env.GlobalVersion = uint64(len(s.global) + 1)
		s.events[streamID] = append(s.events[streamID], &env)
		s.global = append(s.global, &env)
		committed = append(committed, env)
	}

	return es.AppendResult{
		Successful:          true,
		StreamID:            streamID,
		NextExpectedVersion: current,
		Events:              committed,
	}, nil
}

// Close implements EventStore.Close.
func (s *StoreSpy) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	s.mu.Unlock()
	return nil
}

// ConflictingStore returns a StoreSpy whose Save always reports a revision conflict.
func ConflictingStore() *StoreSpy {
	store := NewStoreSpy()
	store.SaveFn = func(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
		expected, _ := revision.(es.Revision)
		return es.AppendResult{}, &es.StreamRevisionConflictError{
			Stream:           events[0].StreamID,
			ExpectedRevision: uint64(expected),
			ActualRevision:   uint64(expected) + 1,
		}
	}
	return store
}
