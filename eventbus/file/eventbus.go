// Package file is an EventBus spooling published events to one directory per
// subscriber. Pending files survive a restart and are delivered when the
// subscriber comes back under the same name.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/eventstore/record"
)

var (
	_ es.EventBus       = (*EventBus)(nil)
	_ es.EventPublisher = (*EventBus)(nil)
)

const (
	tmpSuffix = ".tmp"
	badSuffix = ".bad"
)

var errUndecodable = errors.New("undecodable event file")

type subscriberConfig struct {
	types map[string]struct{}
}

// WithEventTypes restricts a subscription to the named event types.
func WithEventTypes(types ...string) es.SubscriberOption {
	return func(cfg any) {
		c, ok := cfg.(*subscriberConfig)
		if !ok {
			panic(fmt.Sprintf("WithEventTypes: expected *file.subscriberConfig, got %T", cfg))
		}
		for _, t := range types {
			c.types[t] = struct{}{}
		}
	}
}

type subscriber struct {
	name    string
	dir     string
	handler es.EventHandler
	types   map[string]struct{}
	cancel  context.CancelFunc
}

func (s *subscriber) accepts(env es.Envelope) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[env.Event.EventType()]
	return ok
}

// EventBus writes every published envelope as a JSON record file into the
// directory of each matching subscriber. A subscriber deletes a file once its
// handler succeeded; a failed file is retried on the next change to the
// directory.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	root   string
	closed bool
	wg     sync.WaitGroup
	errs   chan error
	seq    atomic.Uint64
}

// NewEventBus constructs the bus in root dir.
func NewEventBus(root string) (*EventBus, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &EventBus{
		root: root,
		subs: make(map[string]*subscriber),
		errs: make(chan error, 64),
	}, nil
}

// Subscribe accepts WithEventTypes. Files left in the subscriber directory by
// a previous run are delivered first.
func (b *EventBus) Subscribe(ctx context.Context, name string, handler es.EventHandler, opts ...es.SubscriberOption) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid subscriber name %q", name)
	}
	cfg := &subscriberConfig{types: make(map[string]struct{})}
	for _, o := range opts {
		o(cfg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return es.ErrEventBusClosed
	}
	if _, exists := b.subs[name]; exists {
		return fmt.Errorf("subscriber %q already exists", name)
	}

	dir := filepath.Join(b.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	s := &subscriber{
		name:    name,
		dir:     dir,
		handler: handler,
		types:   cfg.types,
		cancel:  cancel,
	}
	b.subs[name] = s

	b.wg.Add(1)
	go b.runSubscriber(workerCtx, s, watcher)

	go func() {
		select {
		case <-ctx.Done():
			b.removeSubscriber(name)
		case <-workerCtx.Done():
		}
	}()

	return nil
}

// Publish writes events to all matching subscriber directories.
func (b *EventBus) Publish(ctx context.Context, events []es.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return es.ErrEventBusClosed
	}

	for _, env := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := record.FromEnvelope(env)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		for _, s := range b.subs {
			if !s.accepts(env) {
				continue
			}
			filename := fmt.Sprintf("%020d-%020d.json", time.Now().UnixNano(), b.seq.Add(1))
			path := filepath.Join(s.dir, filename)

			tmp := path + tmpSuffix
			if err := os.WriteFile(tmp, data, 0o644); err != nil {
				return fmt.Errorf("subscriber %q: %w", s.name, err)
			}
			if err := os.Rename(tmp, path); err != nil {
				return fmt.Errorf("subscriber %q: %w", s.name, err)
			}
		}
	}
	return nil
}

func (b *EventBus) Errors() <-chan error {
	return b.errs
}

// runSubscriber watches the subscriber directory for new events.
func (b *EventBus) runSubscriber(ctx context.Context, s *subscriber, watcher *fsnotify.Watcher) {
	defer b.wg.Done()
	defer watcher.Close()

	// crash recovery
	b.processDir(ctx, s)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) == 0 || isPending(ev.Name) {
				continue
			}
			b.processDir(ctx, s)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			b.report(fmt.Errorf("subscriber %q: %w", s.name, err))
		}
	}
}

// processDir handles the spooled files of s in publication order. It stops at
// the first failing handler so that later events wait for the retry.
func (b *EventBus) processDir(ctx context.Context, s *subscriber) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		b.report(fmt.Errorf("subscriber %q: %w", s.name, err))
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || isPending(e.Name()) || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		if err := b.processFile(ctx, s, filepath.Join(s.dir, name)); err != nil {
			b.report(fmt.Errorf("subscriber %q: %s: %w", s.name, name, err))
			if !errors.Is(err, errUndecodable) {
				return
			}
		}
	}
}

// processFile reads and handles a single event file, then deletes it.
// Undecodable files are set aside with a .bad suffix.
func (b *EventBus) processFile(ctx context.Context, s *subscriber, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// already handled by an earlier pass
		return nil
	}
	if err != nil {
		return err
	}

	var rec record.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = os.Rename(path, path+badSuffix)
		return fmt.Errorf("%w: %w", errUndecodable, err)
	}
	env, err := rec.Envelope()
	if err != nil {
		_ = os.Rename(path, path+badSuffix)
		return fmt.Errorf("%w: %w", errUndecodable, err)
	}

	if err := s.handler.Handle(ctx, env); err != nil && !errors.Is(err, es.ErrSkippedEvent) {
		return err
	}
	return os.Remove(path)
}

func (b *EventBus) report(err error) {
	select {
	case b.errs <- err:
	default:
		// Drop error if channel full
	}
}

// removeSubscriber cancels and removes a subscriber. Its directory is kept.
func (b *EventBus) removeSubscriber(name string) {
	b.mu.Lock()
	s, ok := b.subs[name]
	if ok {
		delete(b.subs, name)
	}
	b.mu.Unlock()

	if ok {
		s.cancel()
	}
}

// Close shuts down the bus and waits for workers.
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, s := range b.subs {
		s.cancel()
	}
	b.subs = nil
	b.mu.Unlock()

	b.wg.Wait()
	close(b.errs)
	return nil
}

func isPending(name string) bool {
	return strings.HasSuffix(name, tmpSuffix) || strings.HasSuffix(name, badSuffix)
}
