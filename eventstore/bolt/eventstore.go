// Package bolt stores event streams in a single bbolt file.
//
// Every stream is a nested bucket keyed by big-endian version, and the "all"
// bucket records the global order as references into those buckets. bbolt
// serialises write transactions, so the revision check and the append of a
// batch commit together.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/eventstore/record"
	bolt "go.etcd.io/bbolt"
)

var (
	streamsBucket = []byte("streams")
	allBucket     = []byte("all")
)

var _ es.EventStore = (*Store)(nil)

// Store is a bbolt-backed EventStore.
type Store struct {
	db *bolt.DB
}

type globalRef struct {
	StreamID string `json:"streamId"`
	Version  uint64 `json:"version"`
}

// Open creates or opens the database file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(streamsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(allBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Save(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
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

	var version uint64
	committed := make([]es.Envelope, 0, len(events))
	err = s.db.Update(func(tx *bolt.Tx) error {
		committed = committed[:0]
		stream, err := tx.Bucket(streamsBucket).CreateBucketIfNotExists([]byte(streamID))
		if err != nil {
			return err
		}
		all := tx.Bucket(allBucket)

		version = stream.Sequence()
		if err := es.CheckRevision(streamID, revision, version); err != nil {
			return err
		}

		for _, env := range events {
			global, err := all.NextSequence()
			if err != nil {
				return err
			}
			version++
			env.Version = version
			env.GlobalVersion = global

			rec, err := record.FromEnvelope(env)
			if err != nil {
				return err
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := stream.Put(key(version), data); err != nil {
				return err
			}
			ref, err := json.Marshal(globalRef{StreamID: streamID, Version: version})
			if err != nil {
				return err
			}
			if err := all.Put(key(global), ref); err != nil {
				return err
			}
			committed = append(committed, env)
		}
		return stream.SetSequence(version)
	})
	if err != nil {
		if errors.Is(err, bolt.ErrDatabaseNotOpen) {
			return es.AppendResult{}, es.ErrStoreClosed
		}
		return es.AppendResult{}, err
	}

	return es.AppendResult{
		Successful:          true,
		StreamID:            streamID,
		NextExpectedVersion: version,
		Events:              committed,
	}, nil
}

func (s *Store) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	return s.LoadStreamFrom(ctx, id, 0)
}

func (s *Store) LoadStreamFrom(ctx context.Context, id string, after uint64) (*es.Iterator[*es.Envelope], error) {
	var records []record.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		stream := tx.Bucket(streamsBucket).Bucket([]byte(id))
		if stream == nil || stream.Sequence() == 0 {
			return fmt.Errorf("load stream %q: %w", id, es.ErrStreamNotFound)
		}
		if after > stream.Sequence() {
			return fmt.Errorf(
				"load stream %q: requested events after %d but stream has %d: %w",
				id, after, stream.Sequence(), es.ErrInvalidRevision,
			)
		}

		c := stream.Cursor()
		for k, v := c.Seek(key(after + 1)); k != nil; k, v = c.Next() {
			var rec record.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("load stream %q: corrupt event at version %d: %w", id, binary.BigEndian.Uint64(k), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, closedErr(err)
	}
	return decode(records), nil
}

func (s *Store) LoadFromAll(ctx context.Context, after uint64) (*es.Iterator[*es.Envelope], error) {
	var records []record.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		streams := tx.Bucket(streamsBucket)
		c := tx.Bucket(allBucket).Cursor()
		for k, v := c.Seek(key(after + 1)); k != nil; k, v = c.Next() {
			var ref globalRef
			if err := json.Unmarshal(v, &ref); err != nil {
				return fmt.Errorf("load all: corrupt reference at %d: %w", binary.BigEndian.Uint64(k), err)
			}
			stream := streams.Bucket([]byte(ref.StreamID))
			if stream == nil {
				return fmt.Errorf("load all: dangling reference to %q: %w", ref.StreamID, es.ErrStreamNotFound)
			}
			var rec record.Record
			if err := json.Unmarshal(stream.Get(key(ref.Version)), &rec); err != nil {
				return fmt.Errorf("load all: corrupt event %s@%d: %w", ref.StreamID, ref.Version, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, closedErr(err)
	}
	return decode(records), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func closedErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return es.ErrStoreClosed
	}
	return err
}

func decode(records []record.Record) *es.Iterator[*es.Envelope] {
	index := 0
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if index >= len(records) {
			return nil, io.EOF
		}
		rec := records[index]
		index++
		return rec.Envelope()
	})
}
