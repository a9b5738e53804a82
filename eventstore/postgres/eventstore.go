// Package postgres provides a PostgreSQL-backed EventStore on top of pgx.
//
// Optimistic concurrency is enforced twice: the expected revision is checked
// inside the append transaction, and the (stream_id, version) unique
// constraint rejects a concurrent writer that passed the same check.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/eventstore/record"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

var _ es.EventStore = (*Store)(nil)

// Store is a pgxpool-backed EventStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewPool creates and validates a pgx connection pool.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewEventStore wraps pool. The store owns the pool and closes it on Close.
func NewEventStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to connString, optionally applying migrations first.
func Open(ctx context.Context, connString string, runMigrations bool) (*Store, error) {
	if runMigrations {
		if err := Migrate(connString); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	pool, err := NewPool(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return NewEventStore(pool), nil
}

// Migrate executes the embedded migrations over a database/sql connection.
func Migrate(dsn string) error {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	driver, err := pgmigrate.WithInstance(sqlDB, &pgmigrate.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *Store) Save(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
	if len(events) == 0 {
		return es.AppendResult{Successful: true}, nil
	}

	streamID, err := record.SameStream(events)
	if err != nil {
		return es.AppendResult{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return es.AppendResult{}, fmt.Errorf("begin append to %q: %w", streamID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	version, err := currentVersion(ctx, tx, streamID)
	if err != nil {
		return es.AppendResult{}, err
	}
	if err := es.CheckRevision(streamID, revision, version); err != nil {
		return es.AppendResult{}, err
	}
	observed := version

	batch := &pgx.Batch{}
	committed := make([]es.Envelope, 0, len(events))
	for _, env := range events {
		version++
		env.Version = version
		rec, err := record.FromEnvelope(env)
		if err != nil {
			return es.AppendResult{}, err
		}
		batch.Queue(
			`INSERT INTO events (event_id, stream_id, version, event_type, data, metadata, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING global_position`,
			rec.EventID.String(), rec.StreamID, int64(rec.Version), rec.Type,
			[]byte(rec.Data), []byte(rec.Metadata), rec.OccurredAt,
		)
		committed = append(committed, env)
	}
	results := tx.SendBatch(ctx, batch)
	for i := range committed {
		var global int64
		if err := results.QueryRow().Scan(&global); err != nil {
			_ = results.Close()
			return es.AppendResult{}, s.appendErr(ctx, streamID, observed, err)
		}
		committed[i].GlobalVersion = uint64(global)
	}
	if err := results.Close(); err != nil {
		return es.AppendResult{}, s.appendErr(ctx, streamID, observed, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return es.AppendResult{}, s.appendErr(ctx, streamID, observed, err)
	}

	return es.AppendResult{
		Successful:          true,
		StreamID:            streamID,
		NextExpectedVersion: version,
		Events:              committed,
	}, nil
}

// appendErr turns a unique violation into a revision conflict, reporting the
// version the concurrent writer left behind.
func (s *Store) appendErr(ctx context.Context, streamID string, expected uint64, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return fmt.Errorf("append to %q: %w", streamID, err)
	}
	actual, readErr := currentVersion(ctx, s.pool, streamID)
	if readErr != nil {
		actual = expected + 1
	}
	return &es.StreamRevisionConflictError{
		Stream:           streamID,
		ExpectedRevision: expected,
		ActualRevision:   actual,
	}
}

func (s *Store) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	return s.LoadStreamFrom(ctx, id, 0)
}

func (s *Store) LoadStreamFrom(ctx context.Context, id string, after uint64) (*es.Iterator[*es.Envelope], error) {
	version, err := currentVersion(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("load stream %q: %w", id, es.ErrStreamNotFound)
	}
	if after > version {
		return nil, fmt.Errorf(
			"load stream %q: requested events after %d but stream has %d: %w",
			id, after, version, es.ErrInvalidRevision,
		)
	}

	records, err := s.query(ctx,
		`SELECT global_position, event_id::text, stream_id, version, event_type, data, metadata, occurred_at
		 FROM events WHERE stream_id = $1 AND version > $2 ORDER BY version`,
		id, int64(after),
	)
	if err != nil {
		return nil, fmt.Errorf("load stream %q: %w", id, err)
	}
	return decode(records), nil
}

func (s *Store) LoadFromAll(ctx context.Context, after uint64) (*es.Iterator[*es.Envelope], error) {
	records, err := s.query(ctx,
		`SELECT global_position, event_id::text, stream_id, version, event_type, data, metadata, occurred_at
		 FROM events WHERE global_position > $1 ORDER BY global_position`,
		int64(after),
	)
	if err != nil {
		return nil, fmt.Errorf("load all after %d: %w", after, err)
	}
	return decode(records), nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func currentVersion(ctx context.Context, q queryer, streamID string) (uint64, error) {
	var version int64
	err := q.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1`, streamID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read version of %q: %w", streamID, err)
	}
	return uint64(version), nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]record.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		var (
			rec     record.Record
			eventID string
			global  int64
			version int64
		)
		if err := rows.Scan(&global, &eventID, &rec.StreamID, &version, &rec.Type, &rec.Data, &rec.Metadata, &rec.OccurredAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(eventID)
		if err != nil {
			return nil, fmt.Errorf("corrupt event id %q: %w", eventID, err)
		}
		rec.EventID = id
		rec.GlobalVersion = uint64(global)
		rec.Version = uint64(version)
		records = append(records, rec)
	}
	return records, rows.Err()
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
