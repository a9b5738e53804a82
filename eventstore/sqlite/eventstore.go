// Package sqlite provides a SQLite-backed EventStore.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/eventstore/record"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ es.EventStore = (*Store)(nil)

// Store persists events in a single SQLite table. Writes go through one
// connection, so a revision check and its inserts run without interleaving.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path and applies the embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	if err := Migrate(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Migrate applies every pending migration to the database behind dsn.
func Migrate(dsn string) error {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	// closed by m.Close through the driver

	driver, err := sqlitemigrate.WithInstance(sqlDB, &sqlitemigrate.Config{})
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		_ = driver.Close()
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		_ = driver.Close()
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
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

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return es.AppendResult{}, closedErr(fmt.Errorf("begin append to %q: %w", streamID, err))
	}
	defer func() { _ = tx.Rollback() }()

	version, err := currentVersion(ctx, tx, streamID)
	if err != nil {
		return es.AppendResult{}, err
	}
	if err := es.CheckRevision(streamID, revision, version); err != nil {
		return es.AppendResult{}, err
	}
	observed := version

	committed := make([]es.Envelope, 0, len(events))
	for _, env := range events {
		version++
		env.Version = version
		rec, err := record.FromEnvelope(env)
		if err != nil {
			return es.AppendResult{}, err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, stream_id, version, event_type, data, metadata, occurred_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.EventID.String(), rec.StreamID, int64(rec.Version), rec.Type,
			[]byte(rec.Data), []byte(rec.Metadata), rec.OccurredAt.UnixNano(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return es.AppendResult{}, &es.StreamRevisionConflictError{
					Stream:           streamID,
					ExpectedRevision: observed,
					ActualRevision:   observed + 1,
				}
			}
			return es.AppendResult{}, fmt.Errorf("append to %q at version %d: %w", streamID, version, err)
		}
		global, err := res.LastInsertId()
		if err != nil {
			return es.AppendResult{}, fmt.Errorf("append to %q at version %d: %w", streamID, version, err)
		}
		env.GlobalVersion = uint64(global)
		committed = append(committed, env)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return es.AppendResult{}, &es.StreamRevisionConflictError{Stream: streamID, ExpectedRevision: observed, ActualRevision: observed + 1}
		}
		return es.AppendResult{}, fmt.Errorf("commit append to %q: %w", streamID, err)
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
	version, err := currentVersion(ctx, s.sqlDB, id)
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
		`SELECT global_position, event_id, stream_id, version, event_type, data, metadata, occurred_at
		 FROM events WHERE stream_id = ? AND version > ? ORDER BY version`,
		id, int64(after),
	)
	if err != nil {
		return nil, fmt.Errorf("load stream %q: %w", id, err)
	}
	return decode(records), nil
}

func (s *Store) LoadFromAll(ctx context.Context, after uint64) (*es.Iterator[*es.Envelope], error) {
	records, err := s.query(ctx,
		`SELECT global_position, event_id, stream_id, version, event_type, data, metadata, occurred_at
		 FROM events WHERE global_position > ? ORDER BY global_position`,
		int64(after),
	)
	if err != nil {
		return nil, fmt.Errorf("load all after %d: %w", after, err)
	}
	return decode(records), nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentVersion(ctx context.Context, q queryer, streamID string) (uint64, error) {
	var version int64
	err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?`, streamID).Scan(&version)
	if err != nil {
		return 0, closedErr(fmt.Errorf("read version of %q: %w", streamID, err))
	}
	return uint64(version), nil
}

// query reads every matching row before returning so the single connection
// is free again when callers go on to append.
func (s *Store) query(ctx context.Context, query string, args ...any) ([]record.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, closedErr(err)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		var (
			rec        record.Record
			eventID    string
			global     int64
			version    int64
			occurredAt int64
			data       []byte
			metadata   []byte
		)
		if err := rows.Scan(&global, &eventID, &rec.StreamID, &version, &rec.Type, &data, &metadata, &occurredAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(eventID)
		if err != nil {
			return nil, fmt.Errorf("corrupt event id %q: %w", eventID, err)
		}
		rec.EventID = id
		rec.GlobalVersion = uint64(global)
		rec.Version = uint64(version)
		rec.Data = data
		rec.Metadata = metadata
		rec.OccurredAt = time.Unix(0, occurredAt).UTC()
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

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

func closedErr(err error) error {
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "sql: database is closed") {
		return fmt.Errorf("%w: %w", es.ErrStoreClosed, err)
	}
	return err
}
