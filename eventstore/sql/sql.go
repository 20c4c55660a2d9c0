// Package sql is an event and snapshot store engine on database/sql with a
// SQLite driver.
package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eventfold/eventfold/core"
)

// SQL event store handler
type SQL struct {
	db *sql.DB
	// serializes writers, SQLite allows only one at a time
	lock sync.Mutex
}

// Open connects to the database and applies migrations.
func Open(dsn string) (*SQL, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps in-memory databases visible across queries
	db.SetMaxOpenConns(1)
	if err := MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQL{db: db}, nil
}

// New wraps an existing connection and applies migrations.
func New(db *sql.DB) (*SQL, error) {
	if err := MigrateUp(db); err != nil {
		return nil, err
	}
	return &SQL{db: db}, nil
}

// Close the connection
func (s *SQL) Close() error {
	return s.db.Close()
}

// Commit persists a contiguous batch of events for one stream.
func (s *SQL) Commit(ctx context.Context, commit core.Commit) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not start a write transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM commits WHERE bucket = ? AND id = ? AND commit_id = ?`,
		commit.Bucket, commit.AggregateID, commit.CommitID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return core.ErrDuplicateCommit
	}

	current := core.Version(0)
	var version uint64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM events WHERE bucket = ? AND id = ? ORDER BY version DESC LIMIT 1`,
		commit.Bucket, commit.AggregateID).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	} else if err == nil {
		current = core.Version(version)
	}
	if current != commit.ExpectedVersion {
		return &core.ConcurrencyError{Expected: commit.ExpectedVersion, Actual: current}
	}
	if len(commit.Events) > 0 && commit.Events[0].Version != current+1 {
		return &core.ConcurrencyError{Expected: commit.ExpectedVersion, Actual: current}
	}

	insert := `INSERT INTO events (bucket, id, version, commit_id, reason, type, timestamp, data, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, event := range commit.Events {
		_, err := tx.ExecContext(ctx, insert,
			event.Bucket, event.AggregateID, uint64(event.Version), commit.CommitID,
			event.Reason, event.AggregateType, event.Timestamp.Format(time.RFC3339Nano),
			event.Data, event.Metadata)
		if err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO commits (bucket, id, commit_id, headers) VALUES (?, ?, ?, ?)`,
		commit.Bucket, commit.AggregateID, commit.CommitID, commit.Headers)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Get returns stream events with version in (afterVersion, toVersion].
func (s *SQL) Get(ctx context.Context, bucket, id string, afterVersion, toVersion core.Version) (core.Iterator, error) {
	// clamp to the SQLite signed integer range
	to := uint64(toVersion)
	if toVersion == core.VersionMax {
		to = 1<<63 - 1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT bucket, id, version, commit_id, reason, type, timestamp, data, metadata
		 FROM events WHERE bucket = ? AND id = ? AND version > ? AND version <= ? ORDER BY version ASC`,
		bucket, id, uint64(afterVersion), to)
	if err != nil {
		return nil, err
	}
	return func(yield func(core.Event, error) bool) {
		defer rows.Close()
		for rows.Next() {
			var event core.Event
			var version uint64
			var timestamp string
			if err := rows.Scan(&event.Bucket, &event.AggregateID, &version, &event.CommitID,
				&event.Reason, &event.AggregateType, &timestamp, &event.Data, &event.Metadata); err != nil {
				yield(core.Event{}, err)
				return
			}
			event.Version = core.Version(version)
			ts, err := time.Parse(time.RFC3339Nano, timestamp)
			if err != nil {
				yield(core.Event{}, err)
				return
			}
			event.Timestamp = ts
			if !yield(event, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(core.Event{}, err)
		}
	}, nil
}

// GetSnapshot returns the most recent snapshot at or below maxVersion.
func (s *SQL) GetSnapshot(ctx context.Context, bucket, id string, maxVersion core.Version) (core.Snapshot, error) {
	max := uint64(maxVersion)
	if maxVersion == core.VersionMax {
		max = 1<<63 - 1
	}
	var snapshot core.Snapshot
	var version uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT bucket, id, version, state, metadata FROM snapshots
		 WHERE bucket = ? AND id = ? AND version <= ? ORDER BY version DESC LIMIT 1`,
		bucket, id, max).Scan(&snapshot.Bucket, &snapshot.AggregateID, &version, &snapshot.State, &snapshot.Metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, core.ErrSnapshotNotFound
	}
	if err != nil {
		return core.Snapshot{}, err
	}
	snapshot.Version = core.Version(version)
	return snapshot, nil
}

// SaveSnapshot stores a snapshot, replacing any existing one at the same version.
func (s *SQL) SaveSnapshot(ctx context.Context, snapshot core.Snapshot) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (bucket, id, version, state, metadata) VALUES (?, ?, ?, ?, ?)`,
		snapshot.Bucket, snapshot.AggregateID, uint64(snapshot.Version), snapshot.State, snapshot.Metadata)
	return err
}
