package core

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// ErrConcurrency when the stored version of a stream differs from the version
// the writer based its commit on.
var ErrConcurrency = errors.New("concurrency error")

// ErrDuplicateCommit when a commit id was already applied to the stream.
var ErrDuplicateCommit = errors.New("duplicate commit")

// ErrSnapshotNotFound returns if no snapshot exists at or below the requested version.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ConcurrencyError carries the version detail of a rejected commit.
// It unwraps to ErrConcurrency.
type ConcurrencyError struct {
	Expected Version
	Actual   Version
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency error: commit expected stream at version %d but store is at %d", e.Expected, e.Actual)
}

func (e *ConcurrencyError) Unwrap() error {
	return ErrConcurrency
}

// Iterator is the sequence an event store Get returns.
type Iterator iter.Seq2[Event, error]

// ZeroIterator returns no data
func ZeroIterator() Iterator {
	return func(yield func(Event, error) bool) {}
}

// EventStore interface expose the methods an event store engine must uphold.
type EventStore interface {
	// Get returns the committed events of the stream with versions in
	// (afterVersion, toVersion], in version order.
	Get(ctx context.Context, bucket, id string, afterVersion, toVersion Version) (Iterator, error)
	// Commit persists the batch as a contiguous range following
	// Commit.ExpectedVersion. It returns ErrConcurrency (possibly via a
	// *ConcurrencyError) when the stream has advanced past ExpectedVersion,
	// and ErrDuplicateCommit when the commit id was already applied.
	Commit(ctx context.Context, commit Commit) error
}

// SnapshotStore interface expose the methods a snapshot store engine must uphold.
type SnapshotStore interface {
	// GetSnapshot returns the most recent snapshot with Version <= maxVersion.
	GetSnapshot(ctx context.Context, bucket, id string, maxVersion Version) (Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
}
