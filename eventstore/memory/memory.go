// Package memory is an in-memory event and snapshot store engine, mainly for
// tests and examples.
package memory

import (
	"context"
	"sync"

	"github.com/eventfold/eventfold/core"
)

// Memory holds streams, commit ids and snapshots in process memory.
type Memory struct {
	lock      sync.Mutex
	streams   map[string][]core.Event        // committed events per stream, in version order
	commits   map[string]map[string]struct{} // applied commit ids per stream
	snapshots map[string][]core.Snapshot     // snapshots per stream, in version order
}

// Create in memory event store
func Create() *Memory {
	return &Memory{
		streams:   make(map[string][]core.Event),
		commits:   make(map[string]map[string]struct{}),
		snapshots: make(map[string][]core.Snapshot),
	}
}

func key(bucket, id string) string {
	return bucket + "/" + id
}

// Commit persists a contiguous batch of events for one stream.
func (m *Memory) Commit(ctx context.Context, commit core.Commit) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	k := key(commit.Bucket, commit.AggregateID)
	if _, ok := m.commits[k][commit.CommitID]; ok {
		return core.ErrDuplicateCommit
	}

	current := core.Version(0)
	if events := m.streams[k]; len(events) > 0 {
		current = events[len(events)-1].Version
	}
	if current != commit.ExpectedVersion {
		return &core.ConcurrencyError{Expected: commit.ExpectedVersion, Actual: current}
	}
	if len(commit.Events) > 0 && commit.Events[0].Version != current+1 {
		return &core.ConcurrencyError{Expected: commit.ExpectedVersion, Actual: current}
	}

	m.streams[k] = append(m.streams[k], commit.Events...)
	if m.commits[k] == nil {
		m.commits[k] = make(map[string]struct{})
	}
	m.commits[k][commit.CommitID] = struct{}{}
	return nil
}

// Get returns stream events with version in (afterVersion, toVersion].
func (m *Memory) Get(ctx context.Context, bucket, id string, afterVersion, toVersion core.Version) (core.Iterator, error) {
	m.lock.Lock()
	events := make([]core.Event, 0)
	for _, e := range m.streams[key(bucket, id)] {
		if e.Version > afterVersion && e.Version <= toVersion {
			events = append(events, e)
		}
	}
	m.lock.Unlock()

	return func(yield func(core.Event, error) bool) {
		for _, e := range events {
			if !yield(e, nil) {
				return
			}
		}
	}, nil
}

// GetSnapshot returns the most recent snapshot at or below maxVersion.
func (m *Memory) GetSnapshot(ctx context.Context, bucket, id string, maxVersion core.Version) (core.Snapshot, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	snapshots := m.snapshots[key(bucket, id)]
	for i := len(snapshots) - 1; i >= 0; i-- {
		if snapshots[i].Version <= maxVersion {
			return snapshots[i], nil
		}
	}
	return core.Snapshot{}, core.ErrSnapshotNotFound
}

// SaveSnapshot stores a snapshot, keeping the per-stream list in version order.
func (m *Memory) SaveSnapshot(ctx context.Context, snapshot core.Snapshot) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	k := key(snapshot.Bucket, snapshot.AggregateID)
	snapshots := m.snapshots[k]
	for i, s := range snapshots {
		if s.Version == snapshot.Version {
			snapshots[i] = snapshot
			return nil
		}
		if s.Version > snapshot.Version {
			snapshots = append(snapshots[:i], append([]core.Snapshot{snapshot}, snapshots[i:]...)...)
			m.snapshots[k] = snapshots
			return nil
		}
	}
	m.snapshots[k] = append(snapshots, snapshot)
	return nil
}

// Close does nothing
func (m *Memory) Close() {}
