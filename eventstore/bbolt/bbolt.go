// Package bbolt is an event and snapshot store engine on top of a bbolt
// key/value database file.
package bbolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/eventfold/eventfold/core"
)

var (
	bucketEvents    = []byte("events")
	bucketCommits   = []byte("commits")
	bucketSnapshots = []byte("snapshots")
)

// BBolt stores each stream in a nested bucket keyed by bucket/id; event and
// snapshot keys are big-endian versions so cursor order is version order.
type BBolt struct {
	db *bolt.DB
}

// New opens (or creates) the database file.
func New(path string) (*BBolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEvents, bucketCommits, bucketSnapshots} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BBolt{db: db}, nil
}

// Close the database
func (b *BBolt) Close() error {
	return b.db.Close()
}

func streamKey(bucket, id string) []byte {
	return []byte(bucket + "/" + id)
}

func itob(v core.Version) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func btoi(buf []byte) core.Version {
	return core.Version(binary.BigEndian.Uint64(buf))
}

// Commit persists a contiguous batch of events for one stream.
func (b *BBolt) Commit(ctx context.Context, commit core.Commit) error {
	key := streamKey(commit.Bucket, commit.AggregateID)
	return b.db.Update(func(tx *bolt.Tx) error {
		commits, err := tx.Bucket(bucketCommits).CreateBucketIfNotExists(key)
		if err != nil {
			return err
		}
		if commits.Get([]byte(commit.CommitID)) != nil {
			return core.ErrDuplicateCommit
		}

		events, err := tx.Bucket(bucketEvents).CreateBucketIfNotExists(key)
		if err != nil {
			return err
		}
		current := core.Version(0)
		if k, _ := events.Cursor().Last(); k != nil {
			current = btoi(k)
		}
		if current != commit.ExpectedVersion {
			return &core.ConcurrencyError{Expected: commit.ExpectedVersion, Actual: current}
		}
		if len(commit.Events) > 0 && commit.Events[0].Version != current+1 {
			return &core.ConcurrencyError{Expected: commit.ExpectedVersion, Actual: current}
		}

		for _, event := range commit.Events {
			value, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if err := events.Put(itob(event.Version), value); err != nil {
				return err
			}
		}
		headers := commit.Headers
		if headers == nil {
			headers = []byte{}
		}
		return commits.Put([]byte(commit.CommitID), headers)
	})
}

// Get returns stream events with version in (afterVersion, toVersion].
func (b *BBolt) Get(ctx context.Context, bucket, id string, afterVersion, toVersion core.Version) (core.Iterator, error) {
	key := streamKey(bucket, id)
	events := make([]core.Event, 0)
	err := b.db.View(func(tx *bolt.Tx) error {
		stream := tx.Bucket(bucketEvents).Bucket(key)
		if stream == nil {
			return nil
		}
		c := stream.Cursor()
		for k, v := c.Seek(itob(afterVersion + 1)); k != nil; k, v = c.Next() {
			if btoi(k) > toVersion {
				break
			}
			var event core.Event
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return core.ZeroIterator(), nil
	}
	return func(yield func(core.Event, error) bool) {
		for _, e := range events {
			if !yield(e, nil) {
				return
			}
		}
	}, nil
}

// GetSnapshot returns the most recent snapshot at or below maxVersion.
func (b *BBolt) GetSnapshot(ctx context.Context, bucket, id string, maxVersion core.Version) (core.Snapshot, error) {
	key := streamKey(bucket, id)
	var snapshot core.Snapshot
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		snapshots := tx.Bucket(bucketSnapshots).Bucket(key)
		if snapshots == nil {
			return nil
		}
		c := snapshots.Cursor()
		k, v := c.Seek(itob(maxVersion))
		if k == nil || bytes.Compare(k, itob(maxVersion)) > 0 {
			k, v = c.Prev()
		}
		if k == nil {
			return nil
		}
		if err := json.Unmarshal(v, &snapshot); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return core.Snapshot{}, err
	}
	if !found {
		return core.Snapshot{}, core.ErrSnapshotNotFound
	}
	return snapshot, nil
}

// SaveSnapshot stores a snapshot keyed by its version.
func (b *BBolt) SaveSnapshot(ctx context.Context, snapshot core.Snapshot) error {
	key := streamKey(snapshot.Bucket, snapshot.AggregateID)
	return b.db.Update(func(tx *bolt.Tx) error {
		snapshots, err := tx.Bucket(bucketSnapshots).CreateBucketIfNotExists(key)
		if err != nil {
			return err
		}
		value, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		return snapshots.Put(itob(snapshot.Version), value)
	})
}
