// Package suite is the shared acceptance suite every store engine must pass.
package suite

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/eventfold/eventfold/core"
)

var seededRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// AggregateID returns a random stream identifier so suite runs don't collide.
func AggregateID() string {
	return fmt.Sprintf("%d", seededRand.Intn(999999999999))
}

// Store bundles the two engine contracts most engines implement together.
type Store interface {
	core.EventStore
	core.SnapshotStore
}

type storeFunc func() (Store, func(), error)

// Test runs the acceptance suite against the engine storeFunc produces.
func Test(t *testing.T, esFunc storeFunc) {
	tests := []struct {
		title string
		run   func(es Store) error
	}{
		{"should commit and get events", commitAndGetEvents},
		{"should get events after version", getEventsAfterVersion},
		{"should get events up to version", getEventsToVersion},
		{"should reject a commit based on a stale version", rejectStaleCommit},
		{"should reject a commit with a version gap", rejectVersionGap},
		{"should detect a duplicate commit id", detectDuplicateCommit},
		{"should keep streams isolated by bucket", isolateBuckets},
		{"should return no events for an unknown stream", getUnknownStream},
		{"should save and get snapshots at or below a version", snapshotAtOrBelowVersion},
		{"should return snapshot not found", snapshotNotFound},
	}

	for _, test := range tests {
		t.Run(test.title, func(t *testing.T) {
			es, closeFunc, err := esFunc()
			if err != nil {
				t.Fatal(err)
			}
			err = test.run(es)
			if err != nil {
				// t.Error instead of t.Fatal to make sure the closeFunc is executed
				t.Error(err)
			}
			closeFunc()
		})
	}
}

const aggregateType = "PaymentPlan"

var timestamp = time.Now().UTC().Round(time.Millisecond)

func testEvents(bucket, id string, from, to core.Version) []core.Event {
	events := make([]core.Event, 0, to-from+1)
	for v := from; v <= to; v++ {
		events = append(events, core.Event{
			Bucket:        bucket,
			AggregateID:   id,
			AggregateType: aggregateType,
			Version:       v,
			Reason:        "InstallmentPaid",
			Timestamp:     timestamp,
			Data:          []byte(fmt.Sprintf(`{"amount":%d}`, v)),
			Metadata:      []byte(`{"source":"suite"}`),
		})
	}
	return events
}

func commit(bucket, id, commitID string, expected core.Version, events []core.Event) core.Commit {
	return core.Commit{
		Bucket:          bucket,
		AggregateID:     id,
		CommitID:        commitID,
		ExpectedVersion: expected,
		Events:          events,
		Headers:         []byte(`{"suite":true}`),
	}
}

func collect(es core.EventStore, bucket, id string, after, to core.Version) ([]core.Event, error) {
	iterator, err := es.Get(context.Background(), bucket, id, after, to)
	if err != nil {
		return nil, err
	}
	events := make([]core.Event, 0)
	for e, err := range iterator {
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func commitAndGetEvents(es Store) error {
	id := AggregateID()
	err := es.Commit(context.Background(), commit("default", id, "c1", 0, testEvents("default", id, 1, 3)))
	if err != nil {
		return err
	}
	fetched, err := collect(es, "default", id, 0, core.VersionMax)
	if err != nil {
		return err
	}
	if len(fetched) != 3 {
		return fmt.Errorf("expected 3 events, got %d", len(fetched))
	}
	for i, e := range fetched {
		if e.Version != core.Version(i+1) {
			return fmt.Errorf("event %d has version %d", i, e.Version)
		}
		if e.Reason != "InstallmentPaid" {
			return fmt.Errorf("unexpected reason %q", e.Reason)
		}
	}
	return nil
}

func getEventsAfterVersion(es Store) error {
	id := AggregateID()
	err := es.Commit(context.Background(), commit("default", id, "c1", 0, testEvents("default", id, 1, 5)))
	if err != nil {
		return err
	}
	fetched, err := collect(es, "default", id, 3, core.VersionMax)
	if err != nil {
		return err
	}
	if len(fetched) != 2 {
		return fmt.Errorf("expected 2 events after version 3, got %d", len(fetched))
	}
	if fetched[0].Version != 4 {
		return fmt.Errorf("expected first version 4, got %d", fetched[0].Version)
	}
	return nil
}

func getEventsToVersion(es Store) error {
	id := AggregateID()
	err := es.Commit(context.Background(), commit("default", id, "c1", 0, testEvents("default", id, 1, 5)))
	if err != nil {
		return err
	}
	fetched, err := collect(es, "default", id, 0, 2)
	if err != nil {
		return err
	}
	if len(fetched) != 2 {
		return fmt.Errorf("expected 2 events up to version 2, got %d", len(fetched))
	}
	return nil
}

func rejectStaleCommit(es Store) error {
	id := AggregateID()
	ctx := context.Background()
	if err := es.Commit(ctx, commit("default", id, "c1", 0, testEvents("default", id, 1, 2))); err != nil {
		return err
	}
	// a second writer that also observed version 0
	err := es.Commit(ctx, commit("default", id, "c2", 0, testEvents("default", id, 1, 1)))
	if !errors.Is(err, core.ErrConcurrency) {
		return fmt.Errorf("expected concurrency error, got %v", err)
	}
	var detail *core.ConcurrencyError
	if errors.As(err, &detail) && detail.Actual != 2 {
		return fmt.Errorf("expected actual version 2, got %d", detail.Actual)
	}
	return nil
}

func rejectVersionGap(es Store) error {
	id := AggregateID()
	err := es.Commit(context.Background(), commit("default", id, "c1", 0, testEvents("default", id, 2, 3)))
	if !errors.Is(err, core.ErrConcurrency) {
		return fmt.Errorf("expected concurrency error for version gap, got %v", err)
	}
	return nil
}

func detectDuplicateCommit(es Store) error {
	id := AggregateID()
	ctx := context.Background()
	if err := es.Commit(ctx, commit("default", id, "c1", 0, testEvents("default", id, 1, 2))); err != nil {
		return err
	}
	err := es.Commit(ctx, commit("default", id, "c1", 2, testEvents("default", id, 3, 3)))
	if !errors.Is(err, core.ErrDuplicateCommit) {
		return fmt.Errorf("expected duplicate commit, got %v", err)
	}
	fetched, err := collect(es, "default", id, 0, core.VersionMax)
	if err != nil {
		return err
	}
	if len(fetched) != 2 {
		return fmt.Errorf("duplicate commit must not append events, stream has %d", len(fetched))
	}
	return nil
}

func isolateBuckets(es Store) error {
	id := AggregateID()
	ctx := context.Background()
	if err := es.Commit(ctx, commit("tenant-a", id, "c1", 0, testEvents("tenant-a", id, 1, 2))); err != nil {
		return err
	}
	if err := es.Commit(ctx, commit("tenant-b", id, "c2", 0, testEvents("tenant-b", id, 1, 1))); err != nil {
		return err
	}
	fetched, err := collect(es, "tenant-b", id, 0, core.VersionMax)
	if err != nil {
		return err
	}
	if len(fetched) != 1 {
		return fmt.Errorf("expected 1 event in tenant-b, got %d", len(fetched))
	}
	return nil
}

func getUnknownStream(es Store) error {
	fetched, err := collect(es, "default", AggregateID(), 0, core.VersionMax)
	if err != nil {
		return err
	}
	if len(fetched) != 0 {
		return fmt.Errorf("expected no events, got %d", len(fetched))
	}
	return nil
}

func snapshotAtOrBelowVersion(es Store) error {
	id := AggregateID()
	ctx := context.Background()
	for _, v := range []core.Version{3, 6, 9} {
		snapshot := core.Snapshot{
			Bucket:      "default",
			AggregateID: id,
			Version:     v,
			State:       []byte(fmt.Sprintf(`{"at":%d}`, v)),
		}
		if err := es.SaveSnapshot(ctx, snapshot); err != nil {
			return err
		}
	}
	snap, err := es.GetSnapshot(ctx, "default", id, 7)
	if err != nil {
		return err
	}
	if snap.Version != 6 {
		return fmt.Errorf("expected snapshot at version 6, got %d", snap.Version)
	}
	snap, err = es.GetSnapshot(ctx, "default", id, core.VersionMax)
	if err != nil {
		return err
	}
	if snap.Version != 9 {
		return fmt.Errorf("expected latest snapshot at version 9, got %d", snap.Version)
	}
	_, err = es.GetSnapshot(ctx, "default", id, 2)
	if !errors.Is(err, core.ErrSnapshotNotFound) {
		return fmt.Errorf("expected snapshot not found below version 3, got %v", err)
	}
	return nil
}

func snapshotNotFound(es Store) error {
	_, err := es.GetSnapshot(context.Background(), "default", AggregateID(), core.VersionMax)
	if !errors.Is(err, core.ErrSnapshotNotFound) {
		return fmt.Errorf("expected snapshot not found, got %v", err)
	}
	return nil
}
