package eventfold

import "github.com/eventfold/eventfold/core"

// SnapshotReason is the reason recorded on snapshot marker events.
const SnapshotReason = "stream.snapshot"

type SerializeFunc func(v interface{}) ([]byte, error)
type DeserializeFunc func(data []byte, v interface{}) error

// Snapshotter is implemented by aggregates that opt in to snapshot capture.
// After each committed batch the repository asks ShouldSnapshot; a true answer
// makes it capture a memento, stage a marker on the stream and persist the
// snapshot once the commit succeeds. Restoration is the syntactic inverse:
// the memento repopulates internal state without replaying the events it
// summarizes.
type Snapshotter interface {
	ShouldSnapshot() bool
	SerializeSnapshot(SerializeFunc) ([]byte, error)
	DeserializeSnapshot(DeserializeFunc, []byte) error
}

// snapshotTaken is the payload of a snapshot marker event. It records the
// stream and commit versions as of the decision point; the marker itself
// occupies the next version slot of the stream.
type snapshotTaken struct {
	StreamVersion core.Version `json:"streamVersion"`
	CommitVersion core.Version `json:"commitVersion"`
	State         []byte       `json:"state"`
}

// restoreSnapshot rebuilds aggregate state from a stored snapshot and aligns
// the root's version bookkeeping with the capture point.
func restoreSnapshot(a Aggregate, snap *core.Snapshot, dec DeserializeFunc) error {
	s, ok := a.(Snapshotter)
	if !ok {
		return nil
	}
	if err := s.DeserializeSnapshot(dec, snap.State); err != nil {
		return &PersistenceError{Op: "restore snapshot " + streamKey(snap.Bucket, snap.AggregateID), Err: err}
	}
	root := a.root()
	root.version = snap.Version
	root.commitVersion = snap.Version
	return nil
}
