package eventfold

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eventfold/eventfold/core"
)

// Stream is the ordered, versioned event log of one aggregate instance. It
// tracks committed events, a pending buffer of not-yet-persisted entries and
// the header set that will ride along with the next commit.
//
// A stream lives for the duration of one unit of work; the repository cache
// guarantees at most one instance per (bucket, id) pair.
type Stream struct {
	store    core.EventStore
	register *Register
	encoder  encoder

	bucket        string
	id            string
	aggregateType string

	mu sync.Mutex
	// version is the highest version represented by committed plus pending
	// events; commitVersion is the highest version actually persisted.
	version        core.Version
	commitVersion  core.Version
	committed      []Event
	pending        []Event
	pendingHeaders map[string]interface{}
}

func newStream(store core.EventStore, register *Register, enc encoder, bucket, id, aggregateType string) *Stream {
	return &Stream{
		store:          store,
		register:       register,
		encoder:        enc,
		bucket:         bucket,
		id:             id,
		aggregateType:  aggregateType,
		pendingHeaders: make(map[string]interface{}),
	}
}

// openStream hydrates a stream from the store, starting after baseVersion
// (the version of the snapshot the stream is opened on, or zero for genesis).
func openStream(ctx context.Context, store core.EventStore, register *Register, enc encoder, bucket, id, aggregateType string, baseVersion core.Version) (*Stream, error) {
	s := newStream(store, register, enc, bucket, id, aggregateType)
	s.version = baseVersion
	s.commitVersion = baseVersion

	iterator, err := store.Get(ctx, bucket, id, baseVersion, core.VersionMax)
	if err != nil {
		return nil, &PersistenceError{Op: "open stream " + streamKey(bucket, id), Err: err}
	}
	for e, err := range iterator {
		if err != nil {
			return nil, &PersistenceError{Op: "open stream " + streamKey(bucket, id), Err: err}
		}
		event, err := s.decode(e)
		if err != nil {
			return nil, err
		}
		s.committed = append(s.committed, event)
		s.version = e.Version
		s.commitVersion = e.Version
	}
	return s, nil
}

func (s *Stream) decode(e core.Event) (Event, error) {
	var data interface{}
	if e.Reason == SnapshotReason {
		data = &snapshotTaken{}
	} else {
		f, found := s.register.EventRegistered(e)
		if !found {
			return Event{}, fmt.Errorf("%s: %w", e.Reason, ErrEventNotRegistered)
		}
		data = f()
	}
	if err := s.encoder.Deserialize(e.Data, &data); err != nil {
		return Event{}, &PersistenceError{Op: "decode event " + e.Reason, Err: err}
	}
	metadata := make(map[string]interface{})
	if e.Metadata != nil {
		if err := s.encoder.Deserialize(e.Metadata, &metadata); err != nil {
			return Event{}, &PersistenceError{Op: "decode event metadata", Err: err}
		}
	}
	return NewEvent(e, data, metadata), nil
}

func (s *Stream) Bucket() string { return s.bucket }
func (s *Stream) ID() string     { return s.id }

// Key returns the cache key of the stream: bucket + "/" + id.
func (s *Stream) Key() string { return streamKey(s.bucket, s.id) }

// Version returns the highest version represented by committed plus pending events.
func (s *Stream) Version() core.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// CommitVersion returns the highest version actually persisted.
func (s *Stream) CommitVersion() core.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitVersion
}

// Committed returns a copy of the committed events in persisted order.
func (s *Stream) Committed() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]Event, len(s.committed))
	copy(events, s.committed)
	return events
}

// Pending returns a copy of the uncommitted events in call order.
func (s *Stream) Pending() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]Event, len(s.pending))
	copy(events, s.pending)
	return events
}

// HasChanges reports whether the pending buffer holds events.
func (s *Stream) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// Add appends an event to the pending buffer. Committed state and the commit
// version are untouched until Commit.
func (s *Stream) Add(data interface{}, metadata map[string]interface{}) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(reasonOf(data), data, metadata)
}

// AddSnapshot appends a snapshot marker to the pending buffer. The marker
// carries the stream version and commit version as of the decision point and
// occupies the next version slot like any other pending event.
func (s *Stream) AddSnapshot(state []byte, metadata map[string]interface{}) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	marker := &snapshotTaken{
		StreamVersion: s.version,
		CommitVersion: s.commitVersion,
		State:         state,
	}
	return s.add(SnapshotReason, marker, metadata)
}

func (s *Stream) add(reason string, data interface{}, metadata map[string]interface{}) Event {
	event := NewEvent(core.Event{
		Bucket:        s.bucket,
		AggregateID:   s.id,
		AggregateType: s.aggregateType,
		Version:       s.version + 1,
		Reason:        reason,
		Timestamp:     time.Now().UTC(),
	}, data, metadata)
	s.pending = append(s.pending, event)
	s.version++
	return event
}

// SetHeader stages a header that will be merged into the next commit.
func (s *Stream) SetHeader(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingHeaders[key] = value
}

// Commit persists the pending buffer as a contiguous version range following
// the commit version. headers are merged into the stream's pending header set
// first. On success it returns the events of the commit and clears the buffer.
//
// A store-level version mismatch surfaces as *ConflictError and a replayed
// commit id as ErrDuplicateCommit; in both cases the pending buffer is
// discarded so a retrying caller starts from a clean stream.
func (s *Stream) Commit(ctx context.Context, commitID string, headers map[string]interface{}) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range headers {
		s.pendingHeaders[k] = v
	}
	if len(s.pending) == 0 {
		return nil, nil
	}

	commit := core.Commit{
		Bucket:          s.bucket,
		AggregateID:     s.id,
		CommitID:        commitID,
		ExpectedVersion: s.commitVersion,
		Events:          make([]core.Event, 0, len(s.pending)),
	}
	for _, event := range s.pending {
		e, err := s.encode(event, commitID)
		if err != nil {
			return nil, err
		}
		commit.Events = append(commit.Events, e)
	}
	if len(s.pendingHeaders) > 0 {
		data, err := s.encoder.Serialize(s.pendingHeaders)
		if err != nil {
			return nil, &PersistenceError{Op: "encode commit headers", Err: err}
		}
		commit.Headers = data
	}

	if err := s.store.Commit(ctx, commit); err != nil {
		switch {
		case errors.Is(err, core.ErrConcurrency):
			conflict := &ConflictError{
				Bucket:      s.bucket,
				AggregateID: s.id,
				Expected:    s.commitVersion,
				Err:         err,
			}
			var detail *core.ConcurrencyError
			if errors.As(err, &detail) {
				conflict.Actual = detail.Actual
			}
			s.clearChanges()
			return nil, conflict
		case errors.Is(err, core.ErrDuplicateCommit):
			s.clearChanges()
			return nil, fmt.Errorf("commit %s on %s: %w", commitID, s.Key(), core.ErrDuplicateCommit)
		default:
			return nil, &PersistenceError{Op: "commit stream " + s.Key(), Err: err}
		}
	}

	committed := make([]Event, len(s.pending))
	for i, event := range s.pending {
		event.event.CommitID = commitID
		committed[i] = event
	}
	s.committed = append(s.committed, committed...)
	s.commitVersion = s.version
	s.pending = nil
	s.pendingHeaders = make(map[string]interface{})
	return committed, nil
}

func (s *Stream) encode(event Event, commitID string) (core.Event, error) {
	e := event.event
	e.CommitID = commitID
	if e.Reason != SnapshotReason {
		if _, ok := s.register.EventRegistered(e); !ok {
			return core.Event{}, fmt.Errorf("%s: %w", e.Reason, ErrEventNotRegistered)
		}
	}
	data, err := s.encoder.Serialize(event.data)
	if err != nil {
		return core.Event{}, &PersistenceError{Op: "encode event " + e.Reason, Err: err}
	}
	e.Data = data
	if event.metadata != nil {
		metadata, err := s.encoder.Serialize(event.metadata)
		if err != nil {
			return core.Event{}, &PersistenceError{Op: "encode event metadata", Err: err}
		}
		e.Metadata = metadata
	}
	return e, nil
}

// ClearChanges discards the pending buffer without persisting. The stream
// version falls back to the commit version.
func (s *Stream) ClearChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearChanges()
}

func (s *Stream) clearChanges() {
	s.pending = nil
	s.pendingHeaders = make(map[string]interface{})
	s.version = s.commitVersion
}
