package eventfold

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/eventfold/eventfold/core"
	"github.com/eventfold/eventfold/internal"
)

// Repository is the unit-of-work boundary of one inbound operation. It caches
// streams and snapshots per (bucket, id) key so the same aggregate is loaded
// at most once, constructs aggregates through their registered factories and
// commits every touched stream on Commit.
//
// A repository must never be shared across units of work; its caches are
// internally synchronized only so entity-level repositories of the same unit
// of work can reach it concurrently.
type Repository struct {
	store         core.EventStore
	snapshots     core.SnapshotStore
	register      *Register
	encoder       encoder
	scope         *Scope
	subs          *Subscriptions
	defaultBucket string

	streams   sync.Map // stream key -> *streamEntry
	snapCache sync.Map // stream key -> *core.Snapshot (nil for a cached miss)
	closed    atomic.Bool
}

type streamEntry struct {
	once      sync.Once
	stream    *Stream
	aggregate Aggregate
	err       error
}

// Option configures a Repository.
type Option func(*Repository)

// WithSnapshotStore enables snapshot-accelerated loads and snapshot capture.
func WithSnapshotStore(ss core.SnapshotStore) Option {
	return func(r *Repository) { r.snapshots = ss }
}

// WithScope sets the parent dependency scope aggregates get children of.
func WithScope(s *Scope) Option {
	return func(r *Repository) { r.scope = s }
}

// WithEncoder changes the default JSON encoder for events and snapshots.
func WithEncoder(e Encoder) Option {
	return func(r *Repository) { r.encoder = e }
}

// WithDefaultBucket changes the bucket used when none is specified.
func WithDefaultBucket(bucket string) Option {
	return func(r *Repository) { r.defaultBucket = bucket }
}

// NewRepository factory function
func NewRepository(store core.EventStore, register *Register, opts ...Option) *Repository {
	r := &Repository{
		store:         store,
		register:      register,
		encoder:       internal.EncoderJSON{},
		scope:         NewScope(),
		subs:          NewSubscriptions(),
		defaultBucket: DefaultBucket,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribers returns the registry of committed-event observers.
func (r *Repository) Subscribers() *Subscriptions {
	return r.subs
}

// Get returns the aggregate from the default bucket hydrated to its full history.
func Get[T Aggregate](ctx context.Context, r *Repository, id string) (T, error) {
	return GetVersion[T](ctx, r, "", id, core.VersionMax)
}

// GetVersion returns the aggregate for (bucket, id) hydrated up to version.
// It returns ErrAggregateNotFound when neither a stream nor a snapshot exists
// for the key. Repeated calls for the same key inside one unit of work return
// the identical stream and aggregate wiring.
func GetVersion[T Aggregate](ctx context.Context, r *Repository, bucket, id string, version core.Version) (T, error) {
	var zero T
	if r.closed.Load() {
		return zero, ErrRepositoryClosed
	}
	if bucket == "" {
		bucket = r.defaultBucket
	}
	typ := typeNameFor[T]()
	key := streamKey(bucket, id)

	v, _ := r.streams.LoadOrStore(key, &streamEntry{})
	entry := v.(*streamEntry)
	entry.once.Do(func() {
		entry.aggregate, entry.stream, entry.err = r.load(ctx, typ, bucket, id, version)
	})
	if entry.err != nil {
		// a failed load must not poison the key for a later New
		r.streams.CompareAndDelete(key, v)
		return zero, entry.err
	}
	a, ok := entry.aggregate.(T)
	if !ok {
		return zero, fmt.Errorf("%s loaded as %T: %w", key, entry.aggregate, ErrAggregateTypeMismatch)
	}
	// a cached instance may still be behind the requested version
	hydrate(entry.aggregate, entry.stream, version)
	return a, nil
}

// New prepares an empty stream for the key and returns a freshly constructed
// aggregate bound to it. An empty id is generated. The cache entry is reused
// if the key was already prepared in this unit of work.
func New[T Aggregate](r *Repository, bucket, id string) (T, error) {
	var zero T
	if r.closed.Load() {
		return zero, ErrRepositoryClosed
	}
	if bucket == "" {
		bucket = r.defaultBucket
	}
	if id == "" {
		id = uuid.NewString()
	}
	typ := typeNameFor[T]()
	key := streamKey(bucket, id)

	v, _ := r.streams.LoadOrStore(key, &streamEntry{})
	entry := v.(*streamEntry)
	entry.once.Do(func() {
		stream := newStream(r.store, r.register, r.encoder, bucket, id, typ)
		entry.aggregate, entry.err = r.construct(typ, bucket, id, stream)
		entry.stream = stream
	})
	if entry.err != nil {
		r.streams.CompareAndDelete(key, v)
		return zero, entry.err
	}
	a, ok := entry.aggregate.(T)
	if !ok {
		return zero, fmt.Errorf("%s prepared as %T: %w", key, entry.aggregate, ErrAggregateTypeMismatch)
	}
	return a, nil
}

func (r *Repository) load(ctx context.Context, typ, bucket, id string, version core.Version) (Aggregate, *Stream, error) {
	snap, err := r.snapshot(ctx, bucket, id, version)
	if err != nil {
		return nil, nil, err
	}

	base := core.Version(0)
	if snap != nil {
		base = snap.Version
	}
	stream, err := openStream(ctx, r.store, r.register, r.encoder, bucket, id, typ, base)
	if err != nil {
		return nil, nil, err
	}
	if snap == nil && stream.Version() == 0 {
		return nil, nil, ErrAggregateNotFound
	}

	a, err := r.construct(typ, bucket, id, stream)
	if err != nil {
		return nil, nil, err
	}
	if snap != nil {
		if err := restoreSnapshot(a, snap, r.encoder.Deserialize); err != nil {
			return nil, nil, err
		}
	}
	hydrate(a, stream, version)
	return a, stream, nil
}

// hydrate replays committed-then-pending events in stream order, applying at
// most version − current of them.
func hydrate(a Aggregate, stream *Stream, version core.Version) {
	root := a.root()
	if root.version >= version {
		return
	}
	buildFromHistory(a, stream.Committed(), version)
	buildFromHistory(a, stream.Pending(), version)
	root.commitVersion = stream.CommitVersion()
}

// snapshot returns the cached snapshot for the key, fetching it at most once
// per unit of work. A miss is cached as nil.
func (r *Repository) snapshot(ctx context.Context, bucket, id string, version core.Version) (*core.Snapshot, error) {
	if r.snapshots == nil {
		return nil, nil
	}
	key := streamKey(bucket, id)
	if v, ok := r.snapCache.Load(key); ok {
		return v.(*core.Snapshot), nil
	}
	snap, err := r.snapshots.GetSnapshot(ctx, bucket, id, version)
	if err != nil {
		if errors.Is(err, core.ErrSnapshotNotFound) {
			r.snapCache.Store(key, (*core.Snapshot)(nil))
			return nil, nil
		}
		return nil, &PersistenceError{Op: "get snapshot " + key, Err: err}
	}
	v, _ := r.snapCache.LoadOrStore(key, &snap)
	return v.(*core.Snapshot), nil
}

// construct produces a ready-to-use aggregate instance: factory first, then
// the capability setters the type declared at registration.
func (r *Repository) construct(typ, bucket, id string, stream *Stream) (Aggregate, error) {
	entry, ok := r.register.aggregate(typ)
	if !ok {
		return nil, fmt.Errorf("%s: %w", typ, ErrAggregateNotRegistered)
	}
	a := entry.factory()
	root := a.root()
	root.id = id
	root.bucket = bucket

	child := r.scope.Child()
	for _, capability := range entry.capabilities {
		switch capability {
		case CapStream:
			root.setStream(stream)
		case CapScope:
			root.setScope(child)
		case CapEventFactory:
			root.setEventFactory(r.register)
		case CapRouteResolver:
			routes, err := Build[RouteResolver](child)
			if err != nil {
				return nil, fmt.Errorf("wire %s: %w", typ, err)
			}
			root.setRoutes(routes)
		}
	}
	return a, nil
}

// Commit flushes every stream touched in this unit of work, in fixed key
// order. headers are merged into each stream's pending header set. A conflict
// aborts the remainder and propagates; streams committed before it are not
// rolled back. Duplicate commits are cleared silently and never surface.
func (r *Repository) Commit(ctx context.Context, commitID string, headers map[string]interface{}) error {
	if r.closed.Load() {
		return ErrRepositoryClosed
	}
	keys := make([]string, 0)
	r.streams.Range(func(k, _ interface{}) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)

	for _, key := range keys {
		v, ok := r.streams.Load(key)
		if !ok {
			continue
		}
		entry := v.(*streamEntry)
		if entry.err != nil || entry.stream == nil {
			continue
		}
		if err := r.commitStream(ctx, entry, commitID, headers); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) commitStream(ctx context.Context, entry *streamEntry, commitID string, headers map[string]interface{}) error {
	stream := entry.stream

	if sn, ok := entry.aggregate.(Snapshotter); ok && stream.HasChanges() && sn.ShouldSnapshot() {
		state, err := sn.SerializeSnapshot(r.encoder.Serialize)
		if err != nil {
			return &PersistenceError{Op: "capture snapshot " + stream.Key(), Err: err}
		}
		stream.AddSnapshot(state, nil)
	}

	events, err := stream.Commit(ctx, commitID, headers)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateCommit) {
			// retry safety: the commit was already applied, pending state is
			// cleared and no signal crosses the repository boundary
			return nil
		}
		return err
	}
	root := entry.aggregate.root()
	root.version = stream.Version()
	root.commitVersion = stream.CommitVersion()

	if err := r.storeSnapshots(ctx, events); err != nil {
		return err
	}
	if len(events) > 0 {
		r.subs.Publish(events)
	}
	return nil
}

// storeSnapshots projects committed snapshot markers into the snapshot store,
// which is the accessor the load path queries.
func (r *Repository) storeSnapshots(ctx context.Context, events []Event) error {
	if r.snapshots == nil {
		return nil
	}
	for _, event := range events {
		marker, ok := event.Data().(*snapshotTaken)
		if !ok {
			continue
		}
		snap := core.Snapshot{
			Bucket:      event.Bucket(),
			AggregateID: event.AggregateID(),
			Version:     marker.StreamVersion,
			State:       marker.State,
		}
		if err := r.snapshots.SaveSnapshot(ctx, snap); err != nil {
			return &PersistenceError{Op: "save snapshot " + streamKey(snap.Bucket, snap.AggregateID), Err: err}
		}
	}
	return nil
}

// Close releases the unit-of-work caches. It is idempotent and never panics.
func (r *Repository) Close() {
	if r.closed.Swap(true) {
		return
	}
	r.streams.Range(func(k, _ interface{}) bool {
		r.streams.Delete(k)
		return true
	})
	r.snapCache.Range(func(k, _ interface{}) bool {
		r.snapCache.Delete(k)
		return true
	})
}

func typeNameFor[T Aggregate]() string {
	return reflect.TypeFor[T]().Elem().Name()
}
