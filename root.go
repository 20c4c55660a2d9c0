package eventfold

import (
	"reflect"

	"github.com/eventfold/eventfold/core"
)

// Aggregate interface to use the aggregate root specific methods
type Aggregate interface {
	root() *Root
	Transition(event Event)
	Register(RegisterFunc)
}

// Root to be included into aggregates to give them the aggregate root behaviors.
// The repository wires a Root to exactly one stream for its lifetime; which of
// the optional collaborators are set depends on the capability set the
// aggregate type was registered with.
type Root struct {
	id            string
	bucket        string
	version       core.Version
	commitVersion core.Version

	stream       *Stream
	scope        *Scope
	eventFactory EventFactory
	routes       RouteResolver
}

// ID returns the aggregate identifier.
func (r *Root) ID() string { return r.id }

// Bucket returns the namespace partition of the aggregate.
func (r *Root) Bucket() string { return r.bucket }

// Version returns the stream position the aggregate has applied up to.
func (r *Root) Version() core.Version { return r.version }

// CommitVersion mirrors the bound stream's persisted version.
func (r *Root) CommitVersion() core.Version { return r.commitVersion }

// Stream returns the bound event stream, or nil when the aggregate type does
// not declare the stream capability.
func (r *Root) Stream() *Stream { return r.stream }

// Scope returns the aggregate's child dependency scope, or nil when the scope
// capability is not declared.
func (r *Root) Scope() *Scope { return r.scope }

// EventFactory returns the injected event factory, or nil.
func (r *Root) EventFactory() EventFactory { return r.eventFactory }

// Routes returns the injected route resolver, or nil.
func (r *Root) Routes() RouteResolver { return r.routes }

// root returns the included aggregate root state, and is used from the interface Aggregate.
func (r *Root) root() *Root { return r }

func (r *Root) setStream(s *Stream)            { r.stream = s }
func (r *Root) setScope(s *Scope)              { r.scope = s }
func (r *Root) setEventFactory(f EventFactory) { r.eventFactory = f }
func (r *Root) setRoutes(rr RouteResolver)     { r.routes = rr }

// TrackChange is used by behaviour methods to apply a state change to the
// current instance and stage it on the bound stream for the next commit.
// The aggregate type must declare the stream capability.
func TrackChange(a Aggregate, data interface{}) error {
	return TrackChangeWithMetadata(a, data, nil)
}

// TrackChangeWithMetadata applies a state change and stages it together with
// metadata that is persisted alongside the event.
func TrackChangeWithMetadata(a Aggregate, data interface{}, metadata map[string]interface{}) error {
	root := a.root()
	if root.stream == nil {
		return ErrStreamNotBound
	}
	event := root.stream.Add(data, metadata)
	a.Transition(event)
	root.version = event.Version()
	return nil
}

// buildFromHistory replays events onto the aggregate in stream order until
// target is reached. Snapshot markers advance the cursor without touching
// aggregate state.
func buildFromHistory(a Aggregate, events []Event, target core.Version) {
	root := a.root()
	for _, event := range events {
		if root.version >= target {
			return
		}
		if event.Version() <= root.version {
			continue
		}
		if event.Reason() != SnapshotReason {
			a.Transition(event)
		}
		root.version = event.Version()
	}
}

func reasonOf(data interface{}) string {
	return reflect.TypeOf(data).Elem().Name()
}
