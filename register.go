package eventfold

import (
	"reflect"
	"sync"

	"github.com/eventfold/eventfold/core"
)

// Capability names an optional collaborator an aggregate type declares needing
// at construction time. Only declared capabilities are injected.
type Capability uint8

const (
	// CapStream exposes the bound event stream to the aggregate.
	CapStream Capability = iota + 1
	// CapScope hands the aggregate its child dependency scope.
	CapScope
	// CapEventFactory lets the aggregate build registered event payloads by name.
	CapEventFactory
	// CapRouteResolver wires the aggregate to the host's route resolution.
	CapRouteResolver
)

// EventFactory builds a blank event payload for a registered type/reason pair.
type EventFactory interface {
	NewEventData(aggregateType, reason string) (interface{}, bool)
}

// RouteResolver maps an event reason to the handler route that observes it.
// The host provides the implementation through the dependency scope.
type RouteResolver interface {
	Resolve(reason string) (string, bool)
}

type registerFunc = func() interface{}

// RegisterFunc is handed to an aggregate's Register method to bind its events.
type RegisterFunc = func(events ...interface{})

// AggregateFactory returns a bare aggregate instance; the repository wires its
// declared capabilities afterwards.
type AggregateFactory func() Aggregate

type aggregateEntry struct {
	factory      AggregateFactory
	capabilities []Capability
}

// Register holds the aggregate factories, their capability sets and the event
// type constructors used to decode stored payloads.
type Register struct {
	mu         sync.RWMutex
	aggregates map[string]aggregateEntry
	events     map[string]registerFunc
}

func NewRegister() *Register {
	return &Register{
		aggregates: make(map[string]aggregateEntry),
		events:     make(map[string]registerFunc),
	}
}

// Aggregate registers the factory and capability set for one aggregate type
// and calls the aggregate's Register method to bind its events. The type name
// is derived from the instance the factory produces.
func (r *Register) Aggregate(factory AggregateFactory, capabilities ...Capability) {
	a := factory()
	typ := aggregateTypeOf(a)

	r.mu.Lock()
	r.aggregates[typ] = aggregateEntry{factory: factory, capabilities: capabilities}
	r.mu.Unlock()

	a.Register(r.registerEvents(typ))
}

// EventRegistered return the func to generate the correct event data type and
// true if it exists otherwise false.
func (r *Register) EventRegistered(event core.Event) (registerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.events[event.AggregateType+"_"+event.Reason]
	return f, ok
}

// NewEventData implements EventFactory.
func (r *Register) NewEventData(aggregateType, reason string) (interface{}, bool) {
	r.mu.RLock()
	f, ok := r.events[aggregateType+"_"+reason]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// AggregateRegistered reports whether a factory exists for the type name.
func (r *Register) AggregateRegistered(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.aggregates[typ]
	return ok
}

func (r *Register) aggregate(typ string) (aggregateEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.aggregates[typ]
	return entry, ok
}

func (r *Register) registerEvents(aggregateType string) RegisterFunc {
	return func(events ...interface{}) {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, e := range events {
			f := eventToFunc(e)
			reason := reflect.TypeOf(e).Elem().Name()
			r.events[aggregateType+"_"+reason] = f
		}
	}
}

func eventToFunc(event interface{}) registerFunc {
	return func() interface{} {
		// return a new instance of the event
		return reflect.New(reflect.TypeOf(event).Elem()).Interface()
	}
}

func aggregateTypeOf(a interface{}) string {
	return reflect.TypeOf(a).Elem().Name()
}
