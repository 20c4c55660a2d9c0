package eventfold_test

import (
	"errors"
	"testing"

	"github.com/eventfold/eventfold"
	"github.com/eventfold/eventfold/eventstore/memory"
)

type staticRoutes map[string]string

func (r staticRoutes) Resolve(reason string) (string, bool) {
	route, ok := r[reason]
	return route, ok
}

func TestTrackChangeWithoutStreamCapability(t *testing.T) {
	repo := eventfold.NewRepository(memory.Create(), personRegister())
	defer repo.Close()

	person, err := eventfold.New[*Person](repo, "", "kalle")
	if err != nil {
		t.Fatal(err)
	}
	if person.Stream() != nil {
		t.Fatal("stream must not be wired without the stream capability")
	}
	if err := person.Create("kalle"); !errors.Is(err, eventfold.ErrStreamNotBound) {
		t.Fatalf("expected ErrStreamNotBound, got %v", err)
	}
}

func TestDeclaredCapabilitiesAreWired(t *testing.T) {
	register := personRegister(
		eventfold.CapStream,
		eventfold.CapScope,
		eventfold.CapEventFactory,
		eventfold.CapRouteResolver,
	)
	scope := eventfold.NewScope()
	eventfold.ProvideValue[eventfold.RouteResolver](scope, staticRoutes{"Born": "person.born"})

	repo := eventfold.NewRepository(memory.Create(), register, eventfold.WithScope(scope))
	defer repo.Close()

	person, err := eventfold.New[*Person](repo, "", "kalle")
	if err != nil {
		t.Fatal(err)
	}
	if person.Stream() == nil {
		t.Fatal("expected a bound stream")
	}
	if person.Scope() == nil {
		t.Fatal("expected a child scope")
	}
	if person.EventFactory() == nil {
		t.Fatal("expected an event factory")
	}
	if person.Routes() == nil {
		t.Fatal("expected a route resolver")
	}

	route, ok := person.Routes().Resolve("Born")
	if !ok || route != "person.born" {
		t.Fatalf("unexpected route resolution: %q %v", route, ok)
	}
	data, ok := person.EventFactory().NewEventData("Person", "Born")
	if !ok {
		t.Fatal("expected the event factory to know Born")
	}
	if _, ok := data.(*Born); !ok {
		t.Fatalf("expected *Born, got %T", data)
	}

	// the child scope falls back to the repository scope
	routes, err := eventfold.Build[eventfold.RouteResolver](person.Scope())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := routes.Resolve("Born"); !ok {
		t.Fatal("expected the scoped resolver to resolve Born")
	}
}

func TestMissingRouteResolverFailsConstruction(t *testing.T) {
	register := personRegister(eventfold.CapStream, eventfold.CapRouteResolver)
	repo := eventfold.NewRepository(memory.Create(), register)
	defer repo.Close()

	_, err := eventfold.New[*Person](repo, "", "kalle")
	if !errors.Is(err, eventfold.ErrDependencyNotProvided) {
		t.Fatalf("expected ErrDependencyNotProvided, got %v", err)
	}
}

func TestTrackChangeWithMetadata(t *testing.T) {
	repo := eventfold.NewRepository(memory.Create(), personRegister(eventfold.CapStream))
	defer repo.Close()

	person, err := eventfold.New[*Person](repo, "", "kalle")
	if err != nil {
		t.Fatal(err)
	}
	if err := eventfold.TrackChangeWithMetadata(person, &Born{Name: "kalle"}, map[string]interface{}{"origin": "import"}); err != nil {
		t.Fatal(err)
	}
	pending := person.Stream().Pending()
	if len(pending) != 1 {
		t.Fatalf("expected one pending event, got %d", len(pending))
	}
	if pending[0].Metadata()["origin"] != "import" {
		t.Fatalf("unexpected metadata: %v", pending[0].Metadata())
	}
	if person.Name != "kalle" {
		t.Fatal("expected the transition to be applied")
	}
}
