package eventfold_test

import (
	"testing"

	"github.com/eventfold/eventfold"
	"github.com/eventfold/eventfold/core"
)

func personEvent(reason string, version core.Version, data interface{}) eventfold.Event {
	return eventfold.NewEvent(core.Event{
		Bucket:        "default",
		AggregateID:   "kalle",
		AggregateType: "Person",
		Reason:        reason,
		Version:       version,
	}, data, nil)
}

func TestSubscribeAll(t *testing.T) {
	subs := eventfold.NewSubscriptions()
	var count int
	sub := subs.All(func(e eventfold.Event) { count++ })
	defer sub.Close()

	subs.Publish([]eventfold.Event{
		personEvent("Born", 1, &Born{Name: "kalle"}),
		personEvent("AgedOneYear", 2, &AgedOneYear{}),
	})
	if count != 2 {
		t.Fatalf("expected 2 events, got %d", count)
	}
}

func TestSubscribeByName(t *testing.T) {
	subs := eventfold.NewSubscriptions()
	var reasons []string
	sub := subs.Name(func(e eventfold.Event) {
		reasons = append(reasons, e.Reason())
	}, "Person", "Born")
	defer sub.Close()

	subs.Publish([]eventfold.Event{
		personEvent("Born", 1, &Born{Name: "kalle"}),
		personEvent("AgedOneYear", 2, &AgedOneYear{}),
	})
	if len(reasons) != 1 || reasons[0] != "Born" {
		t.Fatalf("unexpected reasons: %v", reasons)
	}
}

func TestSubscribeByNameOtherAggregateType(t *testing.T) {
	subs := eventfold.NewSubscriptions()
	var count int
	sub := subs.Name(func(e eventfold.Event) { count++ }, "Wallet", "Born")
	defer sub.Close()

	subs.Publish([]eventfold.Event{personEvent("Born", 1, &Born{Name: "kalle"})})
	if count != 0 {
		t.Fatal("a subscription on another aggregate type must not fire")
	}
}

func TestClosedSubscriptionStopsDelivery(t *testing.T) {
	subs := eventfold.NewSubscriptions()
	var count int
	sub := subs.All(func(e eventfold.Event) { count++ })

	subs.Publish([]eventfold.Event{personEvent("Born", 1, &Born{Name: "kalle"})})
	sub.Close()
	subs.Publish([]eventfold.Event{personEvent("AgedOneYear", 2, &AgedOneYear{})})

	if count != 1 {
		t.Fatalf("expected 1 event before close, got %d", count)
	}
}

func TestCloseOneOfManySubscriptions(t *testing.T) {
	subs := eventfold.NewSubscriptions()
	var first, second int
	s1 := subs.All(func(e eventfold.Event) { first++ })
	s2 := subs.All(func(e eventfold.Event) { second++ })
	defer s2.Close()

	s1.Close()
	subs.Publish([]eventfold.Event{personEvent("Born", 1, &Born{Name: "kalle"})})

	if first != 0 || second != 1 {
		t.Fatalf("unexpected deliveries: first %d, second %d", first, second)
	}
}
