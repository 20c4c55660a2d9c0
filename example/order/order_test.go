package order_test

import (
	"context"
	"errors"
	"testing"

	"github.com/eventfold/eventfold"
	"github.com/eventfold/eventfold/eventstore/memory"
	"github.com/eventfold/eventfold/example/order"
)

func newOrderRepo(store *memory.Memory) *eventfold.Repository {
	register := eventfold.NewRegister()
	order.RegisterWith(register)
	return eventfold.NewRepository(store, register, eventfold.WithSnapshotStore(store))
}

func TestCreateOrder(t *testing.T) {
	repo := newOrderRepo(memory.Create())
	defer repo.Close()

	o, err := eventfold.New[*order.Order](repo, "", "o1")
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Create(100); err != nil {
		t.Fatal(err)
	}
	if o.Status != order.Pending || o.Total != 100 || o.Outstanding != 100 {
		t.Fatalf("unexpected state: %+v", o)
	}
}

func TestCreateOrderOverLimit(t *testing.T) {
	repo := newOrderRepo(memory.Create())
	defer repo.Close()

	o, err := eventfold.New[*order.Order](repo, "", "o1")
	if err != nil {
		t.Fatal(err)
	}
	err = o.Create(501)
	var fault *eventfold.AggregateError
	if !errors.As(err, &fault) {
		t.Fatalf("expected an aggregate fault, got %v", err)
	}
	if o.Version() != 0 {
		t.Fatal("a rejected command must not track a change")
	}
}

func TestCreateOrderTwice(t *testing.T) {
	repo := newOrderRepo(memory.Create())
	defer repo.Close()

	o, err := eventfold.New[*order.Order](repo, "", "o1")
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Create(100); err != nil {
		t.Fatal(err)
	}
	if err := o.Create(100); err == nil {
		t.Fatal("expected a second create to be rejected")
	}
}

func TestDiscountLargerThanOutstanding(t *testing.T) {
	repo := newOrderRepo(memory.Create())
	defer repo.Close()

	o, err := eventfold.New[*order.Order](repo, "", "o1")
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Create(100); err != nil {
		t.Fatal(err)
	}
	if err := o.AddDiscount(100); err == nil {
		t.Fatal("expected the discount to be rejected")
	}
}

func TestPayCompletesOrder(t *testing.T) {
	repo := newOrderRepo(memory.Create())
	defer repo.Close()

	o, err := eventfold.New[*order.Order](repo, "", "o1")
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Create(100); err != nil {
		t.Fatal(err)
	}
	if err := o.AddDiscount(10); err != nil {
		t.Fatal(err)
	}
	if err := o.Pay(90); err != nil {
		t.Fatal(err)
	}
	if o.Status != order.Complete || o.Outstanding != 0 {
		t.Fatalf("unexpected state: %+v", o)
	}
}

func TestOverpayRejected(t *testing.T) {
	repo := newOrderRepo(memory.Create())
	defer repo.Close()

	o, err := eventfold.New[*order.Order](repo, "", "o1")
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Create(100); err != nil {
		t.Fatal(err)
	}
	if err := o.Pay(101); err == nil {
		t.Fatal("expected the payment to be rejected")
	}
}

func TestOrderRoundtripWithSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.Create()

	repo := newOrderRepo(store)
	o, err := eventfold.New[*order.Order](repo, "", "o1")
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Create(100); err != nil {
		t.Fatal(err)
	}
	if err := o.AddDiscount(10); err != nil {
		t.Fatal(err)
	}
	if err := o.Pay(90); err != nil {
		t.Fatal(err)
	}
	if err := repo.Commit(ctx, "G1", nil); err != nil {
		t.Fatal(err)
	}
	repo.Close()

	repo2 := newOrderRepo(store)
	defer repo2.Close()
	loaded, err := eventfold.Get[*order.Order](ctx, repo2, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != order.Complete || loaded.Total != 100 || loaded.Outstanding != 0 {
		t.Fatalf("unexpected state after reload: %+v", loaded)
	}
	if loaded.Version() != o.Version() {
		t.Fatalf("version mismatch: %d vs %d", loaded.Version(), o.Version())
	}
}
