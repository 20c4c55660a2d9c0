package order

import (
	"fmt"

	"github.com/eventfold/eventfold"
)

// snapshotEvery is the number of applied events between snapshot captures.
const snapshotEvery = 3

type Status string

const (
	Pending  Status = "pending"
	Complete Status = "complete"
)

// Order is the aggregate protecting the state
type Order struct {
	eventfold.Root
	Status      Status
	Total       uint
	Outstanding uint

	snapshotVersion eventfold.Version
}

// RegisterWith binds the Order factory and its capability set to the register.
func RegisterWith(r *eventfold.Register) {
	r.Aggregate(func() eventfold.Aggregate { return &Order{} },
		eventfold.CapStream,
		eventfold.CapScope,
	)
}

// Transition builds the aggregate state based on the events
func (o *Order) Transition(event eventfold.Event) {
	switch e := event.Data().(type) {
	case *Created:
		o.Status = Pending
		o.Total = e.Total
		o.Outstanding = e.Total
	case *DiscountApplied:
		o.Outstanding -= e.Discount
	case *Payment:
		o.Outstanding -= e.Amount
	case *Paid:
		o.Status = Complete
	}
}

// Register binds the events to the order aggregate
func (o *Order) Register(r eventfold.RegisterFunc) {
	r(
		&Created{},
		&DiscountApplied{},
		&Payment{},
		&Paid{},
	)
}

// Events

// Created when the order was created
type Created struct {
	Total uint
}

// DiscountApplied when a discount was applied
type DiscountApplied struct {
	Discount uint
}

// Payment made on the Total amount on the Order
type Payment struct {
	Amount uint
}

// Paid - the order is fully paid
type Paid struct{}

// Commands

// Create creates the initial order
func (o *Order) Create(amount uint) error {
	if amount > 500 {
		return eventfold.AggregateFault(fmt.Errorf("amount can't be higher than 500"))
	}
	if o.Status != "" {
		return eventfold.AggregateFault(fmt.Errorf("order already created"))
	}
	return eventfold.TrackChange(o, &Created{Total: amount})
}

// AddDiscount adds discount to the order
func (o *Order) AddDiscount(amount uint) error {
	if o.Outstanding <= amount {
		return eventfold.AggregateFault(fmt.Errorf("discount is larger or same as order outstanding amount"))
	}
	return eventfold.TrackChange(o, &DiscountApplied{Discount: amount})
}

// Pay creates a payment on the order. If the outstanding amount is zero the
// order is paid.
func (o *Order) Pay(amount uint) error {
	if int(o.Outstanding)-int(amount) < 0 {
		return eventfold.AggregateFault(fmt.Errorf("payment is higher than order outstanding amount"))
	}
	if err := eventfold.TrackChange(o, &Payment{Amount: amount}); err != nil {
		return err
	}
	if o.Outstanding == 0 {
		return eventfold.TrackChange(o, &Paid{})
	}
	return nil
}

// Snapshotting

type memento struct {
	Status          Status            `json:"status"`
	Total           uint              `json:"total"`
	Outstanding     uint              `json:"outstanding"`
	SnapshotVersion eventfold.Version `json:"snapshotVersion"`
}

// ShouldSnapshot captures a snapshot after every few applied events.
func (o *Order) ShouldSnapshot() bool {
	return o.Version()-o.snapshotVersion >= snapshotEvery
}

func (o *Order) SerializeSnapshot(serialize eventfold.SerializeFunc) ([]byte, error) {
	o.snapshotVersion = o.Version()
	return serialize(memento{
		Status:          o.Status,
		Total:           o.Total,
		Outstanding:     o.Outstanding,
		SnapshotVersion: o.snapshotVersion,
	})
}

func (o *Order) DeserializeSnapshot(deserialize eventfold.DeserializeFunc, data []byte) error {
	m := memento{}
	if err := deserialize(data, &m); err != nil {
		return err
	}
	o.Status = m.Status
	o.Total = m.Total
	o.Outstanding = m.Outstanding
	o.snapshotVersion = m.SnapshotVersion
	return nil
}
