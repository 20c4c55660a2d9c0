package eventfold

import "sync"

// Subscriptions delivers committed events to registered observers. The
// repository publishes after each successful stream commit; pending events are
// never visible to subscribers.
type Subscriptions struct {
	// makes sure events are delivered in order and subscriptions are persistent
	lock sync.Mutex

	// holds subscribers of all events
	all []*subscription
	// holds subscribers of aggregate and events by name
	names map[string][]*subscription
}

// subscription holds the event function to be triggered when an event matches,
// and a close function to end the subscription.
type subscription struct {
	eventF func(e Event)
	close  func()
}

// Close stops the subscription
func (s *subscription) Close() {
	s.close()
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		names: make(map[string][]*subscription),
	}
}

// Publish calls the functions that are subscribing to the events.
func (s *Subscriptions) Publish(events []Event) {
	// the lock prevents other event updates getting mixed with this batch
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, event := range events {
		publish(s.all, event)
		ref := event.AggregateType() + "_" + event.Reason()
		if subs, ok := s.names[ref]; ok {
			publish(subs, event)
		}
	}
}

// All subscribes to every committed event.
func (s *Subscriptions) All(f func(e Event)) *subscription {
	sub := subscription{eventF: f}
	sub.close = func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		sub.eventF = nil
		s.all = clean(s.all)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.all = append(s.all, &sub)
	return &sub
}

// Name subscribes to events based on the aggregate type and event reasons.
func (s *Subscriptions) Name(f func(e Event), aggregateType string, reasons ...string) *subscription {
	sub := subscription{eventF: f}
	sub.close = func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		sub.eventF = nil
		for ref, items := range s.names {
			s.names[ref] = clean(items)
		}
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, reason := range reasons {
		ref := aggregateType + "_" + reason
		s.names[ref] = append(s.names[ref], &sub)
	}
	return &sub
}

func publish(subs []*subscription, event Event) {
	for _, sub := range subs {
		if sub.eventF != nil {
			sub.eventF(event)
		}
	}
}

// clean removes subscriptions that are closed.
func clean(subs []*subscription) []*subscription {
	kept := make([]*subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.eventF != nil {
			kept = append(kept, sub)
		}
	}
	return kept
}
