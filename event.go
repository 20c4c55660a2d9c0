package eventfold

import (
	"time"

	"github.com/eventfold/eventfold/core"
)

// Event wraps a stored event together with its decoded data and metadata.
type Event struct {
	event    core.Event
	data     interface{}
	metadata map[string]interface{}
}

// NewEvent builds the typed view of a stored event.
func NewEvent(e core.Event, data interface{}, metadata map[string]interface{}) Event {
	return Event{
		event:    e,
		data:     data,
		metadata: metadata,
	}
}

func (e Event) AggregateID() string {
	return e.event.AggregateID
}

func (e Event) Bucket() string {
	return e.event.Bucket
}

func (e Event) AggregateType() string {
	return e.event.AggregateType
}

func (e Event) Version() core.Version {
	return e.event.Version
}

// CommitID returns the identifier of the commit that persisted the event.
// It is empty while the event is still pending.
func (e Event) CommitID() string {
	return e.event.CommitID
}

func (e Event) Reason() string {
	return e.event.Reason
}

func (e Event) Timestamp() time.Time {
	return e.event.Timestamp
}

// Data returns the typed event payload.
func (e Event) Data() interface{} {
	return e.data
}

// Metadata returns the event headers.
func (e Event) Metadata() map[string]interface{} {
	return e.metadata
}
