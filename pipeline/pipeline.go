// Package pipeline is the host-facing side of the library: an ordered chain
// of interceptors around the handling of one inbound message, each receiving
// a continuation to invoke the next.
package pipeline

import (
	"context"

	"github.com/google/uuid"
)

// HeaderReply marks a message that is a reply to an earlier request.
const HeaderReply = "message.reply"

// Message is one inbound operation dispatched by the host. Handling one
// message is one unit of work.
type Message struct {
	ID            string
	CorrelationID string
	Headers       map[string]string
	Body          interface{}
}

// NewMessage builds a request message; its correlation id equals its id.
func NewMessage(body interface{}) *Message {
	id := uuid.NewString()
	return &Message{
		ID:            id,
		CorrelationID: id,
		Headers:       make(map[string]string),
		Body:          body,
	}
}

// SetHeader sets a transport header on the message.
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// IsReply reports whether the message was tagged as a reply.
func (m *Message) IsReply() bool {
	return m.Headers[HeaderReply] == "true"
}

// Handler executes one unit of work for a message.
type Handler func(ctx context.Context, m *Message) error

// Interceptor wraps a handler with cross-cutting behavior. The host owns
// ordering and registration; an interceptor only needs to call next.
type Interceptor func(next Handler) Handler

// Chain applies the interceptors to h so that the first one listed is the
// outermost wrapper.
func Chain(h Handler, interceptors ...Interceptor) Handler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}
