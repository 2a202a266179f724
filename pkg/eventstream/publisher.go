package eventstream

import "context"

// Publisher publishes change events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}

// Handler processes one delivered event. A returned error causes the event to
// be delivered again, up to the subscriber's retry policy.
type Handler func(ctx context.Context, event *Event) error

// Subscriber delivers events from a topic to a handler with at-least-once
// semantics.
type Subscriber interface {
	// Subscribe consumes topic until ctx is cancelled or the subscriber is
	// closed. It returns nil on a clean stop.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
