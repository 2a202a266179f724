package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/plans/pkg/eventstream"
)

// PublishedEvent is an event captured by RecordingPublisher.
type PublishedEvent struct {
	Topic string
	Event *eventstream.Event
}

// RecordingPublisher is a test publisher that keeps every event. When Err is
// set, Publish returns it and records nothing.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	Err    error
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (r *RecordingPublisher) Publish(_ context.Context, topic string, event *eventstream.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, PublishedEvent{Topic: topic, Event: event})
	return nil
}

// Events returns a copy of the recorded events in publish order.
func (r *RecordingPublisher) Events() []PublishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PublishedEvent(nil), r.events...)
}

// Operations returns the operation of every recorded event in order.
func (r *RecordingPublisher) Operations() []eventstream.Operation {
	var ops []eventstream.Operation
	for _, e := range r.Events() {
		ops = append(ops, e.Event.Operation)
	}
	return ops
}

func (r *RecordingPublisher) Close() error {
	return nil
}
