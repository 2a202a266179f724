// Package nop provides an eventstream.Publisher that drops every event. It is
// used when no broker is configured.
package nop

import (
	"context"

	"github.com/papercomputeco/plans/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish validates input and otherwise does nothing.
func (p *Publisher) Publish(_ context.Context, _ string, event *eventstream.Event) error {
	return event.Validate()
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
