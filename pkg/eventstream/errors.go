package eventstream

import "errors"

var (
	// ErrNilEvent indicates a nil event was provided to a publisher.
	ErrNilEvent = errors.New("nil event")

	// ErrInvalidEvent indicates an event is missing a required field.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrUnknownOperation indicates an operation outside INDEX, UPDATE and DELETE.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrClosed is returned when publishing to or subscribing on a closed stream.
	ErrClosed = errors.New("event stream closed")
)
