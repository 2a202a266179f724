// Package inmemory provides a process-local event stream with bounded topic
// queues and in-process redelivery. It backs single-binary deployments and
// tests.
package inmemory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/papercomputeco/plans/pkg/eventstream"
	"github.com/papercomputeco/plans/pkg/metrics"
)

const defaultQueueSize uint = 256

// Config is the configuration options for the broker.
type Config struct {
	// QueueSize is the capacity of each topic queue (defaults to 256).
	// Publishing to a full queue blocks until space frees or ctx ends.
	QueueSize uint

	// Retry bounds redelivery of failing events.
	Retry eventstream.RetryPolicy

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Broker is both an eventstream.Publisher and an eventstream.Subscriber.
type Broker struct {
	config *Config
	logger *slog.Logger

	// mu guards queues and closed. Queues are never closed; senders and
	// receivers stop on done, so no lock is held across a blocking send.
	mu     sync.RWMutex
	queues map[string]chan *eventstream.Event
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewBroker creates a broker with no topics; topics are created on first use.
func NewBroker(c *Config) *Broker {
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	return &Broker{
		config: c,
		logger: c.Logger,
		queues: make(map[string]chan *eventstream.Event),
		done:   make(chan struct{}),
	}
}

// queue returns the channel for topic, creating it if needed.
func (b *Broker) queue(topic string) (chan *eventstream.Event, bool) {
	b.mu.RLock()
	q, ok := b.queues[topic]
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, false
	}
	if ok {
		return q, true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	if q, ok = b.queues[topic]; !ok {
		q = make(chan *eventstream.Event, b.config.QueueSize)
		b.queues[topic] = q
	}
	return q, true
}

// Publish enqueues event on topic.
func (b *Broker) Publish(ctx context.Context, topic string, event *eventstream.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	q, ok := b.queue(topic)
	if !ok {
		return eventstream.ErrClosed
	}

	select {
	case q <- event:
		b.logger.Debug("event queued",
			"topic", topic,
			"operation", event.Operation,
			"object_id", event.ObjectID,
		)
		return nil
	case <-b.done:
		return eventstream.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe delivers events from topic to handler until ctx ends or the
// broker closes. An event whose handler fails every attempt is moved to the
// topic's dead-letter queue, which is created here along with the topic.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler eventstream.Handler) error {
	q, ok := b.queue(topic)
	if !ok {
		return eventstream.ErrClosed
	}
	if _, ok := b.queue(eventstream.DeadLetterTopic(topic)); !ok {
		return eventstream.ErrClosed
	}

	b.logger.Debug("subscriber started", "topic", topic)
	defer b.logger.Debug("subscriber stopped", "topic", topic)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return nil
		case event := <-q:
			b.deliver(ctx, topic, handler, event)
		}
	}
}

func (b *Broker) deliver(ctx context.Context, topic string, handler eventstream.Handler, event *eventstream.Event) {
	attempts, err := b.config.Retry.Deliver(ctx, handler, event)
	b.config.Metrics.RecordDelivery(topic, attempts, err)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		// Shutting down: put the event back so it is not lost for a
		// later subscriber on this broker.
		b.requeue(topic, event)
		return
	}

	dlq := eventstream.DeadLetterTopic(topic)
	b.logger.Error("event delivery failed, moving to dead-letter queue",
		"topic", topic,
		"dead_letter_topic", dlq,
		"operation", event.Operation,
		"object_id", event.ObjectID,
		"attempts", attempts,
		"error", err,
	)
	b.config.Metrics.RecordDeadLetter(topic)
	b.requeue(dlq, event)
}

// requeue puts event on topic without blocking; it is dropped if the queue
// is full or the broker closed.
func (b *Broker) requeue(topic string, event *eventstream.Event) {
	q, ok := b.queue(topic)
	if !ok {
		return
	}

	select {
	case q <- event:
	default:
		b.logger.Error("queue full, event dropped",
			"topic", topic,
			"object_id", event.ObjectID,
		)
	}
}

// Pending returns the number of events waiting on topic.
func (b *Broker) Pending(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.queues[topic])
}

// Drain removes and returns every event waiting on topic. It is mostly
// useful for inspecting dead-letter queues.
func (b *Broker) Drain(topic string) []*eventstream.Event {
	b.mu.RLock()
	q := b.queues[topic]
	b.mu.RUnlock()

	var out []*eventstream.Event
	for {
		select {
		case e := <-q:
			out = append(out, e)
		default:
			return out
		}
	}
}

// Close stops all subscribers and unblocks waiting publishers. Events still
// queued are discarded.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.done)
	})
	return nil
}
