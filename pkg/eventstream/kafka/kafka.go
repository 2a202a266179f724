// Package kafka provides an event stream over Apache Kafka.
//
// Events are keyed by objectId so every change to one plan lands on the same
// partition. Consumers commit an offset only after the handler succeeded or
// the event was written to the dead-letter topic, so a crash redelivers.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/plans/pkg/eventstream"
	"github.com/papercomputeco/plans/pkg/metrics"
	"github.com/papercomputeco/plans/pkg/utils"
)

// Config is the configuration for the Kafka publisher and subscriber.
type Config struct {
	// Brokers are the bootstrap broker addresses, e.g. "localhost:9092".
	Brokers []string

	// GroupID is the consumer group shared by projector instances.
	GroupID string

	// Retry bounds redelivery of failing events.
	Retry eventstream.RetryPolicy

	// Metrics is optional. Only the subscriber records deliveries.
	Metrics *metrics.Metrics

	// Logger is the provided slog logger
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

func newWriter(brokers []string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

func encode(topic string, event *eventstream.Event) (kafkago.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("kafka: encoding event: %w", err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(event.ObjectID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "operation", Value: []byte(event.Operation)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}, nil
}

// Publisher writes events to Kafka.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a publisher. Topics are created on first write when
// the cluster allows it.
func NewPublisher(c *Config) (*Publisher, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &Publisher{
		writer: newWriter(c.Brokers),
		logger: c.Logger,
	}, nil
}

// Publish writes event to topic and waits for all in-sync replicas.
func (p *Publisher) Publish(ctx context.Context, topic string, event *eventstream.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	msg, err := encode(topic, event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publishing to %s: %w", topic, err)
	}

	p.logger.Debug("event published",
		"topic", topic,
		"operation", event.Operation,
		"object_id", event.ObjectID,
	)
	return nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Subscriber consumes events from Kafka as part of a consumer group.
type Subscriber struct {
	config *Config
	dlq    *kafkago.Writer
	logger *slog.Logger
}

// NewSubscriber creates a subscriber in consumer group c.GroupID.
func NewSubscriber(c *Config) (*Subscriber, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.GroupID == "" {
		return nil, errors.New("kafka: a consumer group id is required")
	}
	return &Subscriber{
		config: c,
		dlq:    newWriter(c.Brokers),
		logger: c.Logger,
	}, nil
}

// Subscribe consumes topic until ctx is cancelled.
func (s *Subscriber) Subscribe(ctx context.Context, topic string, handler eventstream.Handler) error {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  s.config.Brokers,
		GroupID:  s.config.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	defer reader.Close()

	s.logger.Info("subscriber started", "topic", topic, "group_id", s.config.GroupID)
	defer s.logger.Info("subscriber stopped", "topic", topic)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: fetching from %s: %w", topic, err)
		}

		if err := s.handle(ctx, topic, handler, msg); err != nil {
			if ctx.Err() != nil {
				// Not committed: the group redelivers it after restart.
				return nil
			}
			return err
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: committing offset on %s: %w", topic, err)
		}
	}
}

// handle delivers msg and dead-letters it when delivery fails. A nil return
// means the offset may be committed.
func (s *Subscriber) handle(ctx context.Context, topic string, handler eventstream.Handler, msg kafkago.Message) error {
	var event eventstream.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		s.logger.Error("undecodable event",
			"topic", topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"payload", utils.Truncate(string(msg.Value), 256),
			"error", err,
		)
		return s.deadLetter(ctx, topic, msg, err)
	}

	attempts, err := s.config.Retry.Deliver(ctx, handler, &event)
	s.config.Metrics.RecordDelivery(topic, attempts, err)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Error("event delivery failed, moving to dead-letter topic",
		"topic", topic,
		"operation", event.Operation,
		"object_id", event.ObjectID,
		"attempts", attempts,
		"error", err,
	)
	return s.deadLetter(ctx, topic, msg, err)
}

func (s *Subscriber) deadLetter(ctx context.Context, topic string, msg kafkago.Message, cause error) error {
	dlq := eventstream.DeadLetterTopic(topic)
	headers := append([]kafkago.Header{}, msg.Headers...)
	headers = append(headers, kafkago.Header{Key: "error", Value: []byte(cause.Error())})

	err := s.dlq.WriteMessages(ctx, kafkago.Message{
		Topic:   dlq,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("kafka: writing to %s: %w", dlq, err)
	}
	s.config.Metrics.RecordDeadLetter(topic)
	return nil
}

// Close releases the dead-letter writer.
func (s *Subscriber) Close() error {
	return s.dlq.Close()
}
