package kafka_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/plans/pkg/eventstream"
	"github.com/papercomputeco/plans/pkg/eventstream/kafka"
)

// brokers returns the Kafka brokers from environment or skips the test.
func brokers() []string {
	list := os.Getenv("PLANS_TEST_KAFKA_BROKERS")
	if list == "" {
		Skip("PLANS_TEST_KAFKA_BROKERS not set, skipping Kafka tests")
	}
	return strings.Split(list, ",")
}

var _ = Describe("Config", func() {
	It("requires brokers", func() {
		_, err := kafka.NewPublisher(&kafka.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("requires a consumer group for subscribers", func() {
		_, err := kafka.NewSubscriber(&kafka.Config{Brokers: []string{"localhost:9092"}})
		Expect(err).To(HaveOccurred())
	})

	It("rejects invalid events before touching the network", func() {
		p, err := kafka.NewPublisher(&kafka.Config{Brokers: []string{"localhost:1"}})
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		Expect(p.Publish(context.Background(), "t", nil)).To(MatchError(eventstream.ErrNilEvent))
	})
})

var _ = Describe("Round trip", func() {
	var (
		cfg   *kafka.Config
		topic string
	)

	BeforeEach(func() {
		cfg = &kafka.Config{
			Brokers: brokers(),
			GroupID: "plans-test-" + uuid.NewString(),
			Retry:   eventstream.RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond},
		}
		topic = "plans-test-" + uuid.NewString()
	})

	It("delivers a published event and dead-letters a poison one", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		pub, err := kafka.NewPublisher(cfg)
		Expect(err).NotTo(HaveOccurred())
		defer pub.Close()

		Expect(pub.Publish(ctx, topic, eventstream.NewEvent(eventstream.OperationDelete, "good", nil))).To(Succeed())
		Expect(pub.Publish(ctx, topic, eventstream.NewEvent(eventstream.OperationDelete, "bad", nil))).To(Succeed())

		sub, err := kafka.NewSubscriber(cfg)
		Expect(err).NotTo(HaveOccurred())
		defer sub.Close()

		var good, bad atomic.Int32
		subCtx, stop := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- sub.Subscribe(subCtx, topic, func(_ context.Context, e *eventstream.Event) error {
				if e.ObjectID == "bad" {
					bad.Add(1)
					return errors.New("poison")
				}
				good.Add(1)
				return nil
			})
		}()

		Eventually(good.Load, 30*time.Second).Should(Equal(int32(1)))
		Eventually(bad.Load, 30*time.Second).Should(Equal(int32(2)))
		stop()
		Eventually(done, 10*time.Second).Should(Receive(BeNil()))
	})
})
