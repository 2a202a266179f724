package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/plans/pkg/eventstream"
	"github.com/papercomputeco/plans/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("creates a non-nil publisher", func() {
		p := nop.NewPublisher()
		Expect(p).NotTo(BeNil())
	})

	It("returns ErrNilEvent for nil events", func() {
		p := nop.NewPublisher()
		err := p.Publish(context.Background(), "plans.index", nil)
		Expect(err).To(MatchError(eventstream.ErrNilEvent))
	})

	It("succeeds for well formed events", func() {
		p := nop.NewPublisher()
		err := p.Publish(context.Background(), "plans.delete", eventstream.NewEvent(eventstream.OperationDelete, "p1", nil))
		Expect(err).NotTo(HaveOccurred())
	})

	It("closes successfully", func() {
		p := nop.NewPublisher()
		Expect(p.Close()).To(Succeed())
	})
})
