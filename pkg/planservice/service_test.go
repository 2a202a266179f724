package planservice_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/plans/pkg/eventstream"
	"github.com/papercomputeco/plans/pkg/fingerprint"
	"github.com/papercomputeco/plans/pkg/metrics"
	"github.com/papercomputeco/plans/pkg/plan"
	"github.com/papercomputeco/plans/pkg/planservice"
	"github.com/papercomputeco/plans/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/plans/pkg/utils/test"
	"github.com/papercomputeco/plans/pkg/validate"
)

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		store     *inmemory.Driver
		publisher *testutils.RecordingPublisher
		m         *metrics.Metrics
		svc       *planservice.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		publisher = testutils.NewRecordingPublisher()
		m = metrics.New(prometheus.NewRegistry())

		validator, err := validate.New()
		Expect(err).NotTo(HaveOccurred())

		svc, err = planservice.New(&planservice.Config{
			Store:     store,
			Publisher: publisher,
			Validator: validator,
			Metrics:   m,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires its dependencies", func() {
		_, err := planservice.New(&planservice.Config{})
		Expect(err).To(HaveOccurred())
	})

	Describe("Create", func() {
		It("stores every node and publishes INDEX with the canonical document", func() {
			id, err := svc.Create(ctx, testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("p1"))
			Expect(store.Len()).To(Equal(8))

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Topic).To(Equal("plans.index"))
			Expect(events[0].Event.Operation).To(Equal(eventstream.OperationIndex))
			Expect(events[0].Event.ObjectID).To(Equal("p1"))

			canonical, err := plan.Encode(testutils.SamplePlan("p1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(*events[0].Event.JSONData).To(Equal(string(canonical)))
		})

		It("rejects a duplicate root id without publishing", func() {
			_, err := svc.Create(ctx, testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Create(ctx, testutils.MinimalPlanJSON("p1"))
			Expect(err).To(MatchError(&planservice.AlreadyExistsError{ID: "p1"}))
			Expect(publisher.Events()).To(HaveLen(1))
		})

		It("rejects a nested id owned by another plan and writes nothing", func() {
			_, err := svc.Create(ctx, testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())

			doc := []byte(`{"objectId":"p2","objectType":"plan","_org":"example.com","planType":"inNetwork","creationDate":"12-12-2017",
				"planCostShares":{"objectId":"p1-mcs","objectType":"membercostshare","_org":"example.com","deductible":1,"copay":1}}`)
			_, err = svc.Create(ctx, doc)
			Expect(err).To(MatchError(&planservice.AlreadyExistsError{ID: "p1-mcs"}))

			Expect(store.Len()).To(Equal(8))
			_, err = svc.Get(ctx, "p2")
			Expect(err).To(BeAssignableToTypeOf(&planservice.NotFoundError{}))

			current, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(current.Plan.CostShares.Deductible).To(Equal(2000))
		})

		It("rejects a schema violation and stores nothing", func() {
			_, err := svc.Create(ctx, []byte(`{"objectId":"p1","objectType":"plan"}`))

			var invalid *planservice.ValidationError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(invalid.Violations).NotTo(BeEmpty())
			Expect(store.Len()).To(BeZero())
			Expect(publisher.Events()).To(BeEmpty())
		})

		It("lets exactly one of many concurrent creates succeed", func() {
			const racers = 10
			var (
				wg        sync.WaitGroup
				succeeded atomic.Int32
				conflicts atomic.Int32
			)
			for range racers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := svc.Create(ctx, testutils.SamplePlanJSON("race"))
					switch {
					case err == nil:
						succeeded.Add(1)
					case errors.As(err, new(*planservice.AlreadyExistsError)):
						conflicts.Add(1)
					default:
						Fail("unexpected error: " + err.Error())
					}
				}()
			}
			wg.Wait()

			Expect(succeeded.Load()).To(Equal(int32(1)))
			Expect(conflicts.Load()).To(Equal(int32(racers - 1)))
			Expect(store.Len()).To(Equal(8))
		})

		It("succeeds when the event cannot be published", func() {
			publisher.Err = errors.New("broker down")

			_, err := svc.Create(ctx, testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.ToFloat64(m.EventsPublishedTotal.WithLabelValues("plans.index", "error"))).To(Equal(1.0))
		})
	})

	Describe("Get", func() {
		It("returns the canonical document and its fingerprint", func() {
			_, err := svc.Create(ctx, testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())

			got, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())

			canonical, err := plan.Encode(testutils.SamplePlan("p1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Document).To(Equal(canonical))
			Expect(got.Fingerprint).To(Equal(fingerprint.Of(canonical)))
		})

		It("returns the same fingerprint on every read", func() {
			_, err := svc.Create(ctx, testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())

			a, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			b, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Fingerprint).To(Equal(b.Fingerprint))
		})

		It("returns NotFoundError for an unknown id", func() {
			_, err := svc.Get(ctx, "missing")
			Expect(err).To(MatchError(&planservice.NotFoundError{ID: "missing"}))
		})

		It("does not serve nested objects as plans", func() {
			_, err := svc.Create(ctx, testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Get(ctx, "p1-ps-1")
			Expect(err).To(MatchError(&planservice.NotFoundError{ID: "p1-ps-1"}))
		})
	})

	Describe("Patch", func() {
		var created *planservice.Versioned

		BeforeEach(func() {
			_, err := svc.Create(ctx, testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())
			created, err = svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("merges with a matching fingerprint and publishes UPDATE", func() {
			got, err := svc.Patch(ctx, "p1", fingerprint.Quote(created.Fingerprint), []byte(`{"planCostShares":{"copay":40}}`))
			Expect(err).NotTo(HaveOccurred())

			Expect(got.Plan.CostShares.Copay).To(Equal(40))
			Expect(got.Plan.CostShares.Deductible).To(Equal(2000))
			Expect(got.Fingerprint).NotTo(Equal(created.Fingerprint))

			reread, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(reread.Fingerprint).To(Equal(got.Fingerprint))

			Expect(publisher.Operations()).To(Equal([]eventstream.Operation{
				eventstream.OperationIndex, eventstream.OperationUpdate,
			}))
			Expect(*publisher.Events()[1].Event.JSONData).To(Equal(string(got.Document)))
		})

		It("patches unconditionally without If-Match", func() {
			_, err := svc.Patch(ctx, "p1", "", []byte(`{"planType":"outOfNetwork"}`))
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a stale fingerprint and leaves the plan unchanged", func() {
			_, err := svc.Patch(ctx, "p1", created.Fingerprint, []byte(`{"planType":"outOfNetwork"}`))
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Patch(ctx, "p1", created.Fingerprint, []byte(`{"planType":"again"}`))
			Expect(err).To(BeAssignableToTypeOf(&planservice.PreconditionFailedError{}))

			current, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(current.Plan.PlanType).To(Equal("outOfNetwork"))
			Expect(publisher.Operations()).To(HaveLen(2))
		})

		It("replaces the linked plan services and removes the old nodes", func() {
			_, err := svc.Patch(ctx, "p1", "", []byte(`{"linkedPlanServices":[{
				"objectId":"p1-ps-new","objectType":"planservice","_org":"example.com",
				"linkedService":{"objectId":"p1-svc-new","objectType":"service","_org":"example.com","name":"Dental"},
				"planserviceCostShares":{"objectId":"p1-pscs-new","objectType":"membercostshare","_org":"example.com","deductible":0,"copay":5}
			}]}`))
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Len()).To(Equal(5))
			ok, err := store.ExistsByID(ctx, "p1-svc-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("keeps old nested ids available for reuse in the same patch", func() {
			_, err := svc.Patch(ctx, "p1", "", []byte(`{"linkedPlanServices":[{
				"objectId":"p1-ps-1","objectType":"planservice","_org":"example.com",
				"linkedService":{"objectId":"p1-svc-1","objectType":"service","_org":"example.com","name":"Renamed"},
				"planserviceCostShares":{"objectId":"p1-pscs-1","objectType":"membercostshare","_org":"example.com","deductible":0,"copay":5}
			}]}`))
			Expect(err).NotTo(HaveOccurred())

			current, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(current.Plan.Services).To(HaveLen(1))
			Expect(current.Plan.Services[0].Service.Name).To(Equal("Renamed"))
		})

		It("rejects a merge result that violates the schema", func() {
			_, err := svc.Patch(ctx, "p1", "", []byte(`{"planCostShares":{"deductible":-5}}`))
			Expect(err).To(BeAssignableToTypeOf(&planservice.ValidationError{}))

			current, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(current.Fingerprint).To(Equal(created.Fingerprint))
		})

		It("rejects a patch that is not an object", func() {
			_, err := svc.Patch(ctx, "p1", "", []byte(`"hello"`))
			Expect(err).To(BeAssignableToTypeOf(&planservice.ValidationError{}))
		})

		It("returns NotFoundError for an unknown id", func() {
			_, err := svc.Patch(ctx, "missing", "", []byte(`{}`))
			Expect(err).To(MatchError(&planservice.NotFoundError{ID: "missing"}))
		})
	})

	Describe("Example scenarios", func() {
		const p1 = `{"objectId":"p1","objectType":"plan","_org":"acme","planType":"HMO","creationDate":"2024-01-01"}`

		It("creates, patches with a current fingerprint and rejects a stale one", func() {
			id, err := svc.Create(ctx, []byte(p1))
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("p1"))

			first, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Document).To(MatchJSON(p1))
			f1 := first.Fingerprint

			second, err := svc.Patch(ctx, "p1", f1, []byte(`{"planType":"PPO"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Document).To(MatchJSON(`{"objectId":"p1","objectType":"plan","_org":"acme","planType":"PPO","creationDate":"2024-01-01"}`))
			f2 := second.Fingerprint
			Expect(f2).NotTo(Equal(f1))

			_, err = svc.Patch(ctx, "p1", f1, []byte(`{"planType":"EPO"}`))
			Expect(err).To(MatchError(&planservice.PreconditionFailedError{ID: "p1", Current: f2}))

			current, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(current.Plan.PlanType).To(Equal("PPO"))
		})

		It("deletes a plan service and both of its children", func() {
			_, err := svc.Create(ctx, []byte(`{"objectId":"p4","objectType":"plan","_org":"acme","planType":"HMO","creationDate":"2024-01-01",
				"linkedPlanServices":[{"objectId":"p4-ps","objectType":"planservice","_org":"acme",
					"linkedService":{"objectId":"p4-svc","objectType":"service","_org":"acme","name":"checkup"},
					"planserviceCostShares":{"objectId":"p4-cs","objectType":"membercostshare","_org":"acme","deductible":0,"copay":10}}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Len()).To(Equal(4))

			Expect(svc.Delete(ctx, "p4")).To(Succeed())
			Expect(store.Len()).To(BeZero())
		})
	})

	DescribeTable("stores plan services with optional children left out",
		func(services string, wantNodes int) {
			doc := `{"objectId":"p1","objectType":"plan","_org":"acme","planType":"HMO","creationDate":"2024-01-01","linkedPlanServices":` + services + `}`
			_, err := svc.Create(ctx, []byte(doc))
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Len()).To(Equal(wantNodes))

			got, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Document).To(MatchJSON(doc))
		},
		Entry("neither child",
			`[{"objectId":"ps","objectType":"planservice","_org":"acme"}]`, 2),
		Entry("only the linked service",
			`[{"objectId":"ps","objectType":"planservice","_org":"acme",
			   "linkedService":{"objectId":"svc","objectType":"service","_org":"acme","name":"checkup"}}]`, 3),
		Entry("only the cost share",
			`[{"objectId":"ps","objectType":"planservice","_org":"acme",
			   "planserviceCostShares":{"objectId":"cs","objectType":"membercostshare","_org":"acme","deductible":0,"copay":10}}]`, 3),
	)

	Describe("Patch with null values", func() {
		BeforeEach(func() {
			_, err := svc.Create(ctx, testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects the patch as malformed and leaves the plan untouched", func() {
			before, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Patch(ctx, "p1", "", []byte(`{"planCostShares":null}`))

			var invalid *planservice.ValidationError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(invalid.Malformed()).To(BeTrue())
			var malformed *plan.MalformedDocumentError
			Expect(errors.As(err, &malformed)).To(BeTrue())
			Expect(malformed.Path).To(Equal("planCostShares"))

			after, err := svc.Get(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(after.Fingerprint).To(Equal(before.Fingerprint))
			ok, err := store.ExistsByID(ctx, "p1-mcs")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(publisher.Operations()).To(Equal([]eventstream.Operation{eventstream.OperationIndex}))
			Expect(testutil.ToFloat64(m.PlanOperationsTotal.WithLabelValues("patch", "malformed"))).To(Equal(1.0))
		})

		It("keeps schema violations distinct from malformed documents", func() {
			_, err := svc.Patch(ctx, "p1", "", []byte(`{"planCostShares":{"deductible":-5}}`))

			var invalid *planservice.ValidationError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(invalid.Malformed()).To(BeFalse())
			Expect(testutil.ToFloat64(m.PlanOperationsTotal.WithLabelValues("patch", "invalid"))).To(Equal(1.0))
		})
	})

	Describe("Delete", func() {
		It("removes the whole tree and publishes DELETE", func() {
			_, err := svc.Create(ctx, testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Create(ctx, testutils.SamplePlanJSON("p2"))
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Delete(ctx, "p1")).To(Succeed())

			Expect(store.Len()).To(Equal(8))
			for _, id := range []string{"p1", "p1-mcs", "p1-ps-2", "p1-svc-2", "p1-pscs-2"} {
				ok, err := store.ExistsByID(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse(), id)
			}

			last := publisher.Events()[2].Event
			Expect(last.Operation).To(Equal(eventstream.OperationDelete))
			Expect(last.JSONData).To(BeNil())
		})

		It("returns NotFoundError the second time", func() {
			_, err := svc.Create(ctx, testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Delete(ctx, "p1")).To(Succeed())
			Expect(svc.Delete(ctx, "p1")).To(MatchError(&planservice.NotFoundError{ID: "p1"}))
		})
	})
})
