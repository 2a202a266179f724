// Package storagetest holds the behaviors every storage.Driver must show,
// written as ginkgo specs so each driver's suite can run them.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/plans/pkg/plan"
	"github.com/papercomputeco/plans/pkg/storage"
	testutils "github.com/papercomputeco/plans/pkg/utils/test"
)

// DriverBehaviors registers the shared driver specs. newDriver is called
// before each test and must return an empty driver.
func DriverBehaviors(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
			driver = nil
		}
	})

	store := func(id string) []*plan.Node {
		nodes, err := plan.Decompose(testutils.SamplePlan(id))
		Expect(err).NotTo(HaveOccurred())
		for _, n := range nodes {
			Expect(driver.Upsert(ctx, n)).To(Succeed())
		}
		return nodes
	}

	Describe("Get", func() {
		It("returns a stored node with its attributes", func() {
			store("p1")

			n, err := driver.Get(ctx, "p1-mcs")
			Expect(err).NotTo(HaveOccurred())
			Expect(n.Type).To(Equal(plan.NodeTypeCostShare))
			Expect(n.Parent()).To(Equal("p1"))
			Expect(n.Attributes.Int("deductible")).To(Equal(2000))
			Expect(n.Attributes.String("_org")).To(Equal("example.com"))
		})

		It("returns NotFoundError for an unknown id", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})
	})

	Describe("ExistsByID", func() {
		It("reports stored and missing ids", func() {
			store("p1")

			ok, err := driver.ExistsByID(ctx, "p1-svc-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = driver.ExistsByID(ctx, "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("FindByParentID", func() {
		It("returns children in ordinal order", func() {
			store("p1")

			children, err := driver.FindByParentID(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			ids := []string{}
			for _, c := range children {
				ids = append(ids, c.ID)
			}
			Expect(ids).To(Equal([]string{"p1-mcs", "p1-ps-1", "p1-ps-2"}))
		})

		It("returns an empty result for a leaf", func() {
			store("p1")

			children, err := driver.FindByParentID(ctx, "p1-svc-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(children).To(BeEmpty())
		})

		It("reconstructs the stored plan", func() {
			store("p1")

			rebuilt, err := plan.Reconstruct(ctx, driver, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(rebuilt).To(Equal(testutils.SamplePlan("p1")))
		})
	})

	Describe("Insert", func() {
		It("rejects an id that is already stored", func() {
			store("p1")

			err := driver.Insert(ctx, &plan.Node{ID: "p1", Type: plan.NodeTypePlan})
			Expect(err).To(MatchError(storage.AlreadyExistsError{ID: "p1"}))
		})

		It("lets exactly one of many concurrent inserts win", func() {
			const racers = 8
			var (
				wg   sync.WaitGroup
				wins atomic.Int32
			)
			for range racers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					err := driver.Insert(ctx, &plan.Node{ID: "contested", Type: plan.NodeTypePlan})
					if err == nil {
						wins.Add(1)
						return
					}
					Expect(err).To(BeAssignableToTypeOf(storage.AlreadyExistsError{}))
				}()
			}
			wg.Wait()

			Expect(wins.Load()).To(Equal(int32(1)))
		})
	})

	Describe("Upsert", func() {
		It("replaces an existing node", func() {
			store("p1")

			n, err := driver.Get(ctx, "p1-svc-1")
			Expect(err).NotTo(HaveOccurred())
			n.Attributes = plan.Attributes{{Key: "name", Value: "renamed"}}
			Expect(driver.Upsert(ctx, n)).To(Succeed())

			got, err := driver.Get(ctx, "p1-svc-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Attributes.String("name")).To(Equal("renamed"))
		})
	})

	Describe("Delete", func() {
		It("removes a node by id", func() {
			store("p1")

			Expect(driver.DeleteByID(ctx, "p1-mcs")).To(Succeed())
			ok, err := driver.ExistsByID(ctx, "p1-mcs")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("ignores a missing id", func() {
			Expect(driver.DeleteByID(ctx, "missing")).To(Succeed())
		})

		It("removes only the direct children of a parent", func() {
			store("p1")

			Expect(driver.DeleteByParentID(ctx, "p1")).To(Succeed())

			for _, id := range []string{"p1-mcs", "p1-ps-1", "p1-ps-2"} {
				ok, err := driver.ExistsByID(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse(), id)
			}
			ok, err := driver.ExistsByID(ctx, "p1-svc-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("leaves other plans untouched", func() {
			store("p1")
			store("p2")

			Expect(driver.DeleteByParentID(ctx, "p1")).To(Succeed())

			children, err := driver.FindByParentID(ctx, "p2")
			Expect(err).NotTo(HaveOccurred())
			Expect(children).To(HaveLen(3))
		})
	})

	Describe("WithinTx", func() {
		It("applies every write when the callback succeeds", func() {
			nodes, err := plan.Decompose(testutils.SamplePlan("p1"))
			Expect(err).NotTo(HaveOccurred())

			err = driver.WithinTx(ctx, func(ctx context.Context, tx storage.Store) error {
				for _, n := range nodes {
					if err := tx.Insert(ctx, n); err != nil {
						return err
					}
				}
				return nil
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = plan.Reconstruct(ctx, driver, "p1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("discards every write when the callback fails", func() {
			store("p1")
			nodes, err := plan.Decompose(testutils.SamplePlan("p2"))
			Expect(err).NotTo(HaveOccurred())

			err = driver.WithinTx(ctx, func(ctx context.Context, tx storage.Store) error {
				Expect(tx.DeleteByParentID(ctx, "p1")).To(Succeed())
				for _, n := range nodes {
					if err := tx.Insert(ctx, n); err != nil {
						return err
					}
				}
				// collides with the stored plan
				return tx.Insert(ctx, &plan.Node{ID: "p1", Type: plan.NodeTypePlan})
			})
			Expect(err).To(MatchError(storage.AlreadyExistsError{ID: "p1"}))

			ok, err := driver.ExistsByID(ctx, "p2")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			children, err := driver.FindByParentID(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(children).To(HaveLen(3))
		})

		It("sees its own writes", func() {
			err := driver.WithinTx(ctx, func(ctx context.Context, tx storage.Store) error {
				if err := tx.Insert(ctx, &plan.Node{ID: "solo", Type: plan.NodeTypePlan}); err != nil {
					return err
				}
				ok, err := tx.ExistsByID(ctx, "solo")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		})
	})
}
