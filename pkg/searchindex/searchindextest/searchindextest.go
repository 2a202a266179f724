// Package searchindextest holds the behaviors every searchindex.Index must
// show, written as ginkgo specs so each backend's suite can run them.
package searchindextest

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/plans/pkg/plan"
	"github.com/papercomputeco/plans/pkg/searchindex"
	testutils "github.com/papercomputeco/plans/pkg/utils/test"
)

// IndexBehaviors registers the shared index specs. newIndex is called before
// each test and must return an empty, bootstrapped index.
func IndexBehaviors(newIndex func() searchindex.Index) {
	var (
		index searchindex.Index
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		index = newIndex()
	})

	AfterEach(func() {
		if index != nil {
			Expect(index.Close()).To(Succeed())
			index = nil
		}
	})

	project := func(id string) {
		nodes, err := plan.Decompose(testutils.SamplePlan(id))
		Expect(err).NotTo(HaveOccurred())
		for _, n := range nodes {
			doc, ok := searchindex.FromNode(n, id)
			Expect(ok).To(BeTrue())
			Expect(index.Upsert(ctx, doc)).To(Succeed())
		}
	}

	It("bootstraps idempotently", func() {
		Expect(index.Bootstrap(ctx)).To(Succeed())
		Expect(index.Bootstrap(ctx)).To(Succeed())
	})

	It("stores a document with its join and routing", func() {
		project("p1")

		doc, err := index.Get(ctx, "p1-svc-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Join).To(Equal(searchindex.Join{Name: searchindex.RelationService, Parent: "p1-ps-1"}))
		Expect(doc.Routing).To(Equal("p1"))
		Expect(doc.Source).To(HaveKeyWithValue("name", "Yearly physical"))
		Expect(doc.Source).To(HaveKeyWithValue("objectId", "p1-svc-1"))
	})

	It("returns NotFoundError for an unknown id", func() {
		_, err := index.Get(ctx, "missing")
		Expect(err).To(MatchError(searchindex.NotFoundError{ID: "missing"}))
	})

	It("overwrites on repeated upsert", func() {
		project("p1")
		project("p1")

		docs, err := index.Search(ctx, searchindex.Filter{Routing: "p1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(8))
	})

	It("filters by relation and parent", func() {
		project("p1")
		project("p2")

		docs, err := index.Search(ctx, searchindex.Filter{Relation: searchindex.RelationPlanService, Parent: "p2"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(2))
		Expect(docs[0].ID).To(Equal("p2-ps-1"))
		Expect(docs[1].ID).To(Equal("p2-ps-2"))
	})

	It("filters by org and object type", func() {
		project("p1")

		docs, err := index.Search(ctx, searchindex.Filter{Org: "example.com", ObjectType: "membercostshare"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(3))

		docs, err = index.Search(ctx, searchindex.Filter{Org: "other.org"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(BeEmpty())
	})

	It("applies the limit", func() {
		project("p1")

		docs, err := index.Search(ctx, searchindex.Filter{Routing: "p1", Limit: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(3))
	})

	It("removes every descendant but keeps the root", func() {
		project("p1")
		project("p2")

		removed, err := index.DeleteDescendants(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(Equal(7))

		docs, err := index.Search(ctx, searchindex.Filter{Routing: "p1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].ID).To(Equal("p1"))

		docs, err = index.Search(ctx, searchindex.Filter{Routing: "p2"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(8))
	})

	It("deletes by id and tolerates a missing id", func() {
		project("p1")

		Expect(index.DeleteByID(ctx, "p1", "p1")).To(Succeed())
		_, err := index.Get(ctx, "p1")
		Expect(err).To(MatchError(searchindex.NotFoundError{ID: "p1"}))

		Expect(index.DeleteByID(ctx, "missing", "missing")).To(Succeed())
	})
}
