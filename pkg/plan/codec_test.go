package plan_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/plans/pkg/plan"
	testutils "github.com/papercomputeco/plans/pkg/utils/test"
)

var _ = Describe("Codec", func() {
	Describe("Decode", func() {
		It("decodes the full document tree", func() {
			p, err := plan.Decode(testutils.SamplePlanJSON("p1"))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.ObjectID).To(Equal("p1"))
			Expect(p.CostShares.Copay).To(Equal(23))
			Expect(p.Services).To(HaveLen(2))
			Expect(p.Services[1].Service.Name).To(Equal("well baby"))
		})

		DescribeTable("rejects documents that do not fit the tree",
			func(doc string, path string) {
				_, err := plan.Decode([]byte(doc))
				var malformed *plan.MalformedDocumentError
				Expect(err).To(BeAssignableToTypeOf(malformed))
				Expect(err.(*plan.MalformedDocumentError).Path).To(Equal(path))
			},
			Entry("missing root objectId", `{"objectType":"plan"}`, "$"),
			Entry("missing nested objectId",
				`{"objectId":"p","planCostShares":{"objectType":"membercostshare"}}`, "planCostShares"),
			Entry("unknown field", `{"objectId":"p","color":"red"}`, ""),
			Entry("fractional integer", `{"objectId":"p","planCostShares":{"objectId":"c","deductible":1.5}}`, "planCostShares.deductible"),
			Entry("duplicate objectId",
				`{"objectId":"p","linkedPlanServices":[{"objectId":"p"}]}`, "linkedPlanServices[0]"),
			Entry("trailing data", `{"objectId":"p"} {}`, ""),
			Entry("not JSON", `{"objectId":`, ""),
		)
	})

	Describe("Encode", func() {
		It("is independent of input key order", func() {
			a, err := plan.Decode([]byte(`{"objectId":"p","_org":"o","planType":"t"}`))
			Expect(err).NotTo(HaveOccurred())
			b, err := plan.Decode([]byte(`{"planType":"t","_org":"o","objectId":"p"}`))
			Expect(err).NotTo(HaveOccurred())

			ea, err := plan.Encode(a)
			Expect(err).NotTo(HaveOccurred())
			eb, err := plan.Encode(b)
			Expect(err).NotTo(HaveOccurred())
			Expect(ea).To(Equal(eb))
		})

		It("omits absent nested objects", func() {
			p, err := plan.Decode(testutils.MinimalPlanJSON("solo"))
			Expect(err).NotTo(HaveOccurred())

			out, err := plan.Encode(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).NotTo(ContainSubstring("planCostShares"))
			Expect(string(out)).NotTo(ContainSubstring("linkedPlanServices"))
		})
	})
})
