package plan_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/plans/pkg/plan"
	testutils "github.com/papercomputeco/plans/pkg/utils/test"
)

var errMissing = errors.New("missing")

// mapLoader is a minimal plan.NodeLoader over a slice of nodes.
type mapLoader struct {
	nodes []*plan.Node
}

func (m *mapLoader) Get(_ context.Context, id string) (*plan.Node, error) {
	for _, n := range m.nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, errMissing
}

func (m *mapLoader) FindByParentID(_ context.Context, parentID string) ([]*plan.Node, error) {
	var out []*plan.Node
	for _, n := range m.nodes {
		if n.Parent() == parentID && !n.IsRoot() {
			out = append(out, n)
		}
	}
	slices.SortStableFunc(out, func(a, b *plan.Node) int { return a.Ordinal - b.Ordinal })
	return out, nil
}

var _ = Describe("Tree", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("Decompose", func() {
		It("emits one node per object in document order", func() {
			nodes, err := plan.Decompose(testutils.SamplePlan("p1"))
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, 0, len(nodes))
			for _, n := range nodes {
				ids = append(ids, n.ID)
			}
			Expect(ids).To(Equal([]string{
				"p1", "p1-mcs",
				"p1-ps-1", "p1-svc-1", "p1-pscs-1",
				"p1-ps-2", "p1-svc-2", "p1-pscs-2",
			}))
		})

		It("links every non-root node to its parent", func() {
			nodes, err := plan.Decompose(testutils.SamplePlan("p1"))
			Expect(err).NotTo(HaveOccurred())

			byID := map[string]*plan.Node{}
			for _, n := range nodes {
				byID[n.ID] = n
			}
			Expect(byID["p1"].IsRoot()).To(BeTrue())
			Expect(byID["p1-mcs"].Parent()).To(Equal("p1"))
			Expect(byID["p1-ps-2"].Parent()).To(Equal("p1"))
			Expect(byID["p1-svc-2"].Parent()).To(Equal("p1-ps-2"))
			Expect(byID["p1-pscs-1"].Parent()).To(Equal("p1-ps-1"))
		})

		It("assigns node types from the tree position", func() {
			nodes, err := plan.Decompose(testutils.SamplePlan("p1"))
			Expect(err).NotTo(HaveOccurred())

			Expect(nodes[0].Type).To(Equal(plan.NodeTypePlan))
			Expect(nodes[1].Type).To(Equal(plan.NodeTypeCostShare))
			Expect(nodes[2].Type).To(Equal(plan.NodeTypePlanService))
			Expect(nodes[3].Type).To(Equal(plan.NodeTypeService))
			Expect(nodes[4].Type).To(Equal(plan.NodeTypeCostShare))
		})

		It("keeps only leaf fields as attributes", func() {
			nodes, err := plan.Decompose(testutils.SamplePlan("p1"))
			Expect(err).NotTo(HaveOccurred())

			Expect(nodes[0].Attributes.Map()).To(Equal(map[string]any{
				"objectType":   "plan",
				"_org":         "example.com",
				"planType":     "inNetwork",
				"creationDate": "12-12-2017",
			}))
			Expect(nodes[1].Attributes.Int("deductible")).To(Equal(2000))
			Expect(nodes[3].Attributes.String("name")).To(Equal("Yearly physical"))
		})

		It("decomposes a root-only plan into a single node", func() {
			p, err := plan.Decode(testutils.MinimalPlanJSON("solo"))
			Expect(err).NotTo(HaveOccurred())

			nodes, err := plan.Decompose(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(1))
		})
	})

	Describe("Reconstruct", func() {
		It("round-trips a decomposed plan to identical canonical bytes", func() {
			original := testutils.SamplePlan("p1")
			nodes, err := plan.Decompose(original)
			Expect(err).NotTo(HaveOccurred())

			rebuilt, err := plan.Reconstruct(ctx, &mapLoader{nodes: nodes}, "p1")
			Expect(err).NotTo(HaveOccurred())

			want, err := plan.Encode(original)
			Expect(err).NotTo(HaveOccurred())
			got, err := plan.Encode(rebuilt)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		})

		DescribeTable("round-trips plan services with missing children",
			func(services string, wantNodes int) {
				original, err := plan.Decode([]byte(`{"objectId":"p","objectType":"plan","_org":"o","planType":"t","creationDate":"2024-01-01",
					"linkedPlanServices":` + services + `}`))
				Expect(err).NotTo(HaveOccurred())

				nodes, err := plan.Decompose(original)
				Expect(err).NotTo(HaveOccurred())
				Expect(nodes).To(HaveLen(wantNodes))

				rebuilt, err := plan.Reconstruct(ctx, &mapLoader{nodes: nodes}, "p")
				Expect(err).NotTo(HaveOccurred())
				Expect(rebuilt).To(Equal(original))
			},
			Entry("neither child",
				`[{"objectId":"ps","objectType":"planservice","_org":"o"}]`, 2),
			Entry("only the linked service",
				`[{"objectId":"ps","objectType":"planservice","_org":"o",
				   "linkedService":{"objectId":"s","objectType":"service","_org":"o","name":"n"}}]`, 3),
			Entry("only the cost share",
				`[{"objectId":"ps","objectType":"planservice","_org":"o",
				   "planserviceCostShares":{"objectId":"c","objectType":"membercostshare","_org":"o","deductible":1,"copay":2}}]`, 3),
			Entry("a mix across siblings",
				`[{"objectId":"ps1","objectType":"planservice","_org":"o"},
				  {"objectId":"ps2","objectType":"planservice","_org":"o",
				   "planserviceCostShares":{"objectId":"c","objectType":"membercostshare","_org":"o","deductible":1,"copay":2}}]`, 4),
		)

		It("is insensitive to storage order of siblings", func() {
			nodes, err := plan.Decompose(testutils.SamplePlan("p1"))
			Expect(err).NotTo(HaveOccurred())
			slices.Reverse(nodes)

			rebuilt, err := plan.Reconstruct(ctx, &mapLoader{nodes: nodes}, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(rebuilt.Services).To(HaveLen(2))
			Expect(rebuilt.Services[0].ObjectID).To(Equal("p1-ps-1"))
			Expect(rebuilt.Services[1].ObjectID).To(Equal("p1-ps-2"))
		})

		It("survives a JSON round trip of the nodes", func() {
			nodes, err := plan.Decompose(testutils.SamplePlan("p1"))
			Expect(err).NotTo(HaveOccurred())

			raw, err := json.Marshal(nodes)
			Expect(err).NotTo(HaveOccurred())
			var decoded []*plan.Node
			Expect(json.Unmarshal(raw, &decoded)).To(Succeed())

			rebuilt, err := plan.Reconstruct(ctx, &mapLoader{nodes: decoded}, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(rebuilt).To(Equal(testutils.SamplePlan("p1")))
		})

		It("wraps the loader error when the root is missing", func() {
			_, err := plan.Reconstruct(ctx, &mapLoader{}, "nope")
			Expect(err).To(MatchError(errMissing))
		})

		It("rejects a root that is not a plan", func() {
			parent := "x"
			loader := &mapLoader{nodes: []*plan.Node{{ID: "cs", Type: plan.NodeTypeCostShare, ParentID: &parent}}}

			_, err := plan.Reconstruct(ctx, loader, "cs")
			Expect(err).To(MatchError(plan.ErrCorruptTree))
		})

		It("rejects a service attached directly to a plan", func() {
			root := "p"
			loader := &mapLoader{nodes: []*plan.Node{
				{ID: "p", Type: plan.NodeTypePlan},
				{ID: "s", Type: plan.NodeTypeService, ParentID: &root},
			}}

			_, err := plan.Reconstruct(ctx, loader, "p")
			Expect(err).To(MatchError(plan.ErrCorruptTree))
		})
	})
})
