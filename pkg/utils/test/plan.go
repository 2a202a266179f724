package testutils

import (
	"fmt"

	"github.com/papercomputeco/plans/pkg/plan"
)

// SamplePlanJSON returns a complete plan document rooted at id. Every nested
// objectId is derived from id, so documents built from different ids never
// share nodes.
func SamplePlanJSON(id string) []byte {
	return fmt.Appendf(nil, `{
  "planCostShares": {
    "deductible": 2000,
    "_org": "example.com",
    "copay": 23,
    "objectId": "%[1]s-mcs",
    "objectType": "membercostshare"
  },
  "linkedPlanServices": [
    {
      "linkedService": {
        "_org": "example.com",
        "objectId": "%[1]s-svc-1",
        "objectType": "service",
        "name": "Yearly physical"
      },
      "planserviceCostShares": {
        "deductible": 10,
        "_org": "example.com",
        "copay": 0,
        "objectId": "%[1]s-pscs-1",
        "objectType": "membercostshare"
      },
      "_org": "example.com",
      "objectId": "%[1]s-ps-1",
      "objectType": "planservice"
    },
    {
      "linkedService": {
        "_org": "example.com",
        "objectId": "%[1]s-svc-2",
        "objectType": "service",
        "name": "well baby"
      },
      "planserviceCostShares": {
        "deductible": 10,
        "_org": "example.com",
        "copay": 175,
        "objectId": "%[1]s-pscs-2",
        "objectType": "membercostshare"
      },
      "_org": "example.com",
      "objectId": "%[1]s-ps-2",
      "objectType": "planservice"
    }
  ],
  "_org": "example.com",
  "objectId": "%[1]s",
  "objectType": "plan",
  "planType": "inNetwork",
  "creationDate": "12-12-2017"
}`, id)
}

// MinimalPlanJSON returns a plan with only its root scalar fields.
func MinimalPlanJSON(id string) []byte {
	return fmt.Appendf(nil, `{"objectId":%q,"objectType":"plan","_org":"example.com","planType":"outOfNetwork","creationDate":"01-01-2020"}`, id)
}

// SamplePlan decodes SamplePlanJSON(id) and panics on failure.
func SamplePlan(id string) *plan.Plan {
	p, err := plan.Decode(SamplePlanJSON(id))
	if err != nil {
		panic(err)
	}
	return p
}
