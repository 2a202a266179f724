// Package plan models a plan document as a typed tree and maps it to and from
// the flat, parent-linked nodes persisted by a storage.Driver.
//
// The tree shape is fixed: a Plan holds at most one CostShare and any number
// of PlanService entries; each PlanService holds at most one Service and at
// most one CostShare. Every member of the tree implements Object.
package plan

// Object is implemented by every typed member of the plan tree.
type Object interface {
	// ID returns the client-assigned objectId.
	ID() string

	// NodeType returns the fixed node taxonomy entry for the object.
	NodeType() NodeType

	// attributes returns the object's own leaf fields in document order,
	// excluding objectId.
	attributes() Attributes
}

// Plan is the root of a plan document.
type Plan struct {
	ObjectID     string        `json:"objectId"`
	ObjectType   string        `json:"objectType"`
	Org          string        `json:"_org"`
	PlanType     string        `json:"planType"`
	CreationDate string        `json:"creationDate"`
	CostShares   *CostShare    `json:"planCostShares,omitempty"`
	Services     []PlanService `json:"linkedPlanServices,omitempty"`
}

// CostShare holds deductible and copay terms. It appears under a Plan as
// planCostShares and under a PlanService as planserviceCostShares.
type CostShare struct {
	ObjectID   string `json:"objectId"`
	ObjectType string `json:"objectType"`
	Org        string `json:"_org"`
	Deductible int    `json:"deductible"`
	Copay      int    `json:"copay"`
}

// PlanService links a Service and its own cost-share terms to a Plan.
type PlanService struct {
	ObjectID   string     `json:"objectId"`
	ObjectType string     `json:"objectType"`
	Org        string     `json:"_org"`
	Service    *Service   `json:"linkedService,omitempty"`
	CostShares *CostShare `json:"planserviceCostShares,omitempty"`
}

// Service is the service offered by a PlanService.
type Service struct {
	ObjectID   string `json:"objectId"`
	ObjectType string `json:"objectType"`
	Org        string `json:"_org"`
	Name       string `json:"name"`
}

func (p *Plan) ID() string                 { return p.ObjectID }
func (p *Plan) NodeType() NodeType         { return NodeTypePlan }
func (c *CostShare) ID() string            { return c.ObjectID }
func (c *CostShare) NodeType() NodeType    { return NodeTypeCostShare }
func (ps *PlanService) ID() string         { return ps.ObjectID }
func (ps *PlanService) NodeType() NodeType { return NodeTypePlanService }
func (s *Service) ID() string              { return s.ObjectID }
func (s *Service) NodeType() NodeType      { return NodeTypeService }

func (p *Plan) attributes() Attributes {
	return Attributes{
		{Key: "objectType", Value: p.ObjectType},
		{Key: "_org", Value: p.Org},
		{Key: "planType", Value: p.PlanType},
		{Key: "creationDate", Value: p.CreationDate},
	}
}

func (c *CostShare) attributes() Attributes {
	return Attributes{
		{Key: "objectType", Value: c.ObjectType},
		{Key: "_org", Value: c.Org},
		{Key: "deductible", Value: c.Deductible},
		{Key: "copay", Value: c.Copay},
	}
}

func (ps *PlanService) attributes() Attributes {
	return Attributes{
		{Key: "objectType", Value: ps.ObjectType},
		{Key: "_org", Value: ps.Org},
	}
}

func (s *Service) attributes() Attributes {
	return Attributes{
		{Key: "objectType", Value: s.ObjectType},
		{Key: "_org", Value: s.Org},
		{Key: "name", Value: s.Name},
	}
}

func planFromNode(n *Node) *Plan {
	return &Plan{
		ObjectID:     n.ID,
		ObjectType:   n.Attributes.String("objectType"),
		Org:          n.Attributes.String("_org"),
		PlanType:     n.Attributes.String("planType"),
		CreationDate: n.Attributes.String("creationDate"),
	}
}

func costShareFromNode(n *Node) *CostShare {
	return &CostShare{
		ObjectID:   n.ID,
		ObjectType: n.Attributes.String("objectType"),
		Org:        n.Attributes.String("_org"),
		Deductible: n.Attributes.Int("deductible"),
		Copay:      n.Attributes.Int("copay"),
	}
}

func planServiceFromNode(n *Node) *PlanService {
	return &PlanService{
		ObjectID:   n.ID,
		ObjectType: n.Attributes.String("objectType"),
		Org:        n.Attributes.String("_org"),
	}
}

func serviceFromNode(n *Node) *Service {
	return &Service{
		ObjectID:   n.ID,
		ObjectType: n.Attributes.String("objectType"),
		Org:        n.Attributes.String("_org"),
		Name:       n.Attributes.String("name"),
	}
}
