// Package searchindex defines the parent/child-joined search index that the
// projector keeps in step with the node store.
//
// Every plan node becomes one Document. Documents carry a join relation and
// their parent's id, and are routed by the id of the root plan so a whole
// tree can be addressed at once.
package searchindex

import (
	"context"

	"github.com/papercomputeco/plans/pkg/plan"
)

// Relation is the join-field role of a document.
type Relation string

const (
	RelationPlan        Relation = "plan"
	RelationCostShare   Relation = "costShare"
	RelationPlanService Relation = "planService"
	RelationService     Relation = "service"
)

// RelationFor maps a node type to its join relation.
func RelationFor(t plan.NodeType) (Relation, bool) {
	switch t {
	case plan.NodeTypePlan:
		return RelationPlan, true
	case plan.NodeTypeCostShare:
		return RelationCostShare, true
	case plan.NodeTypePlanService:
		return RelationPlanService, true
	case plan.NodeTypeService:
		return RelationService, true
	}
	return "", false
}

// Join is the document's position in the parent/child hierarchy.
type Join struct {
	Name   Relation `json:"name"`
	Parent string   `json:"parent,omitempty"`
}

// Document is one indexed plan node.
type Document struct {
	ID string `json:"id"`

	Join Join `json:"join"`

	// Routing is the root plan id. Every document of a tree shares it.
	Routing string `json:"routing"`

	// Source holds the node's objectId and leaf fields.
	Source map[string]any `json:"source"`
}

// Org returns the document's _org field, if any.
func (d *Document) Org() string {
	s, _ := d.Source["_org"].(string)
	return s
}

// ObjectType returns the document's objectType field, if any.
func (d *Document) ObjectType() string {
	s, _ := d.Source["objectType"].(string)
	return s
}

// FromNode builds the document for n in the tree rooted at rootID.
func FromNode(n *plan.Node, rootID string) (Document, bool) {
	rel, ok := RelationFor(n.Type)
	if !ok {
		return Document{}, false
	}

	source := n.Attributes.Map()
	source["objectId"] = n.ID
	return Document{
		ID:      n.ID,
		Join:    Join{Name: rel, Parent: n.Parent()},
		Routing: rootID,
		Source:  source,
	}, true
}

// Filter selects documents. Empty fields match everything; set fields are
// combined with AND.
type Filter struct {
	Relation   Relation
	Routing    string
	Parent     string
	Org        string
	ObjectType string

	// Limit caps the result size. Zero means DefaultLimit.
	Limit int
}

// DefaultLimit is the result cap applied when a Filter sets none.
const DefaultLimit = 100

// EffectiveLimit returns the limit to apply for f.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

// Matches reports whether d satisfies f, ignoring Limit.
func (f Filter) Matches(d *Document) bool {
	switch {
	case f.Relation != "" && d.Join.Name != f.Relation:
		return false
	case f.Routing != "" && d.Routing != f.Routing:
		return false
	case f.Parent != "" && d.Join.Parent != f.Parent:
		return false
	case f.Org != "" && d.Org() != f.Org:
		return false
	case f.ObjectType != "" && d.ObjectType() != f.ObjectType:
		return false
	}
	return true
}

// Index is a search backend.
type Index interface {
	// Bootstrap creates the index and its join mapping if missing.
	Bootstrap(ctx context.Context) error

	// Upsert writes doc, replacing any document with the same id.
	Upsert(ctx context.Context, doc Document) error

	// Get returns the document with id. Returns NotFoundError when absent.
	Get(ctx context.Context, id string) (*Document, error)

	// DeleteByID removes a document. Deleting an absent id is not an error.
	DeleteByID(ctx context.Context, id, routing string) error

	// DeleteDescendants removes every document routed to rootID except the
	// root itself and returns how many were removed.
	DeleteDescendants(ctx context.Context, rootID string) (int, error)

	// Search returns documents matching filter ordered by id.
	Search(ctx context.Context, filter Filter) ([]Document, error)

	Close() error
}

// NotFoundError is returned when a document doesn't exist in the index.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return "document not found: " + e.ID
}
