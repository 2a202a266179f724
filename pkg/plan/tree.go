package plan

import (
	"context"
	"fmt"
)

// NodeLoader is the read side of a node store used by Reconstruct.
type NodeLoader interface {
	Get(ctx context.Context, id string) (*Node, error)

	// FindByParentID returns the children of parentID ordered by Ordinal.
	FindByParentID(ctx context.Context, parentID string) ([]*Node, error)
}

// Decompose flattens p into nodes in document order: the root first, then
// each object followed by its descendants. Sibling ordinals follow the
// document: the plan's cost share is ordinal 0 and services follow from 1;
// under a plan service the linked service is 0 and its cost share 1.
func Decompose(p *Plan) ([]*Node, error) {
	if err := p.check(); err != nil {
		return nil, err
	}

	nodes := []*Node{newNode(p, "", 0)}
	if p.CostShares != nil {
		nodes = append(nodes, newNode(p.CostShares, p.ObjectID, 0))
	}
	for i := range p.Services {
		ps := &p.Services[i]
		nodes = append(nodes, newNode(ps, p.ObjectID, i+1))
		if ps.Service != nil {
			nodes = append(nodes, newNode(ps.Service, ps.ObjectID, 0))
		}
		if ps.CostShares != nil {
			nodes = append(nodes, newNode(ps.CostShares, ps.ObjectID, 1))
		}
	}
	return nodes, nil
}

func newNode(obj Object, parentID string, ordinal int) *Node {
	n := &Node{
		ID:         obj.ID(),
		Type:       obj.NodeType(),
		Ordinal:    ordinal,
		Attributes: obj.attributes(),
	}
	if parentID != "" {
		n.ParentID = &parentID
	}
	return n
}

// Reconstruct rebuilds the plan rooted at rootID. The loader's errors are
// returned wrapped, so callers can match a missing root with errors.As.
func Reconstruct(ctx context.Context, loader NodeLoader, rootID string) (*Plan, error) {
	root, err := loader.Get(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("loading plan %s: %w", rootID, err)
	}
	if root.Type != NodeTypePlan || !root.IsRoot() {
		return nil, fmt.Errorf("%w: node %s is a %s, not a root plan", ErrCorruptTree, rootID, root.Type)
	}

	p := planFromNode(root)
	children, err := loader.FindByParentID(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("loading children of %s: %w", rootID, err)
	}

	for _, child := range children {
		switch child.Type {
		case NodeTypeCostShare:
			if p.CostShares != nil {
				return nil, fmt.Errorf("%w: plan %s has more than one cost share", ErrCorruptTree, rootID)
			}
			p.CostShares = costShareFromNode(child)
		case NodeTypePlanService:
			ps, err := reconstructPlanService(ctx, loader, child)
			if err != nil {
				return nil, err
			}
			p.Services = append(p.Services, *ps)
		case NodeTypePlan, NodeTypeService:
			return nil, fmt.Errorf("%w: %s %s cannot be a child of a plan", ErrCorruptTree, child.Type, child.ID)
		default:
			return nil, fmt.Errorf("%w: unknown node type %q", ErrCorruptTree, child.Type)
		}
	}
	return p, nil
}

func reconstructPlanService(ctx context.Context, loader NodeLoader, n *Node) (*PlanService, error) {
	ps := planServiceFromNode(n)
	children, err := loader.FindByParentID(ctx, n.ID)
	if err != nil {
		return nil, fmt.Errorf("loading children of %s: %w", n.ID, err)
	}

	for _, child := range children {
		switch child.Type {
		case NodeTypeService:
			if ps.Service != nil {
				return nil, fmt.Errorf("%w: plan service %s has more than one service", ErrCorruptTree, n.ID)
			}
			ps.Service = serviceFromNode(child)
		case NodeTypeCostShare:
			if ps.CostShares != nil {
				return nil, fmt.Errorf("%w: plan service %s has more than one cost share", ErrCorruptTree, n.ID)
			}
			ps.CostShares = costShareFromNode(child)
		case NodeTypePlan, NodeTypePlanService:
			return nil, fmt.Errorf("%w: %s %s cannot be a child of a plan service", ErrCorruptTree, child.Type, child.ID)
		default:
			return nil, fmt.Errorf("%w: unknown node type %q", ErrCorruptTree, child.Type)
		}
	}
	return ps, nil
}
