package planservice

import (
	"context"
	"errors"

	"github.com/papercomputeco/plans/pkg/fingerprint"
	"github.com/papercomputeco/plans/pkg/plan"
	"github.com/papercomputeco/plans/pkg/storage"
)

// loadRoot returns the root node of plan id, or NotFoundError when id is
// absent or names a nested object.
func loadRoot(ctx context.Context, store storage.Store, id string) (*plan.Node, error) {
	root, err := store.Get(ctx, id)
	if err != nil {
		var nf storage.NotFoundError
		if errors.As(err, &nf) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, err
	}
	if root.Type != plan.NodeTypePlan || !root.IsRoot() {
		return nil, &NotFoundError{ID: id}
	}
	return root, nil
}

// load reconstructs plan id and fingerprints its canonical serialization.
func load(ctx context.Context, store storage.Store, id string) (*Versioned, error) {
	if _, err := loadRoot(ctx, store, id); err != nil {
		return nil, err
	}

	p, err := plan.Reconstruct(ctx, store, id)
	if err != nil {
		return nil, err
	}
	canonical, err := plan.Encode(p)
	if err != nil {
		return nil, err
	}
	return &Versioned{
		Plan:        p,
		Document:    canonical,
		Fingerprint: fingerprint.Of(canonical),
	}, nil
}

// writeTree stores decomposed nodes. The root is inserted atomically; a
// nested objectId already held by another plan is rejected rather than
// overwritten.
func writeTree(ctx context.Context, tx storage.Store, nodes []*plan.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	if err := tx.Insert(ctx, nodes[0]); err != nil {
		return err
	}

	for _, n := range nodes[1:] {
		exists, err := tx.ExistsByID(ctx, n.ID)
		if err != nil {
			return err
		}
		if exists {
			return &AlreadyExistsError{ID: n.ID}
		}
		if err := tx.Upsert(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// deleteTree removes plan id with its children and grandchildren. Plans are
// at most three levels deep.
func deleteTree(ctx context.Context, tx storage.Store, id string) error {
	children, err := tx.FindByParentID(ctx, id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.Type != plan.NodeTypePlanService {
			continue
		}
		if err := tx.DeleteByParentID(ctx, child.ID); err != nil {
			return err
		}
	}
	if err := tx.DeleteByParentID(ctx, id); err != nil {
		return err
	}
	return tx.DeleteByID(ctx, id)
}
