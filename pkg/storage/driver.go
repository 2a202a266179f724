// Package storage defines the node store that persists decomposed plan trees.
package storage

import (
	"context"

	"github.com/papercomputeco/plans/pkg/plan"
)

// Store is the set of node operations available both on a Driver and inside
// one of its transactions.
type Store interface {
	// Get retrieves a node by id. Returns NotFoundError when absent.
	Get(ctx context.Context, id string) (*plan.Node, error)

	// FindByParentID returns the direct children of parentID ordered by
	// ordinal, then by insertion order.
	FindByParentID(ctx context.Context, parentID string) ([]*plan.Node, error)

	// ExistsByID reports whether a node with id is stored.
	ExistsByID(ctx context.Context, id string) (bool, error)

	// Insert stores a node that must not exist yet. Returns
	// AlreadyExistsError when the id is taken. Concurrent inserts of the
	// same id succeed for exactly one caller.
	Insert(ctx context.Context, node *plan.Node) error

	// Upsert stores a node, replacing any node with the same id.
	Upsert(ctx context.Context, node *plan.Node) error

	// DeleteByID removes a node. Deleting an absent id is not an error.
	DeleteByID(ctx context.Context, id string) error

	// DeleteByParentID removes the direct children of parentID.
	DeleteByParentID(ctx context.Context, parentID string) error
}

// Driver is a Store backed by a storage engine.
type Driver interface {
	Store

	// WithinTx runs fn against a Store whose writes become visible together
	// when fn returns nil and are discarded when it returns an error.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Close closes the store and releases any resources.
	Close() error
}
