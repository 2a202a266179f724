// Package inmemory provides a map-backed storage.Driver.
package inmemory

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/papercomputeco/plans/pkg/plan"
	"github.com/papercomputeco/plans/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
//
// Writes, including whole transactions, are serialized by txMu. A
// transaction works on a copy of the node map which is swapped in on commit,
// so readers never observe a partially applied transaction.
type Driver struct {
	txMu sync.Mutex

	// mu guards state for readers and for the commit swap
	mu    sync.RWMutex
	state *state
}

// NewDriver creates a new in-memory storer.
func NewDriver() *Driver {
	return &Driver{
		state: &state{nodes: make(map[string]entry)},
	}
}

type entry struct {
	node *plan.Node
	seq  uint64
}

// state is the node map plus the insertion counter used to break ordinal
// ties. It performs no locking of its own.
type state struct {
	nodes map[string]entry
	seq   uint64
}

func (s *state) clone() *state {
	return &state{nodes: maps.Clone(s.nodes), seq: s.seq}
}

func (s *state) get(id string) (*plan.Node, error) {
	e, ok := s.nodes[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	return e.node.Clone(), nil
}

func (s *state) children(parentID string) []*plan.Node {
	var found []entry
	for _, e := range s.nodes {
		if e.node.ParentID != nil && *e.node.ParentID == parentID {
			found = append(found, e)
		}
	}
	slices.SortFunc(found, func(a, b entry) int {
		if c := cmp.Compare(a.node.Ordinal, b.node.Ordinal); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]*plan.Node, 0, len(found))
	for _, e := range found {
		out = append(out, e.node.Clone())
	}
	return out
}

func (s *state) insert(node *plan.Node) error {
	if node == nil {
		return errors.New("cannot store nil node")
	}
	if _, ok := s.nodes[node.ID]; ok {
		return storage.AlreadyExistsError{ID: node.ID}
	}
	s.put(node)
	return nil
}

func (s *state) upsert(node *plan.Node) error {
	if node == nil {
		return errors.New("cannot store nil node")
	}
	s.put(node)
	return nil
}

func (s *state) put(node *plan.Node) {
	seq := s.seq
	if prev, ok := s.nodes[node.ID]; ok {
		seq = prev.seq
	} else {
		s.seq++
	}
	s.nodes[node.ID] = entry{node: node.Clone(), seq: seq}
}

func (s *state) deleteByParent(parentID string) {
	for id, e := range s.nodes {
		if e.node.ParentID != nil && *e.node.ParentID == parentID {
			delete(s.nodes, id)
		}
	}
}

// Get retrieves a node by id.
func (d *Driver) Get(_ context.Context, id string) (*plan.Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.get(id)
}

// FindByParentID returns the children of parentID in sibling order.
func (d *Driver) FindByParentID(_ context.Context, parentID string) ([]*plan.Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.children(parentID), nil
}

// ExistsByID reports whether id is stored.
func (d *Driver) ExistsByID(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.state.nodes[id]
	return ok, nil
}

// Insert stores a node whose id must be free.
func (d *Driver) Insert(ctx context.Context, node *plan.Node) error {
	return d.WithinTx(ctx, func(ctx context.Context, tx storage.Store) error {
		return tx.Insert(ctx, node)
	})
}

// Upsert stores or replaces a node.
func (d *Driver) Upsert(ctx context.Context, node *plan.Node) error {
	return d.WithinTx(ctx, func(ctx context.Context, tx storage.Store) error {
		return tx.Upsert(ctx, node)
	})
}

// DeleteByID removes a node.
func (d *Driver) DeleteByID(ctx context.Context, id string) error {
	return d.WithinTx(ctx, func(ctx context.Context, tx storage.Store) error {
		return tx.DeleteByID(ctx, id)
	})
}

// DeleteByParentID removes the children of parentID.
func (d *Driver) DeleteByParentID(ctx context.Context, parentID string) error {
	return d.WithinTx(ctx, func(ctx context.Context, tx storage.Store) error {
		return tx.DeleteByParentID(ctx, parentID)
	})
}

// WithinTx runs fn against a private copy of the store and publishes the
// copy only if fn succeeds.
func (d *Driver) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	d.txMu.Lock()
	defer d.txMu.Unlock()

	d.mu.RLock()
	staged := d.state.clone()
	d.mu.RUnlock()

	if err := fn(ctx, &tx{state: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	d.state = staged
	d.mu.Unlock()
	return nil
}

// Len returns the number of stored nodes.
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.state.nodes)
}

// Close is a no-op for the in-memory storer.
func (d *Driver) Close() error {
	return nil
}

// tx is the storage.Store handed to WithinTx callbacks.
type tx struct {
	state *state
}

func (t *tx) Get(_ context.Context, id string) (*plan.Node, error) {
	return t.state.get(id)
}

func (t *tx) FindByParentID(_ context.Context, parentID string) ([]*plan.Node, error) {
	return t.state.children(parentID), nil
}

func (t *tx) ExistsByID(_ context.Context, id string) (bool, error) {
	_, ok := t.state.nodes[id]
	return ok, nil
}

func (t *tx) Insert(_ context.Context, node *plan.Node) error {
	return t.state.insert(node)
}

func (t *tx) Upsert(_ context.Context, node *plan.Node) error {
	return t.state.upsert(node)
}

func (t *tx) DeleteByID(_ context.Context, id string) error {
	delete(t.state.nodes, id)
	return nil
}

func (t *tx) DeleteByParentID(_ context.Context, parentID string) error {
	t.state.deleteByParent(parentID)
	return nil
}
