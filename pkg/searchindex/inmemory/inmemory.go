// Package inmemory provides a map-backed searchindex.Index.
package inmemory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/papercomputeco/plans/pkg/searchindex"
)

// Index implements searchindex.Index using an in-memory map.
type Index struct {
	mu   sync.RWMutex
	docs map[string]searchindex.Document
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{docs: make(map[string]searchindex.Document)}
}

// Bootstrap is a no-op.
func (i *Index) Bootstrap(context.Context) error {
	return nil
}

func (i *Index) Upsert(_ context.Context, doc searchindex.Document) error {
	doc.Source = maps.Clone(doc.Source)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs[doc.ID] = doc
	return nil
}

func (i *Index) Get(_ context.Context, id string) (*searchindex.Document, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	doc, ok := i.docs[id]
	if !ok {
		return nil, searchindex.NotFoundError{ID: id}
	}
	doc.Source = maps.Clone(doc.Source)
	return &doc, nil
}

func (i *Index) DeleteByID(_ context.Context, id, _ string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.docs, id)
	return nil
}

func (i *Index) DeleteDescendants(_ context.Context, rootID string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for id, doc := range i.docs {
		if doc.Routing == rootID && id != rootID {
			delete(i.docs, id)
			removed++
		}
	}
	return removed, nil
}

func (i *Index) Search(_ context.Context, filter searchindex.Filter) ([]searchindex.Document, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var out []searchindex.Document
	for _, doc := range i.docs {
		if filter.Matches(&doc) {
			doc.Source = maps.Clone(doc.Source)
			out = append(out, doc)
		}
	}
	slices.SortFunc(out, func(a, b searchindex.Document) int { return strings.Compare(a.ID, b.ID) })
	if limit := filter.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of indexed documents.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

func (i *Index) Close() error {
	return nil
}
