// Package projector keeps a searchindex.Index in step with the node store by
// consuming change events.
//
// Every handler is idempotent: INDEX and UPDATE re-derive all documents from
// the event payload and overwrite them, and DELETE removes whatever is left.
// Redelivery therefore converges to the same index state.
package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/papercomputeco/plans/pkg/eventstream"
	"github.com/papercomputeco/plans/pkg/metrics"
	"github.com/papercomputeco/plans/pkg/plan"
	"github.com/papercomputeco/plans/pkg/searchindex"
)

// Config is the configuration for the projector.
type Config struct {
	Index   searchindex.Index
	Metrics *metrics.Metrics

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Projector applies change events to a search index.
type Projector struct {
	index   searchindex.Index
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a projector.
func New(c *Config) (*Projector, error) {
	if c.Index == nil {
		return nil, errors.New("projector: an index is required")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Projector{index: c.Index, metrics: c.Metrics, logger: logger}, nil
}

// Handle applies one event. It satisfies eventstream.Handler.
func (p *Projector) Handle(ctx context.Context, event *eventstream.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	switch event.Operation {
	case eventstream.OperationIndex:
		return p.project(ctx, event, false)
	case eventstream.OperationUpdate:
		return p.project(ctx, event, true)
	case eventstream.OperationDelete:
		return p.remove(ctx, event.ObjectID)
	}
	return fmt.Errorf("%w: %q", eventstream.ErrUnknownOperation, event.Operation)
}

// project writes one document per node of the event's document. On update,
// documents of the tree that the new document no longer contains are pruned.
func (p *Projector) project(ctx context.Context, event *eventstream.Event, prune bool) error {
	doc, err := plan.Decode([]byte(*event.JSONData))
	if err != nil {
		return fmt.Errorf("decoding %s payload for %s: %w", event.Operation, event.ObjectID, err)
	}
	if doc.ObjectID != event.ObjectID {
		return fmt.Errorf("%s payload is for %s, event is for %s", event.Operation, doc.ObjectID, event.ObjectID)
	}

	nodes, err := plan.Decompose(doc)
	if err != nil {
		return err
	}

	keep := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		sdoc, ok := searchindex.FromNode(n, doc.ObjectID)
		if !ok {
			return fmt.Errorf("node %s has unknown type %q", n.ID, n.Type)
		}
		if err := p.index.Upsert(ctx, sdoc); err != nil {
			return fmt.Errorf("indexing %s: %w", n.ID, err)
		}
		keep[n.ID] = struct{}{}
	}
	p.metrics.RecordProjection("upsert", len(nodes))

	if prune {
		if err := p.prune(ctx, doc.ObjectID, keep); err != nil {
			return err
		}
	}

	p.logger.Info("plan projected",
		"operation", event.Operation,
		"object_id", event.ObjectID,
		"documents", len(nodes),
	)
	return nil
}

func (p *Projector) prune(ctx context.Context, rootID string, keep map[string]struct{}) error {
	existing, err := p.index.Search(ctx, searchindex.Filter{Routing: rootID, Limit: 10_000})
	if err != nil {
		return fmt.Errorf("listing documents of %s: %w", rootID, err)
	}

	removed := 0
	for _, doc := range existing {
		if _, ok := keep[doc.ID]; ok {
			continue
		}
		if err := p.index.DeleteByID(ctx, doc.ID, rootID); err != nil {
			return fmt.Errorf("pruning %s: %w", doc.ID, err)
		}
		removed++
	}
	if removed > 0 {
		p.metrics.RecordProjection("delete", removed)
		p.logger.Debug("pruned stale documents", "object_id", rootID, "removed", removed)
	}
	return nil
}

// remove deletes the descendants of rootID and then rootID itself. A failed
// descendant removal is logged as drift and does not stop the root delete.
func (p *Projector) remove(ctx context.Context, rootID string) error {
	removed, err := p.index.DeleteDescendants(ctx, rootID)
	if err != nil {
		p.metrics.RecordDrift(string(eventstream.OperationDelete))
		p.logger.Error("failed to remove descendant documents, index may hold orphans",
			"object_id", rootID,
			"error", err,
		)
	} else {
		p.metrics.RecordProjection("delete", removed)
	}

	if err := p.index.DeleteByID(ctx, rootID, rootID); err != nil {
		return fmt.Errorf("removing %s: %w", rootID, err)
	}
	p.metrics.RecordProjection("delete", 1)

	p.logger.Info("plan removed from index", "object_id", rootID, "descendants", removed)
	return nil
}

// Run subscribes the projector to every topic and blocks until ctx is
// cancelled or a subscription fails. Topics are consumed independently, so
// ordering across topics is not guaranteed.
func (p *Projector) Run(ctx context.Context, sub eventstream.Subscriber, topics eventstream.Topics) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		once sync.Once
		werr error
	)
	for _, topic := range topics.All() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sub.Subscribe(ctx, topic, p.Handle); err != nil {
				once.Do(func() {
					werr = fmt.Errorf("consuming %s: %w", topic, err)
					cancel()
				})
			}
		}()
	}

	p.logger.Info("projector running", "topics", topics.All())
	wg.Wait()
	return werr
}
