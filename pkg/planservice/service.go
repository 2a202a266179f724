// Package planservice implements the plan operations: create, get, patch and
// delete. Each write commits to the node store in one transaction and then
// announces the change on the event stream.
package planservice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/papercomputeco/plans/pkg/eventstream"
	"github.com/papercomputeco/plans/pkg/fingerprint"
	"github.com/papercomputeco/plans/pkg/metrics"
	"github.com/papercomputeco/plans/pkg/plan"
	"github.com/papercomputeco/plans/pkg/storage"
)

const publishTimeout = 5 * time.Second

// Validator checks a raw document against the plan schema and returns its
// violations.
type Validator interface {
	Validate(document []byte) []string
}

// Config is the configuration for the plan service.
type Config struct {
	Store     storage.Driver
	Publisher eventstream.Publisher
	Topics    eventstream.Topics
	Validator Validator
	Metrics   *metrics.Metrics

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Service is the plan service.
type Service struct {
	store     storage.Driver
	publisher eventstream.Publisher
	topics    eventstream.Topics
	validator Validator
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Versioned is a stored plan with its canonical serialization and the
// fingerprint of that serialization.
type Versioned struct {
	Plan        *plan.Plan
	Document    []byte
	Fingerprint string
}

// New creates a plan service.
func New(c *Config) (*Service, error) {
	switch {
	case c.Store == nil:
		return nil, errors.New("planservice: a store is required")
	case c.Publisher == nil:
		return nil, errors.New("planservice: a publisher is required")
	case c.Validator == nil:
		return nil, errors.New("planservice: a validator is required")
	}

	topics := c.Topics
	if topics == (eventstream.Topics{}) {
		topics = eventstream.DefaultTopics()
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Service{
		store:     c.Store,
		publisher: c.Publisher,
		topics:    topics,
		validator: c.Validator,
		metrics:   c.Metrics,
		logger:    logger,
	}, nil
}

// Create validates raw, stores it as a new plan and returns its id. Every
// objectId in the document must be unused.
func (s *Service) Create(ctx context.Context, raw []byte) (string, error) {
	start := time.Now()
	id, err := s.create(ctx, raw)
	s.observe("create", start, err)
	return id, err
}

func (s *Service) create(ctx context.Context, raw []byte) (string, error) {
	if violations := s.validator.Validate(raw); len(violations) > 0 {
		return "", &ValidationError{Violations: violations}
	}

	p, err := plan.Decode(raw)
	if err != nil {
		return "", classify("create", err)
	}
	nodes, err := plan.Decompose(p)
	if err != nil {
		return "", classify("create", err)
	}
	canonical, err := plan.Encode(p)
	if err != nil {
		return "", classify("create", err)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Store) error {
		exists, err := tx.ExistsByID(ctx, p.ObjectID)
		if err != nil {
			return err
		}
		if exists {
			return &AlreadyExistsError{ID: p.ObjectID}
		}
		return writeTree(ctx, tx, nodes)
	})
	if err != nil {
		return "", classify("create", err)
	}

	s.logger.Info("plan created", "object_id", p.ObjectID, "nodes", len(nodes))
	s.publish(ctx, eventstream.OperationIndex, p.ObjectID, canonical)
	return p.ObjectID, nil
}

// Get returns the plan stored under id.
func (s *Service) Get(ctx context.Context, id string) (*Versioned, error) {
	start := time.Now()
	v, err := load(ctx, s.store, id)
	err = classify("get", err)
	s.observe("get", start, err)
	return v, err
}

// Patch merges patch into the plan stored under id. When ifMatch is not
// empty it must name the plan's current fingerprint. The fingerprint check,
// merge and rewrite happen in one transaction.
func (s *Service) Patch(ctx context.Context, id, ifMatch string, patch []byte) (*Versioned, error) {
	start := time.Now()
	v, err := s.patch(ctx, id, ifMatch, patch)
	s.observe("patch", start, err)
	return v, err
}

func (s *Service) patch(ctx context.Context, id, ifMatch string, patch []byte) (*Versioned, error) {
	var result *Versioned
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Store) error {
		current, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		if ifMatch != "" && !fingerprint.Matches(ifMatch, current.Fingerprint) {
			return &PreconditionFailedError{ID: id, Current: current.Fingerprint}
		}

		merged, err := plan.ApplyPatch(current.Plan, patch)
		if err != nil {
			return err
		}
		canonical, err := plan.Encode(merged)
		if err != nil {
			return err
		}
		if violations := s.validator.Validate(canonical); len(violations) > 0 {
			return &ValidationError{Violations: violations}
		}
		nodes, err := plan.Decompose(merged)
		if err != nil {
			return err
		}

		if err := deleteTree(ctx, tx, id); err != nil {
			return err
		}
		if err := writeTree(ctx, tx, nodes); err != nil {
			return err
		}

		result = &Versioned{
			Plan:        merged,
			Document:    canonical,
			Fingerprint: fingerprint.Of(canonical),
		}
		return nil
	})
	if err != nil {
		return nil, classify("patch", err)
	}

	s.logger.Info("plan patched", "object_id", id, "fingerprint", result.Fingerprint)
	s.publish(ctx, eventstream.OperationUpdate, id, result.Document)
	return result, nil
}

// Delete removes the plan stored under id and all of its descendants.
func (s *Service) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.delete(ctx, id)
	s.observe("delete", start, err)
	return err
}

func (s *Service) delete(ctx context.Context, id string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Store) error {
		if _, err := loadRoot(ctx, tx, id); err != nil {
			return err
		}
		return deleteTree(ctx, tx, id)
	})
	if err != nil {
		return classify("delete", err)
	}

	s.logger.Info("plan deleted", "object_id", id)
	s.publish(ctx, eventstream.OperationDelete, id, nil)
	return nil
}

// publish announces a committed change. The store is the source of truth, so
// a failure here is logged and counted but not returned; the index catches up
// on the plan's next change.
func (s *Service) publish(ctx context.Context, op eventstream.Operation, id string, document []byte) {
	topic, err := s.topics.For(op)
	if err != nil {
		s.logger.Error("no topic for operation", "operation", op, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = s.publisher.Publish(ctx, topic, eventstream.NewEvent(op, id, document))
	s.metrics.RecordPublish(topic, err)
	if err != nil {
		s.logger.Warn("change event not published, search index will lag",
			"operation", op,
			"object_id", id,
			"topic", topic,
			"error", err,
		)
	}
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.metrics.RecordPlanOperation(op, outcome(err), time.Since(start))
	if err == nil {
		return
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		s.logger.Error("plan operation failed", "operation", op, "error", err)
		return
	}
	s.logger.Debug("plan operation rejected", "operation", op, "error", err)
}

func outcome(err error) string {
	var (
		notFound *NotFoundError
		exists   *AlreadyExistsError
		precond  *PreconditionFailedError
		invalid  *ValidationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &exists):
		return "conflict"
	case errors.As(err, &precond):
		return "precondition_failed"
	case errors.As(err, &invalid) && invalid.Malformed():
		return "malformed"
	case errors.As(err, &invalid):
		return "invalid"
	}
	return "error"
}
