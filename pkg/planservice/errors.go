package planservice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/plans/pkg/plan"
	"github.com/papercomputeco/plans/pkg/storage"
)

// NotFoundError is returned when no plan exists with the requested id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "plan not found: " + e.ID
}

// AlreadyExistsError is returned when a create collides with a stored id.
// ID is the colliding objectId, which may belong to a nested object.
type AlreadyExistsError struct {
	ID string
}

func (e *AlreadyExistsError) Error() string {
	return "object already exists: " + e.ID
}

// PreconditionFailedError is returned when If-Match does not name the
// current fingerprint.
type PreconditionFailedError struct {
	ID      string
	Current string
}

func (e *PreconditionFailedError) Error() string {
	return "precondition failed: plan " + e.ID + " has changed"
}

// ValidationError is returned when a document or the result of a merge does
// not satisfy the plan schema. When the document could not be mapped onto the
// plan tree at all, Err holds the *plan.MalformedDocumentError and
// errors.As reaches it.
type ValidationError struct {
	Violations []string
	Err        error
}

func (e *ValidationError) Error() string {
	return "plan document failed validation: " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Malformed reports whether the document was rejected for its shape rather
// than for a schema violation.
func (e *ValidationError) Malformed() bool {
	var malformed *plan.MalformedDocumentError
	return errors.As(e.Err, &malformed)
}

// TransientError wraps a storage failure. The operation may be retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// classify maps errors from the plan and storage packages onto the service's
// error kinds. Errors that already carry a kind pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		notFound   *NotFoundError
		exists     *AlreadyExistsError
		precond    *PreconditionFailedError
		invalid    *ValidationError
		malformed  *plan.MalformedDocumentError
		nodeExists storage.AlreadyExistsError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &exists), errors.As(err, &precond), errors.As(err, &invalid):
		return err
	case errors.As(err, &malformed):
		return &ValidationError{Violations: []string{malformed.Error()}, Err: malformed}
	case errors.As(err, &nodeExists):
		return &AlreadyExistsError{ID: nodeExists.ID}
	}
	return &TransientError{Op: op, Err: err}
}
