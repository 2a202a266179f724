package plan

import (
	"errors"
	"fmt"
)

// ErrCorruptTree is returned by Reconstruct when the stored nodes do not form
// a valid plan tree.
var ErrCorruptTree = errors.New("stored plan tree has an invalid shape")

// MalformedDocumentError is returned when a document cannot be mapped onto
// the plan tree: a missing objectId, an unknown field, a wrongly typed scalar
// or a duplicated objectId.
type MalformedDocumentError struct {
	Path   string
	Reason string
}

func (e *MalformedDocumentError) Error() string {
	if e.Path == "" {
		return "malformed plan document: " + e.Reason
	}
	return fmt.Sprintf("malformed plan document at %s: %s", e.Path, e.Reason)
}

func malformed(path, format string, args ...any) error {
	return &MalformedDocumentError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
