package eventstream

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersionV1 is the first version of the event payload schema.
const SchemaVersionV1 = 1

// Operation names the store change an event reports.
type Operation string

const (
	// OperationIndex is emitted after a plan is created.
	OperationIndex Operation = "INDEX"

	// OperationUpdate is emitted after a plan is patched.
	OperationUpdate Operation = "UPDATE"

	// OperationDelete is emitted after a plan is deleted.
	OperationDelete Operation = "DELETE"
)

// Event is a committed store change. JSONData carries the full canonical
// document for INDEX and UPDATE and is null for DELETE.
type Event struct {
	Operation     Operation `json:"operation"`
	ObjectID      string    `json:"objectId"`
	JSONData      *string   `json:"jsonData"`
	SchemaVersion int       `json:"schemaVersion"`
	EventID       string    `json:"eventId"`
	EmittedAt     time.Time `json:"emittedAt"`
}

// NewEvent builds an event for a committed change to objectID. document is
// ignored for deletes.
func NewEvent(op Operation, objectID string, document []byte) *Event {
	e := &Event{
		Operation:     op,
		ObjectID:      objectID,
		SchemaVersion: SchemaVersionV1,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
	}
	if op != OperationDelete && document != nil {
		data := string(document)
		e.JSONData = &data
	}
	return e
}

// Validate checks the event is well formed for its operation.
func (e *Event) Validate() error {
	if e == nil {
		return ErrNilEvent
	}
	if e.ObjectID == "" {
		return fmt.Errorf("%w: missing objectId", ErrInvalidEvent)
	}
	switch e.Operation {
	case OperationIndex, OperationUpdate:
		if e.JSONData == nil {
			return fmt.Errorf("%w: %s for %s has no jsonData", ErrInvalidEvent, e.Operation, e.ObjectID)
		}
	case OperationDelete:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, e.Operation)
	}
	return nil
}

// Topics maps each operation to its topic.
type Topics struct {
	Index  string
	Update string
	Delete string
}

// DefaultTopics returns the topic names used when none are configured.
func DefaultTopics() Topics {
	return Topics{
		Index:  "plans.index",
		Update: "plans.update",
		Delete: "plans.delete",
	}
}

// WithPrefix returns t with prefix prepended to every topic name. Separate
// deployments sharing one cluster use distinct prefixes.
func (t Topics) WithPrefix(prefix string) Topics {
	if prefix == "" {
		return t
	}
	return Topics{
		Index:  prefix + t.Index,
		Update: prefix + t.Update,
		Delete: prefix + t.Delete,
	}
}

// For returns the topic that carries op.
func (t Topics) For(op Operation) (string, error) {
	switch op {
	case OperationIndex:
		return t.Index, nil
	case OperationUpdate:
		return t.Update, nil
	case OperationDelete:
		return t.Delete, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}

// All returns every topic in index, update, delete order.
func (t Topics) All() []string {
	return []string{t.Index, t.Update, t.Delete}
}

// DeadLetterTopic returns the topic that receives events from topic whose
// delivery failed every attempt.
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}
