package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// NodeType is the fixed taxonomy of nodes in a plan tree.
type NodeType string

const (
	NodeTypePlan        NodeType = "Plan"
	NodeTypeCostShare   NodeType = "CostShare"
	NodeTypePlanService NodeType = "PlanService"
	NodeTypeService     NodeType = "Service"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypePlan, NodeTypeCostShare, NodeTypePlanService, NodeTypeService:
		return true
	}
	return false
}

// Node is the persisted form of one object in a plan tree. The root has a nil
// ParentID. Ordinal orders siblings under the same parent so that
// reconstruction reproduces document order.
type Node struct {
	ID         string     `json:"id"`
	Type       NodeType   `json:"node_type"`
	ParentID   *string    `json:"parent_id,omitempty"`
	Ordinal    int        `json:"ordinal"`
	Attributes Attributes `json:"attributes"`
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// Parent returns the parent id or the empty string for a root.
func (n *Node) Parent() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	out := &Node{
		ID:         n.ID,
		Type:       n.Type,
		Ordinal:    n.Ordinal,
		Attributes: append(Attributes(nil), n.Attributes...),
	}
	if n.ParentID != nil {
		parent := *n.ParentID
		out.ParentID = &parent
	}
	return out
}

// Attribute is one leaf field of a node.
type Attribute struct {
	Key   string
	Value any
}

// Attributes is an ordered set of leaf fields. It encodes as a JSON object
// whose key order follows the slice order.
type Attributes []Attribute

// Get returns the value stored under key.
func (a Attributes) Get(key string) (any, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return nil, false
}

// String returns the value under key as a string, or "" when absent or not a
// string.
func (a Attributes) String(key string) string {
	v, ok := a.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Int returns the value under key as an int, or 0 when absent or not an
// integral number.
func (a Attributes) Int(key string) int {
	v, ok := a.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// Map returns the attributes as an unordered map.
func (a Attributes) Map() map[string]any {
	out := make(map[string]any, len(a))
	for _, attr := range a {
		out[attr.Key] = attr.Value
	}
	return out
}

// MarshalJSON encodes the attributes as an object in slice order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, attr := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(attr.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(attr.Value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", attr.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object, keeping key order. Integral
// numbers decode as int.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*a = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("attributes must be a JSON object")
	}

	out := Attributes{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected attribute key %v", keyTok)
		}

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("attribute %q: %w", key, err)
		}
		if num, ok := raw.(json.Number); ok {
			if i, err := num.Int64(); err == nil {
				raw = int(i)
			} else if f, err := num.Float64(); err == nil {
				raw = f
			}
		}
		out = append(out, Attribute{Key: key, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*a = out
	return nil
}
