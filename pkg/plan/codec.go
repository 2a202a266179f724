package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decode parses a plan document. Unknown fields and trailing data are
// rejected, and every object in the tree must carry a non-empty objectId that
// is unique within the document.
func Decode(data []byte) (*Plan, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, malformed("", "unexpected data after document")
	}

	if err := p.check(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode returns the canonical serialization of p. Field order is fixed by
// the struct definitions, so equal trees always encode to identical bytes.
func Encode(p *Plan) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding plan %s: %w", p.ObjectID, err)
	}
	return b, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return malformed(typeErr.Field, "expected %s, got %s", typeErr.Type, typeErr.Value)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return malformed("", "invalid JSON at offset %d: %v", syntaxErr.Offset, syntaxErr)
	}
	return malformed("", "%v", err)
}

// check enforces required objectIds and id uniqueness across the tree.
func (p *Plan) check() error {
	seen := map[string]string{}
	claim := func(path, id string) error {
		if id == "" {
			return malformed(path, "objectId is required")
		}
		if prev, ok := seen[id]; ok {
			return malformed(path, "objectId %q already used at %s", id, prev)
		}
		seen[id] = path
		return nil
	}

	if err := claim("$", p.ObjectID); err != nil {
		return err
	}
	if p.CostShares != nil {
		if err := claim("planCostShares", p.CostShares.ObjectID); err != nil {
			return err
		}
	}
	for i := range p.Services {
		ps := &p.Services[i]
		path := fmt.Sprintf("linkedPlanServices[%d]", i)
		if err := claim(path, ps.ObjectID); err != nil {
			return err
		}
		if ps.Service != nil {
			if err := claim(path+".linkedService", ps.Service.ObjectID); err != nil {
				return err
			}
		}
		if ps.CostShares != nil {
			if err := claim(path+".planserviceCostShares", ps.CostShares.ObjectID); err != nil {
				return err
			}
		}
	}
	return nil
}
