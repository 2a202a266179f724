// Package validate checks plan documents against a JSON Schema.
package validate

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

//go:embed plan.schema.json
var planSchema []byte

// Validator validates documents against one resolved schema. It is safe for
// concurrent use.
type Validator struct {
	resolved *jsonschema.Resolved
}

// New returns a Validator for the built-in plan schema.
func New() (*Validator, error) {
	return FromJSON(planSchema)
}

// FromFile returns a Validator for the schema stored at path.
func FromFile(path string) (*Validator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	return FromJSON(data)
}

// FromJSON returns a Validator for a schema given as JSON.
func FromJSON(data []byte) (*Validator, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema: %w", err)
	}
	return &Validator{resolved: resolved}, nil
}

// Validate returns the violations found in document. An empty result means
// the document conforms.
func (v *Validator) Validate(document []byte) []string {
	var instance any
	if err := json.Unmarshal(document, &instance); err != nil {
		return []string{"invalid JSON: " + err.Error()}
	}

	err := v.resolved.Validate(instance)
	if err == nil {
		return nil
	}
	return violations(err)
}

func violations(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, violations(e)...)
		}
		return out
	}

	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
