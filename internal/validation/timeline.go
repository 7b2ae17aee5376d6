package validation

import (
	"encoding/json"

	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/pkg/schema"
)

// TimelineValidator runs the validation pipeline:
//  1. Structural (JSON Schema)
//  2. Graph (references, branches, loops, reachability)
//  3. Cursor (saved current node and history)
type TimelineValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewTimelineValidator compiles the schema and returns a validator.
func NewTimelineValidator() (*TimelineValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &TimelineValidator{jsonSchema: jsv}, nil
}

// ValidateDocument validates a serialized timeline. Structural errors
// short-circuit the graph stages.
func (tv *TimelineValidator) ValidateDocument(data []byte) *schema.ValidationResult {
	result := validateStructural(tv.jsonSchema, data)
	if !result.Valid() {
		return result
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	nodes := doc.nodes()
	result.Merge(validateGraph(nodes))
	result.Merge(validateCursor(&doc, nodes))
	return result
}

// ValidateNodes runs the graph stage on an in-memory graph.
func (tv *TimelineValidator) ValidateNodes(nodes []graph.Node) *schema.ValidationResult {
	return validateGraph(nodes)
}

// Validate returns ValidateDocument as an error, nil when valid.
func (tv *TimelineValidator) Validate(data []byte) error {
	return tv.ValidateDocument(data).ToError()
}

// validateStructural converts schema violations into result issues.
func validateStructural(v *JSONSchemaValidator, data []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.Validate(data)
	if err == nil {
		return result
	}

	tlErr, ok := err.(*schema.TimelineError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if tlErr.Details != nil {
		if violations, ok := tlErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, tlErr.Message)
	return result
}
