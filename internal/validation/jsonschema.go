package validation

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/timeline/pkg/schema"
)

const timelineSchemaURL = "https://timeline.local/schemas/timeline.json"

// timelineSchemaJSON describes the persisted timeline snapshot. Unknown
// properties are allowed so older builds can read newer documents.
const timelineSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://timeline.local/schemas/timeline.json",
  "type": "object",
  "properties": {
    "actions": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/action" }
    },
    "decisionPoints": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/decision" }
    },
    "notes": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/note" }
    },
    "currentNodeId": { "type": ["string", "null"] },
    "executionHistory": {
      "type": ["array", "null"],
      "items": { "type": "string" }
    },
    "isRunning": { "type": "boolean" }
  },
  "$defs": {
    "millis": { "type": ["integer", "null"], "minimum": 0 },
    "action": {
      "type": "object",
      "required": ["id", "duration"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "description": { "type": "string" },
        "duration": { "type": "integer", "minimum": 1 },
        "x": { "type": "number" },
        "y": { "type": "number" },
        "connections": {
          "type": ["array", "null"],
          "items": { "type": "string", "minLength": 1 }
        },
        "status": { "enum": ["pending", "running", "paused", "completed"] },
        "startTime": { "$ref": "#/$defs/millis" },
        "endTime": { "$ref": "#/$defs/millis" },
        "progress": { "type": "number", "minimum": 0, "maximum": 100 },
        "actualDuration": { "$ref": "#/$defs/millis" },
        "pausedElapsed": { "type": "integer", "minimum": 0 },
        "executionHistory": {
          "type": ["array", "null"],
          "items": { "$ref": "#/$defs/record" }
        }
      }
    },
    "record": {
      "type": "object",
      "required": ["startTime", "endTime", "duration"],
      "properties": {
        "startTime": { "type": "integer" },
        "endTime": { "type": "integer" },
        "duration": { "type": "integer", "minimum": 0 },
        "timestamp": { "type": "string" },
        "sessionId": { "type": "string" }
      }
    },
    "decision": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "description": { "type": "string" },
        "x": { "type": "number" },
        "y": { "type": "number" },
        "options": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "required": ["actionId"],
            "properties": {
              "actionId": { "type": "string", "minLength": 1 },
              "label": { "type": "string" }
            }
          }
        },
        "status": { "enum": ["pending", "active", "completed"] },
        "selectedOption": { "type": ["string", "null"] }
      }
    },
    "note": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "title": { "type": "string" },
        "content": { "type": "string" },
        "x": { "type": "number" },
        "y": { "type": "number" }
      }
    }
  }
}`

// JSONSchemaValidator validates raw timeline documents against the timeline
// JSON Schema (Draft 2020-12). It is safe for concurrent use.
type JSONSchemaValidator struct {
	timelineSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the timeline schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(timelineSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal timeline schema: %w", err)
	}
	if err := c.AddResource(timelineSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add timeline schema resource: %w", err)
	}
	compiled, err := c.Compile(timelineSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile timeline schema: %w", err)
	}
	return &JSONSchemaValidator{timelineSchema: compiled}, nil
}

// Validate checks data against the timeline schema.
func (v *JSONSchemaValidator) Validate(data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "timeline document is not valid JSON").WithCause(err)
	}
	if err := v.timelineSchema.Validate(doc); err != nil {
		return toTimelineError(err)
	}
	return nil
}

// toTimelineError converts a jsonschema.ValidationError into a TimelineError
// whose details list every leaf violation with its location.
func toTimelineError(err error) *schema.TimelineError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// prefixed with their instance location.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
