// Package validation checks timeline documents before they are loaded into
// an engine: JSON Schema for shape, then graph analysis for references,
// reachability and branches the engine cannot follow.
package validation

import (
	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/pkg/schema"
)

// Validator checks timeline documents and in-memory graphs.
type Validator interface {
	ValidateDocument(data []byte) *schema.ValidationResult
	ValidateNodes(nodes []graph.Node) *schema.ValidationResult
}
