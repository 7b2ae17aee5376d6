package schema

import (
	"fmt"
	"strings"
)

// ValidationSeverity tells whether an issue blocks a timeline from loading.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is one finding. Path uses the document layout, for example
// "actions[stretch].connections" or "decisionPoints[0]".
type ValidationIssue struct {
	Path     string             `json:"path"`
	NodeID   string             `json:"nodeId,omitempty"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s %s: %s", i.Severity, i.Path, i.Message)
}

// nodeIDFromPath extracts X from "kind[X]..." when X is not an index.
func nodeIDFromPath(path string) string {
	open := strings.IndexByte(path, '[')
	end := strings.IndexByte(path, ']')
	if open < 0 || end <= open+1 {
		return ""
	}
	id := path[open+1 : end]
	if strings.Trim(id, "0123456789") == "" {
		return ""
	}
	return id
}

// ValidationResult collects issues from the document and graph checks.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether there are no errors. Warnings are allowed.
func (r *ValidationResult) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) add(sev ValidationSeverity, path, code, message string) {
	issue := ValidationIssue{Path: path, NodeID: nodeIDFromPath(path), Code: code, Message: message, Severity: sev}
	if sev == SeverityError {
		r.Errors = append(r.Errors, issue)
		return
	}
	r.Warnings = append(r.Warnings, issue)
}

func (r *ValidationResult) AddError(path, code, message string) {
	r.add(SeverityError, path, code, message)
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.add(SeverityWarning, path, code, message)
}

// Issues returns errors first, then warnings.
func (r *ValidationResult) Issues() []ValidationIssue {
	return append(append(make([]ValidationIssue, 0, len(r.Errors)+len(r.Warnings)), r.Errors...), r.Warnings...)
}

// Merge appends other's issues. A nil other is ignored.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other != nil {
		r.Errors = append(r.Errors, other.Errors...)
		r.Warnings = append(r.Warnings, other.Warnings...)
	}
}

// Summary renders counts, e.g. "2 errors, 1 warning".
func (r *ValidationResult) Summary() string {
	return plural(len(r.Errors), "error") + ", " + plural(len(r.Warnings), "warning")
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// ToError returns nil when valid. Otherwise a VALIDATION_ERROR whose
// message is the only error or the summary, carrying every issue in its
// details. A single error on a node is attached to that node.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}
	first := r.Errors[0]
	msg := first.Message
	if len(r.Errors) > 1 {
		msg = "timeline is invalid: " + r.Summary()
	}
	err := NewError(ErrCodeValidation, msg).WithDetails(map[string]any{
		"error_count":   len(r.Errors),
		"warning_count": len(r.Warnings),
		"issues":        r.Issues(),
	})
	if len(r.Errors) == 1 && first.NodeID != "" {
		err.WithNode(first.NodeID)
	}
	return err
}
