// Package errs defines the error kinds the API layer maps to HTTP statuses.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError reports a project, work unit, template, checkpoint or job
// that does not exist in the caller's scope.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotFound returns a NotFoundError for kind/id.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ValidationError reports rejected input. InvalidIDs is set when the input
// referenced records that do not exist.
type ValidationError struct {
	Message    string
	InvalidIDs []string
}

func (e *ValidationError) Error() string {
	if len(e.InvalidIDs) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.InvalidIDs, ", "))
	}
	return e.Message
}

// Validationf returns a ValidationError with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Graph integrity failure kinds.
const (
	GraphCycle     = "cycle"
	GraphDangling  = "dangling_reference"
	GraphDuplicate = "duplicate_node"
)

// GraphIntegrityError reports a dependency graph that cannot be traversed:
// a cycle, or an edge pointing at a work unit outside the graph.
type GraphIntegrityError struct {
	Kind    string
	NodeIDs []string
}

func (e *GraphIntegrityError) Error() string {
	switch e.Kind {
	case GraphCycle:
		return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.NodeIDs, " -> "))
	case GraphDangling:
		return fmt.Sprintf("dependencies reference unknown work units: %s", strings.Join(e.NodeIDs, ", "))
	default:
		return fmt.Sprintf("dependency graph integrity error (%s): %s", e.Kind, strings.Join(e.NodeIDs, ", "))
	}
}

// ComputationLimitError reports a request outside the engine's allowed
// bounds, such as an iteration count above the configured maximum or a
// saturated job queue.
type ComputationLimitError struct {
	Message  string
	Overload bool
}

func (e *ComputationLimitError) Error() string { return e.Message }

// Limitf returns a ComputationLimitError with a formatted message.
func Limitf(format string, args ...interface{}) error {
	return &ComputationLimitError{Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports a status change the state machine forbids.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
	Valid  []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: invalid status transition from %q to %q; valid transitions: %v", e.Entity, e.From, e.To, e.Valid)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
