// Package services provides the service layer between the engines and the
// API, with standardized error types for response mapping.
package services

import (
	"errors"
	"fmt"

	"github.com/planfold/planfold/pkg/graph"
	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/workflow"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")

	// Conflicts (409 Conflict).
	ErrConflict = errors.New("conflict")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a validation error with context. The result
// satisfies IsValidationError.
func NewValidationError(op, message string, err error) *ServiceError {
	if err == nil {
		err = ErrInvalidRequest
	} else if !errors.Is(err, ErrInvalidRequest) {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	return &ServiceError{Op: op, Message: message, Err: err}
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsConflictError checks if an error should map to HTTP 409. Cycle
// rejections, duplicate edges, and already-bound entities are conflicts.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict) ||
		graph.IsCycleError(err) ||
		errors.Is(err, graph.ErrDuplicateDependency) ||
		persistence.IsAlreadyExists(err)
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err) || errors.Is(err, graph.ErrTaskNotFound)
}

// IsInvalidTransitionError checks if an error is a workflow transition
// rejection, which maps to HTTP 422 with the reason attached.
func IsInvalidTransitionError(err error) bool {
	return workflow.IsInvalidTransition(err)
}
