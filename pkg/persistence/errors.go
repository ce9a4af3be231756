// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types all drivers return.
var (
	ErrDependencyNotFound         = errors.New("dependency not found")
	ErrWorkflowDefinitionNotFound = errors.New("workflow definition not found")
	ErrWorkflowInstanceNotFound   = errors.New("workflow instance not found")
	ErrAutomationRuleNotFound     = errors.New("automation rule not found")
	ErrAutomationLogNotFound      = errors.New("automation log not found")
	ErrRecurringTaskNotFound      = errors.New("recurring task not found")

	// ErrInstanceAlreadyExists indicates a workflow instance already exists
	// for the entity a caller is applying a workflow to.
	ErrInstanceAlreadyExists = errors.New("workflow instance already exists for entity")
)

// StorageError wraps a driver error with the operation and record identity.
type StorageError struct {
	Op       string // Operation being performed ("Save", "GetByID", ...)
	Resource string // Aggregate name ("dependency", "automation_rule", ...)
	ID       string // Record id if applicable
	Err      error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Resource, e.ID, e.Err)
	}

	return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStorageError creates a storage error with context.
func NewStorageError(op, resource, id string, err error) *StorageError {
	return &StorageError{Op: op, Resource: resource, ID: id, Err: err}
}

// IsNotFound reports whether the error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDependencyNotFound) ||
		errors.Is(err, ErrWorkflowDefinitionNotFound) ||
		errors.Is(err, ErrWorkflowInstanceNotFound) ||
		errors.Is(err, ErrAutomationRuleNotFound) ||
		errors.Is(err, ErrAutomationLogNotFound) ||
		errors.Is(err, ErrRecurringTaskNotFound)
}

// IsAlreadyExists reports whether the error indicates a duplicate instance.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrInstanceAlreadyExists)
}
