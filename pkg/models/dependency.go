// Package models defines the domain model of the flow engine: task
// dependencies, workflow definitions and instances, automation rules, and
// recurrence patterns.
package models

import (
	"errors"
	"fmt"
	"time"
)

// DependencyType classifies the directed relationship between two tasks.
type DependencyType string

const (
	DependencyBlocks      DependencyType = "blocks"
	DependencyBlockedBy   DependencyType = "blocked_by"
	DependencyRelatesTo   DependencyType = "relates_to"
	DependencyDuplicates  DependencyType = "duplicates"
	DependencyParentChild DependencyType = "parent_child"
	DependencyCausedBy    DependencyType = "caused_by"
	DependencyResolves    DependencyType = "resolves"
)

// Scheduling reports whether edges of this type participate in cycle
// detection and critical-path computation.
func (t DependencyType) Scheduling() bool {
	return t == DependencyBlocks || t == DependencyBlockedBy
}

func (t DependencyType) Valid() bool {
	switch t {
	case DependencyBlocks, DependencyBlockedBy, DependencyRelatesTo,
		DependencyDuplicates, DependencyParentChild, DependencyCausedBy,
		DependencyResolves:
		return true
	default:
		return false
	}
}

const (
	// MinLagDays and MaxLagDays bound the lag of a dependency edge. Lag is
	// always whole days; the engine never stores hour-granularity lag.
	MinLagDays = -365
	MaxLagDays = 365
)

var (
	ErrInvalidDependencyType = errors.New("invalid dependency type")
	ErrSelfDependency        = errors.New("dependency source and target must differ")
	ErrLagOutOfRange         = errors.New("dependency lag out of range")
	ErrMissingTaskID         = errors.New("dependency requires source and target task ids")
)

// Dependency is a typed, directed edge between two tasks in one project.
type Dependency struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"     validate:"required"`
	SourceTaskID string         `json:"source_task_id" validate:"required"`
	TargetTaskID string         `json:"target_task_id" validate:"required"`
	Type         DependencyType `json:"type"           validate:"required"`
	LagDays      int            `json:"lag_days"       validate:"min=-365,max=365"`
	Active       bool           `json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Validate checks the semantic rules a dependency must satisfy before it may
// be inserted into a project graph.
func (d *Dependency) Validate() error {
	if d.SourceTaskID == "" || d.TargetTaskID == "" {
		return ErrMissingTaskID
	}

	if d.SourceTaskID == d.TargetTaskID {
		return ErrSelfDependency
	}

	if !d.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDependencyType, d.Type)
	}

	if d.LagDays < MinLagDays || d.LagDays > MaxLagDays {
		return fmt.Errorf("%w: %d", ErrLagOutOfRange, d.LagDays)
	}

	return nil
}

// PredecessorSuccessor normalizes the edge into scheduling direction: the
// predecessor must finish (plus lag) before the successor may start. For
// "blocks" the source precedes the target; "blocked_by" is the mirror.
func (d *Dependency) PredecessorSuccessor() (string, string, bool) {
	switch d.Type {
	case DependencyBlocks:
		return d.SourceTaskID, d.TargetTaskID, true
	case DependencyBlockedBy:
		return d.TargetTaskID, d.SourceTaskID, true
	case DependencyRelatesTo, DependencyDuplicates, DependencyParentChild,
		DependencyCausedBy, DependencyResolves:
		return "", "", false
	default:
		return "", "", false
	}
}
