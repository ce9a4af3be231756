// Package web provides the HTTP surface of the flow engine.
package web

import (
	"time"

	"github.com/planfold/planfold/pkg/models"
)

// CreateDependencyRequest represents the request body for creating a
// dependency edge.
type CreateDependencyRequest struct {
	SourceTaskID string `json:"source_task_id" validate:"required"`
	TargetTaskID string `json:"target_task_id" validate:"required"`
	Type         string `json:"type"           validate:"required"`
	LagDays      int    `json:"lag_days"       validate:"min=-365,max=365"`
}

// CriticalPathRequest carries per-task durations in days. Tasks without an
// entry use the engine's default duration.
type CriticalPathRequest struct {
	Durations map[string]int `json:"durations"`
}

// ApplyWorkflowRequest binds an entity to a workflow.
type ApplyWorkflowRequest struct {
	EntityType string `json:"entity_type" validate:"required"`
	EntityID   string `json:"entity_id"   validate:"required"`
	ActorID    string `json:"actor_id"`
}

// TransitionRequest represents the request body for advancing an instance.
type TransitionRequest struct {
	ToStateID    string         `json:"to_state_id" validate:"required"`
	ActorID      string         `json:"actor_id"`
	Comment      string         `json:"comment"`
	FieldUpdates map[string]any `json:"field_updates,omitempty"`
}

// FireEventRequest delivers an external event into the automation engine.
type FireEventRequest struct {
	TriggerType string         `json:"trigger_type" validate:"required"`
	EntityType  string         `json:"entity_type"  validate:"required"`
	EntityID    string         `json:"entity_id"    validate:"required"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// TestRuleRequest simulates an event against one rule without mutating
// anything.
type TestRuleRequest struct {
	TriggerType string         `json:"trigger_type" validate:"required"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// PreviewRecurrenceRequest previews the next occurrences of a pattern.
type PreviewRecurrenceRequest struct {
	Pattern models.RecurrencePattern `json:"pattern"`
	Start   time.Time                `json:"start"`
	Count   int                      `json:"count" validate:"min=1,max=100"`
}
