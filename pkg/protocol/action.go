package protocol

import (
	"context"
	"log/slog"
)

// ChangeRecord describes one observable effect of an executed action.
type ChangeRecord struct {
	ActionType string         `json:"action_type"`
	Detail     map[string]any `json:"detail,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ExecutionContext carries the data an action executes against.
type ExecutionContext struct {
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	TriggerType string         `json:"trigger_type"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`

	// DryRun actions must report what they would do without mutating
	// anything through the collaborator interfaces.
	DryRun bool `json:"dry_run"`
}

// Action is a single executable automation step.
type Action interface {
	Execute(ctx context.Context, execCtx ExecutionContext, logger *slog.Logger) (*ChangeRecord, error)
}

// ActionFactory creates actions of one type from a loosely-typed config.
type ActionFactory interface {
	ID() string
	Schema() map[string]any
	Create(config map[string]any) (Action, error)
}
