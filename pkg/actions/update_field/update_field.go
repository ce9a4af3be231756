// Package update_field_action sets one field on the triggering task.
package update_field_action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/planfold/planfold/pkg/protocol"
)

const actionType = "update_field"

type UpdateFieldActionFactory struct {
	tasks protocol.TaskStore
}

func NewUpdateFieldActionFactory(tasks protocol.TaskStore) *UpdateFieldActionFactory {
	return &UpdateFieldActionFactory{tasks: tasks}
}

func (*UpdateFieldActionFactory) ID() string {
	return actionType
}

func (*UpdateFieldActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{"type": "string", "minLength": 1},
			"value": map[string]any{},
		},
		"required": []any{"field"},
	}
}

func (f *UpdateFieldActionFactory) Create(config map[string]any) (protocol.Action, error) {
	field, _ := config["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("update_field action requires a field name")
	}

	return &UpdateFieldAction{
		tasks: f.tasks,
		field: field,
		value: config["value"],
	}, nil
}

type UpdateFieldAction struct {
	tasks protocol.TaskStore
	field string
	value any
}

func (a *UpdateFieldAction) Execute(ctx context.Context, execCtx protocol.ExecutionContext, logger *slog.Logger) (*protocol.ChangeRecord, error) {
	logger = logger.With("action_type", actionType, "field", a.field)

	record := &protocol.ChangeRecord{
		ActionType: actionType,
		Detail: map[string]any{
			"task_id": execCtx.EntityID,
			"field":   a.field,
			"value":   a.value,
		},
	}

	if execCtx.DryRun {
		return record, nil
	}

	err := a.tasks.Update(ctx, execCtx.EntityID, map[string]any{a.field: a.value})
	if err != nil {
		return nil, fmt.Errorf("failed to update field %q: %w", a.field, err)
	}

	logger.InfoContext(ctx, "Updated task field", "task_id", execCtx.EntityID)

	return record, nil
}
