// Package change_status_action moves the triggering task to a new status.
package change_status_action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/planfold/planfold/pkg/protocol"
)

const actionType = "change_status"

type ChangeStatusActionFactory struct {
	tasks protocol.TaskStore
}

func NewChangeStatusActionFactory(tasks protocol.TaskStore) *ChangeStatusActionFactory {
	return &ChangeStatusActionFactory{tasks: tasks}
}

func (*ChangeStatusActionFactory) ID() string {
	return actionType
}

func (*ChangeStatusActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"status"},
	}
}

func (f *ChangeStatusActionFactory) Create(config map[string]any) (protocol.Action, error) {
	status, _ := config["status"].(string)
	if status == "" {
		return nil, fmt.Errorf("change_status action requires a status")
	}

	return &ChangeStatusAction{tasks: f.tasks, status: status}, nil
}

type ChangeStatusAction struct {
	tasks  protocol.TaskStore
	status string
}

func (a *ChangeStatusAction) Execute(ctx context.Context, execCtx protocol.ExecutionContext, logger *slog.Logger) (*protocol.ChangeRecord, error) {
	logger = logger.With("action_type", actionType)

	record := &protocol.ChangeRecord{
		ActionType: actionType,
		Detail: map[string]any{
			"task_id": execCtx.EntityID,
			"status":  a.status,
		},
	}

	if execCtx.DryRun {
		return record, nil
	}

	err := a.tasks.Update(ctx, execCtx.EntityID, map[string]any{"status": a.status})
	if err != nil {
		return nil, fmt.Errorf("failed to change status: %w", err)
	}

	logger.InfoContext(ctx, "Changed task status", "task_id", execCtx.EntityID, "status", a.status)

	return record, nil
}
