// Package assign_task_action assigns the triggering task to a user.
package assign_task_action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/planfold/planfold/pkg/protocol"
)

const actionType = "assign_task"

type AssignTaskActionFactory struct {
	tasks protocol.TaskStore
}

func NewAssignTaskActionFactory(tasks protocol.TaskStore) *AssignTaskActionFactory {
	return &AssignTaskActionFactory{tasks: tasks}
}

func (*AssignTaskActionFactory) ID() string {
	return actionType
}

func (*AssignTaskActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"assignee_id": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"assignee_id"},
	}
}

func (f *AssignTaskActionFactory) Create(config map[string]any) (protocol.Action, error) {
	assigneeID, _ := config["assignee_id"].(string)
	if assigneeID == "" {
		return nil, fmt.Errorf("assign_task action requires an assignee_id")
	}

	return &AssignTaskAction{tasks: f.tasks, assigneeID: assigneeID}, nil
}

type AssignTaskAction struct {
	tasks      protocol.TaskStore
	assigneeID string
}

func (a *AssignTaskAction) Execute(ctx context.Context, execCtx protocol.ExecutionContext, logger *slog.Logger) (*protocol.ChangeRecord, error) {
	logger = logger.With("action_type", actionType)

	record := &protocol.ChangeRecord{
		ActionType: actionType,
		Detail: map[string]any{
			"task_id":     execCtx.EntityID,
			"assignee_id": a.assigneeID,
		},
	}

	if execCtx.DryRun {
		return record, nil
	}

	err := a.tasks.Update(ctx, execCtx.EntityID, map[string]any{"assignee_id": a.assigneeID})
	if err != nil {
		return nil, fmt.Errorf("failed to assign task: %w", err)
	}

	logger.InfoContext(ctx, "Assigned task", "task_id", execCtx.EntityID, "assignee_id", a.assigneeID)

	return record, nil
}
