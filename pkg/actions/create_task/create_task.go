// Package create_task_action creates a new task from configured fields.
// Title and description support {variable} substitution against the
// trigger data.
package create_task_action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/planfold/planfold/pkg/protocol"
	"github.com/planfold/planfold/pkg/template"
)

const actionType = "create_task"

type CreateTaskActionFactory struct {
	tasks protocol.TaskStore
}

func NewCreateTaskActionFactory(tasks protocol.TaskStore) *CreateTaskActionFactory {
	return &CreateTaskActionFactory{tasks: tasks}
}

func (*CreateTaskActionFactory) ID() string {
	return actionType
}

func (*CreateTaskActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"project_id":  map[string]any{"type": "string"},
			"title":       map[string]any{"type": "string", "minLength": 1},
			"description": map[string]any{"type": "string"},
			"assignee_id": map[string]any{"type": "string"},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []any{"title"},
	}
}

func (f *CreateTaskActionFactory) Create(config map[string]any) (protocol.Action, error) {
	title, _ := config["title"].(string)
	if title == "" {
		return nil, fmt.Errorf("create_task action requires a title")
	}

	action := &CreateTaskAction{tasks: f.tasks, title: title}
	action.projectID, _ = config["project_id"].(string)
	action.description, _ = config["description"].(string)
	action.assigneeID, _ = config["assignee_id"].(string)

	if rawTags, ok := config["tags"].([]any); ok {
		for _, raw := range rawTags {
			if tag, ok := raw.(string); ok {
				action.tags = append(action.tags, tag)
			}
		}
	}

	return action, nil
}

type CreateTaskAction struct {
	tasks       protocol.TaskStore
	projectID   string
	title       string
	description string
	assigneeID  string
	tags        []string
}

func (a *CreateTaskAction) Execute(ctx context.Context, execCtx protocol.ExecutionContext, logger *slog.Logger) (*protocol.ChangeRecord, error) {
	logger = logger.With("action_type", actionType)

	vars := template.StringVars(execCtx.TriggerData)
	title := template.Render(a.title, vars)
	description := template.Render(a.description, vars)

	projectID := a.projectID
	if projectID == "" {
		if fromTrigger, ok := execCtx.TriggerData["project_id"].(string); ok {
			projectID = fromTrigger
		}
	}

	record := &protocol.ChangeRecord{
		ActionType: actionType,
		Detail: map[string]any{
			"project_id": projectID,
			"title":      title,
		},
	}

	if execCtx.DryRun {
		return record, nil
	}

	taskID, err := a.tasks.Create(ctx, &protocol.TaskRecord{
		ProjectID:   projectID,
		Title:       title,
		Description: description,
		Tags:        a.tags,
		AssigneeID:  a.assigneeID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	record.Detail["task_id"] = taskID

	logger.InfoContext(ctx, "Created task", "task_id", taskID, "project_id", projectID)

	return record, nil
}
