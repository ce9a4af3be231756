// Package add_comment_action posts a comment on the triggering task through
// the task store's comment field convention.
package add_comment_action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/planfold/planfold/pkg/protocol"
	"github.com/planfold/planfold/pkg/template"
)

const actionType = "add_comment"

type AddCommentActionFactory struct {
	tasks protocol.TaskStore
}

func NewAddCommentActionFactory(tasks protocol.TaskStore) *AddCommentActionFactory {
	return &AddCommentActionFactory{tasks: tasks}
}

func (*AddCommentActionFactory) ID() string {
	return actionType
}

func (*AddCommentActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"text"},
	}
}

func (f *AddCommentActionFactory) Create(config map[string]any) (protocol.Action, error) {
	text, _ := config["text"].(string)
	if text == "" {
		return nil, fmt.Errorf("add_comment action requires text")
	}

	return &AddCommentAction{tasks: f.tasks, text: text}, nil
}

type AddCommentAction struct {
	tasks protocol.TaskStore
	text  string
}

func (a *AddCommentAction) Execute(ctx context.Context, execCtx protocol.ExecutionContext, logger *slog.Logger) (*protocol.ChangeRecord, error) {
	logger = logger.With("action_type", actionType)

	text := template.Render(a.text, template.StringVars(execCtx.TriggerData))

	record := &protocol.ChangeRecord{
		ActionType: actionType,
		Detail: map[string]any{
			"task_id": execCtx.EntityID,
			"text":    text,
		},
	}

	if execCtx.DryRun {
		return record, nil
	}

	err := a.tasks.Update(ctx, execCtx.EntityID, map[string]any{"comment": text})
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}

	logger.InfoContext(ctx, "Added comment", "task_id", execCtx.EntityID)

	return record, nil
}
