// Package notify_action sends a message through the notification sink.
// Delivery is fire-and-forget: failures are logged and recorded on the
// change record but never fail the rule.
package notify_action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/planfold/planfold/pkg/protocol"
	"github.com/planfold/planfold/pkg/template"
)

const actionType = "notify"

type NotifyActionFactory struct {
	sink protocol.NotificationSink
}

func NewNotifyActionFactory(sink protocol.NotificationSink) *NotifyActionFactory {
	return &NotifyActionFactory{sink: sink}
}

func (*NotifyActionFactory) ID() string {
	return actionType
}

func (*NotifyActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string", "minLength": 1},
			"message": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"user_id", "message"},
	}
}

func (f *NotifyActionFactory) Create(config map[string]any) (protocol.Action, error) {
	userID, _ := config["user_id"].(string)
	message, _ := config["message"].(string)

	if userID == "" || message == "" {
		return nil, fmt.Errorf("notify action requires user_id and message")
	}

	return &NotifyAction{sink: f.sink, userID: userID, message: message}, nil
}

type NotifyAction struct {
	sink    protocol.NotificationSink
	userID  string
	message string
}

func (a *NotifyAction) Execute(ctx context.Context, execCtx protocol.ExecutionContext, logger *slog.Logger) (*protocol.ChangeRecord, error) {
	logger = logger.With("action_type", actionType)

	message := template.Render(a.message, template.StringVars(execCtx.TriggerData))

	record := &protocol.ChangeRecord{
		ActionType: actionType,
		Detail: map[string]any{
			"user_id": a.userID,
			"message": message,
		},
	}

	if execCtx.DryRun {
		return record, nil
	}

	err := a.sink.Notify(ctx, a.userID, message)
	if err != nil {
		logger.ErrorContext(ctx, "failed to deliver notification", "user_id", a.userID, "error", err)
		record.Error = err.Error()
	}

	return record, nil
}
