// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/planfold/planfold/pkg/actions/add_comment"
	"github.com/planfold/planfold/pkg/actions/assign_task"
	"github.com/planfold/planfold/pkg/actions/change_status"
	"github.com/planfold/planfold/pkg/actions/create_task"
	"github.com/planfold/planfold/pkg/actions/notify"
	"github.com/planfold/planfold/pkg/actions/update_field"
	"github.com/planfold/planfold/pkg/protocol"
	"github.com/planfold/planfold/pkg/registry"
)

// NewRegistry creates an action registry with every built-in action
// registered against the platform collaborators.
func NewRegistry(
	logger *slog.Logger,
	tasks protocol.TaskStore,
	sink protocol.NotificationSink,
) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(update_field_action.NewUpdateFieldActionFactory(tasks))
	reg.RegisterAction(change_status_action.NewChangeStatusActionFactory(tasks))
	reg.RegisterAction(assign_task_action.NewAssignTaskActionFactory(tasks))
	reg.RegisterAction(create_task_action.NewCreateTaskActionFactory(tasks))
	reg.RegisterAction(add_comment_action.NewAddCommentActionFactory(tasks))
	reg.RegisterAction(notify_action.NewNotifyActionFactory(sink))

	return reg
}
