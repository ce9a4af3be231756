// Package protocol defines the collaborator interfaces the flow engine is
// given by the surrounding platform. The engine never owns task or user
// records; it reads and mutates them only through these interfaces.
package protocol

import (
	"context"
	"time"
)

// TaskRecord is the engine's read view of a task owned by the platform.
type TaskRecord struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	BoardID     string         `json:"board_id,omitempty"`
	Status      string         `json:"status"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Tags        []string       `json:"tags,omitempty"`
	AssigneeID  string         `json:"assignee_id,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// FieldMap returns the record flattened into a field->value map suitable for
// condition evaluation. Custom fields take the name they were stored under;
// built-in fields use their snake_case names.
func (t *TaskRecord) FieldMap() map[string]any {
	fields := make(map[string]any, len(t.Fields)+8)
	for k, v := range t.Fields {
		fields[k] = v
	}

	fields["id"] = t.ID
	fields["project_id"] = t.ProjectID
	fields["status"] = t.Status
	fields["title"] = t.Title
	fields["description"] = t.Description
	fields["tags"] = t.Tags
	fields["assignee_id"] = t.AssigneeID

	if t.DueDate != nil {
		fields["due_date"] = *t.DueDate
	}

	return fields
}

// TaskStore gives the engine read/write access to task records.
type TaskStore interface {
	Get(ctx context.Context, taskID string) (*TaskRecord, error)
	Create(ctx context.Context, fields *TaskRecord) (string, error)
	Update(ctx context.Context, taskID string, fields map[string]any) error
}

// UserRecord is the engine's read view of a platform user.
type UserRecord struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// UserDirectory resolves users for authorization checks.
type UserDirectory interface {
	Get(ctx context.Context, userID string) (*UserRecord, error)
}

// NotificationSink delivers messages to users. Calls are fire-and-forget:
// callers log failures and never propagate them.
type NotificationSink interface {
	Notify(ctx context.Context, userID, message string) error
}
