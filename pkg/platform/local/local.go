// Package local provides in-process implementations of the platform
// collaborators for standalone and development deployments. Production
// deployments replace these with adapters to the real task platform.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planfold/planfold/pkg/protocol"
)

// TaskStore keeps task records in memory behind a mutex.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*protocol.TaskRecord
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*protocol.TaskRecord)}
}

func (s *TaskStore) Get(ctx context.Context, taskID string) (*protocol.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}

	clone := *task

	return &clone, nil
}

func (s *TaskStore) Create(ctx context.Context, record *protocol.TaskRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	if clone.ID == "" {
		clone.ID = uuid.New().String()
	}

	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}

	s.tasks[clone.ID] = &clone

	return clone.ID, nil
}

func (s *TaskStore) Update(ctx context.Context, taskID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task not found: %s", taskID)
	}

	for name, value := range fields {
		switch name {
		case "status":
			if v, ok := value.(string); ok {
				task.Status = v
			}
		case "title":
			if v, ok := value.(string); ok {
				task.Title = v
			}
		case "description":
			if v, ok := value.(string); ok {
				task.Description = v
			}
		case "assignee_id":
			if v, ok := value.(string); ok {
				task.AssigneeID = v
			}
		default:
			if task.Fields == nil {
				task.Fields = make(map[string]any)
			}

			task.Fields[name] = value
		}
	}

	return nil
}

// UserDirectory resolves users from a fixed in-memory set.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]*protocol.UserRecord
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{users: make(map[string]*protocol.UserRecord)}
}

func (d *UserDirectory) Add(user *protocol.UserRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users[user.ID] = user
}

func (d *UserDirectory) Get(ctx context.Context, userID string) (*protocol.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %s", userID)
	}

	return user, nil
}

// NotificationSink writes notifications to the log instead of delivering
// them anywhere.
type NotificationSink struct {
	logger *slog.Logger
}

func NewNotificationSink(logger *slog.Logger) *NotificationSink {
	return &NotificationSink{logger: logger.With("module", "notifications")}
}

func (s *NotificationSink) Notify(ctx context.Context, userID, message string) error {
	s.logger.InfoContext(ctx, "Notification delivered", "user_id", userID, "message", message)

	return nil
}
