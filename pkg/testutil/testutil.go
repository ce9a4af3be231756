// Package testutil provides in-memory collaborator fakes shared by the
// engine test suites.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/planfold/planfold/pkg/eventbus"
	"github.com/planfold/planfold/pkg/protocol"
)

// TaskStore is an in-memory protocol.TaskStore recording every update.
type TaskStore struct {
	mu      sync.Mutex
	Tasks   map[string]*protocol.TaskRecord
	Updates []map[string]any
	nextID  int

	// FailUpdates makes every Update call return an error.
	FailUpdates bool

	// FailCreates makes every Create call return an error.
	FailCreates bool
}

func NewTaskStore(tasks ...*protocol.TaskRecord) *TaskStore {
	store := &TaskStore{Tasks: make(map[string]*protocol.TaskRecord)}
	for _, task := range tasks {
		store.Tasks[task.ID] = task
	}

	return store
}

func (s *TaskStore) Get(_ context.Context, taskID string) (*protocol.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}

	clone := *task

	return &clone, nil
}

func (s *TaskStore) Create(_ context.Context, record *protocol.TaskRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCreates {
		return "", fmt.Errorf("create rejected for project %s", record.ProjectID)
	}

	clone := *record
	if clone.ID == "" {
		s.nextID++
		clone.ID = fmt.Sprintf("task-%d", s.nextID)
	}

	s.Tasks[clone.ID] = &clone

	return clone.ID, nil
}

func (s *TaskStore) Update(_ context.Context, taskID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailUpdates {
		return fmt.Errorf("update rejected for task %s", taskID)
	}

	task, ok := s.Tasks[taskID]
	if !ok {
		return fmt.Errorf("task not found: %s", taskID)
	}

	for name, value := range fields {
		if name == "status" {
			if v, ok := value.(string); ok {
				task.Status = v
			}

			continue
		}

		if name == "assignee_id" {
			if v, ok := value.(string); ok {
				task.AssigneeID = v
			}

			continue
		}

		if task.Fields == nil {
			task.Fields = make(map[string]any)
		}

		task.Fields[name] = value
	}

	recorded := map[string]any{"task_id": taskID}
	for k, v := range fields {
		recorded[k] = v
	}

	s.Updates = append(s.Updates, recorded)

	return nil
}

// CreatedCount returns how many tasks the store holds.
func (s *TaskStore) CreatedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.Tasks)
}

// UserDirectory is a fixed in-memory protocol.UserDirectory. Lookups counts
// let tests assert the role cache is doing its job.
type UserDirectory struct {
	mu      sync.Mutex
	Users   map[string]*protocol.UserRecord
	Lookups int
}

func NewUserDirectory(users ...*protocol.UserRecord) *UserDirectory {
	dir := &UserDirectory{Users: make(map[string]*protocol.UserRecord)}
	for _, user := range users {
		dir.Users[user.ID] = user
	}

	return dir
}

func (d *UserDirectory) Get(_ context.Context, userID string) (*protocol.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Lookups++

	user, ok := d.Users[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %s", userID)
	}

	return user, nil
}

// Notification is one delivered message.
type Notification struct {
	UserID  string
	Message string
}

// NotificationSink records deliveries in memory.
type NotificationSink struct {
	mu       sync.Mutex
	Sent     []Notification
	FailNext bool
}

func NewNotificationSink() *NotificationSink {
	return &NotificationSink{}
}

func (s *NotificationSink) Notify(_ context.Context, userID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNext {
		s.FailNext = false

		return fmt.Errorf("delivery failed for user %s", userID)
	}

	s.Sent = append(s.Sent, Notification{UserID: userID, Message: message})

	return nil
}

// PublishedEvent is one event captured by the fake publisher.
type PublishedEvent struct {
	Key   string
	Event eventbus.Event
}

// EventCapture is an eventbus.EventPublisher collecting everything
// published.
type EventCapture struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

func NewEventCapture() *EventCapture {
	return &EventCapture{}
}

func (c *EventCapture) Publish(_ context.Context, key string, event eventbus.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Events = append(c.Events, PublishedEvent{Key: key, Event: event})

	return nil
}

// ByType returns the captured events matching the given type name.
func (c *EventCapture) ByType(eventType string) []PublishedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matches []PublishedEvent

	for _, published := range c.Events {
		if string(published.Event.GetType()) == eventType {
			matches = append(matches, published)
		}
	}

	return matches
}
