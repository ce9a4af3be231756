// Package events defines the domain events the flow engine publishes and
// the automation engine consumes.
package events

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the event-bus topic all engine events are published on.
const Topic = "planfold.flow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TaskStatusChangedEvent      EventType = "task.status_changed"
	TaskCreatedEvent            EventType = "task.created"
	TaskAssignedEvent           EventType = "task.assigned"
	DependencyCreatedEvent      EventType = "dependency.created"
	DependencyRemovedEvent      EventType = "dependency.removed"
	DependencyCompletedEvent    EventType = "dependency.completed"
	StateEnteredEvent           EventType = "workflow.state_entered"
	WorkflowCompletedEvent      EventType = "workflow.completed"
	RecurringMaterializedEvent  EventType = "recurring.materialized"
	RuleExecutedEvent           EventType = "automation.rule_executed"
)

var ErrInvalidEventData = errors.New("invalid event data")

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	ProjectID  string         `json:"project_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, entityType, entityID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		EntityType: entityType,
		EntityID:   entityID,
	}
}

type TaskStatusChanged struct {
	BaseEvent

	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorID    string `json:"actor_id,omitempty"`
}

func (e TaskStatusChanged) GetType() EventType { return TaskStatusChangedEvent }

type TaskCreated struct {
	BaseEvent

	Title      string `json:"title"`
	AssigneeID string `json:"assignee_id,omitempty"`
}

func (e TaskCreated) GetType() EventType { return TaskCreatedEvent }

type TaskAssigned struct {
	BaseEvent

	AssigneeID string `json:"assignee_id"`
	ActorID    string `json:"actor_id,omitempty"`
}

func (e TaskAssigned) GetType() EventType { return TaskAssignedEvent }

type DependencyCreated struct {
	BaseEvent

	DependencyID   string `json:"dependency_id"`
	SourceTaskID   string `json:"source_task_id"`
	TargetTaskID   string `json:"target_task_id"`
	DependencyType string `json:"dependency_type"`
	LagDays        int    `json:"lag_days"`
}

func (e DependencyCreated) GetType() EventType { return DependencyCreatedEvent }

type DependencyRemoved struct {
	BaseEvent

	DependencyID string `json:"dependency_id"`
}

func (e DependencyRemoved) GetType() EventType { return DependencyRemovedEvent }

// DependencyCompleted fires when a blocking predecessor task completes,
// unblocking its successors.
type DependencyCompleted struct {
	BaseEvent

	DependencyID     string   `json:"dependency_id"`
	CompletedTaskID  string   `json:"completed_task_id"`
	UnblockedTaskIDs []string `json:"unblocked_task_ids,omitempty"`
}

func (e DependencyCompleted) GetType() EventType { return DependencyCompletedEvent }

type StateEntered struct {
	BaseEvent

	InstanceID  string `json:"instance_id"`
	WorkflowID  string `json:"workflow_id"`
	FromStateID string `json:"from_state_id,omitempty"`
	StateID     string `json:"state_id"`
	ActorID     string `json:"actor_id,omitempty"`
}

func (e StateEntered) GetType() EventType { return StateEnteredEvent }

type WorkflowCompleted struct {
	BaseEvent

	InstanceID   string `json:"instance_id"`
	WorkflowID   string `json:"workflow_id"`
	FinalStateID string `json:"final_state_id"`
}

func (e WorkflowCompleted) GetType() EventType { return WorkflowCompletedEvent }

type RecurringMaterialized struct {
	BaseEvent

	RecurringTaskID string    `json:"recurring_task_id"`
	CreatedTaskID   string    `json:"created_task_id"`
	Occurrence      time.Time `json:"occurrence"`
}

func (e RecurringMaterialized) GetType() EventType { return RecurringMaterializedEvent }

type RuleExecuted struct {
	BaseEvent

	RuleID string `json:"rule_id"`
	LogID  string `json:"log_id"`
	Status string `json:"status"`
}

func (e RuleExecuted) GetType() EventType { return RuleExecutedEvent }
