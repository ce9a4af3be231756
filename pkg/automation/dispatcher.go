package automation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/planfold/planfold/pkg/eventbus"
	"github.com/planfold/planfold/pkg/events"
	"github.com/planfold/planfold/pkg/models"
)

// Dispatcher feeds domain events from the bus into rule execution, so rules
// fire on engine mutations regardless of which process performed them.
type Dispatcher struct {
	engine *Engine
	bus    eventbus.EventSubscriber
	logger *slog.Logger
}

func NewDispatcher(engine *Engine, bus eventbus.EventSubscriber, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		engine: engine,
		bus:    bus,
		logger: logger.With("module", "automation_dispatcher"),
	}
}

// Start registers a handler per trigger-bearing event type and begins
// consuming. RuleExecuted is not handled: dispatching it would let rules
// trigger themselves. DependencyRemoved carries no trigger type.
func (d *Dispatcher) Start(ctx context.Context) error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.TaskStatusChangedEvent:     d.handleTaskStatusChanged,
		events.TaskCreatedEvent:           d.handleTaskCreated,
		events.TaskAssignedEvent:          d.handleTaskAssigned,
		events.DependencyCreatedEvent:     d.handleDependencyCreated,
		events.DependencyCompletedEvent:   d.handleDependencyCompleted,
		events.StateEnteredEvent:          d.handleStateEntered,
		events.WorkflowCompletedEvent:     d.handleWorkflowCompleted,
		events.RecurringMaterializedEvent: d.handleRecurringMaterialized,
	}

	for eventType, handler := range handlers {
		if err := d.bus.Handle(eventType, handler); err != nil {
			return fmt.Errorf("failed to register handler for %q: %w", eventType, err)
		}
	}

	return d.bus.Subscribe(ctx)
}

func (d *Dispatcher) handleTaskStatusChanged(ctx context.Context, raw any) error {
	event, ok := raw.(*events.TaskStatusChanged)
	if !ok {
		return fmt.Errorf("%w: expected %s payload", events.ErrInvalidEventData, events.TaskStatusChangedEvent)
	}

	return d.execute(ctx, models.TriggerTaskStatusChanged, event.BaseEvent, map[string]any{
		"from_status": event.FromStatus,
		"to_status":   event.ToStatus,
		"actor_id":    event.ActorID,
	})
}

func (d *Dispatcher) handleTaskCreated(ctx context.Context, raw any) error {
	event, ok := raw.(*events.TaskCreated)
	if !ok {
		return fmt.Errorf("%w: expected %s payload", events.ErrInvalidEventData, events.TaskCreatedEvent)
	}

	return d.execute(ctx, models.TriggerTaskCreated, event.BaseEvent, map[string]any{
		"title":       event.Title,
		"assignee_id": event.AssigneeID,
	})
}

func (d *Dispatcher) handleTaskAssigned(ctx context.Context, raw any) error {
	event, ok := raw.(*events.TaskAssigned)
	if !ok {
		return fmt.Errorf("%w: expected %s payload", events.ErrInvalidEventData, events.TaskAssignedEvent)
	}

	return d.execute(ctx, models.TriggerTaskAssigned, event.BaseEvent, map[string]any{
		"assignee_id": event.AssigneeID,
		"actor_id":    event.ActorID,
	})
}

func (d *Dispatcher) handleDependencyCreated(ctx context.Context, raw any) error {
	event, ok := raw.(*events.DependencyCreated)
	if !ok {
		return fmt.Errorf("%w: expected %s payload", events.ErrInvalidEventData, events.DependencyCreatedEvent)
	}

	return d.execute(ctx, models.TriggerDependencyCreated, event.BaseEvent, map[string]any{
		"dependency_id":   event.DependencyID,
		"source_task_id":  event.SourceTaskID,
		"target_task_id":  event.TargetTaskID,
		"dependency_type": event.DependencyType,
		"lag_days":        event.LagDays,
	})
}

func (d *Dispatcher) handleDependencyCompleted(ctx context.Context, raw any) error {
	event, ok := raw.(*events.DependencyCompleted)
	if !ok {
		return fmt.Errorf("%w: expected %s payload", events.ErrInvalidEventData, events.DependencyCompletedEvent)
	}

	return d.execute(ctx, models.TriggerDependencyCompleted, event.BaseEvent, map[string]any{
		"dependency_id":      event.DependencyID,
		"completed_task_id":  event.CompletedTaskID,
		"unblocked_task_ids": event.UnblockedTaskIDs,
	})
}

func (d *Dispatcher) handleStateEntered(ctx context.Context, raw any) error {
	event, ok := raw.(*events.StateEntered)
	if !ok {
		return fmt.Errorf("%w: expected %s payload", events.ErrInvalidEventData, events.StateEnteredEvent)
	}

	return d.execute(ctx, models.TriggerStateEntered, event.BaseEvent, map[string]any{
		"instance_id":   event.InstanceID,
		"workflow_id":   event.WorkflowID,
		"from_state_id": event.FromStateID,
		"state_id":      event.StateID,
		"actor_id":      event.ActorID,
	})
}

func (d *Dispatcher) handleWorkflowCompleted(ctx context.Context, raw any) error {
	event, ok := raw.(*events.WorkflowCompleted)
	if !ok {
		return fmt.Errorf("%w: expected %s payload", events.ErrInvalidEventData, events.WorkflowCompletedEvent)
	}

	return d.execute(ctx, models.TriggerWorkflowCompleted, event.BaseEvent, map[string]any{
		"instance_id":    event.InstanceID,
		"workflow_id":    event.WorkflowID,
		"final_state_id": event.FinalStateID,
	})
}

func (d *Dispatcher) handleRecurringMaterialized(ctx context.Context, raw any) error {
	event, ok := raw.(*events.RecurringMaterialized)
	if !ok {
		return fmt.Errorf("%w: expected %s payload", events.ErrInvalidEventData, events.RecurringMaterializedEvent)
	}

	return d.execute(ctx, models.TriggerRecurringMaterialized, event.BaseEvent, map[string]any{
		"recurring_task_id": event.RecurringTaskID,
		"created_task_id":   event.CreatedTaskID,
		"occurrence":        event.Occurrence,
	})
}

func (d *Dispatcher) execute(
	ctx context.Context,
	triggerType models.TriggerType,
	base events.BaseEvent,
	triggerData map[string]any,
) error {
	if base.ProjectID != "" {
		triggerData["project_id"] = base.ProjectID
	}

	logs, err := d.engine.ExecuteRules(ctx, triggerType, base.EntityType, base.EntityID, triggerData)
	if err != nil {
		return err
	}

	if len(logs) > 0 {
		d.logger.InfoContext(ctx, "Dispatched event to automation rules",
			"trigger_type", triggerType, "entity_id", base.EntityID, "executions", len(logs))
	}

	return nil
}
