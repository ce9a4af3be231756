// Package workflow drives entities through configurable state machines:
// instance creation, guarded transitions, and analytics over the recorded
// history.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planfold/planfold/pkg/cache"
	"github.com/planfold/planfold/pkg/conditions"
	"github.com/planfold/planfold/pkg/eventbus"
	"github.com/planfold/planfold/pkg/events"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/protocol"
	"github.com/planfold/planfold/pkg/registry"
)

const roleCachePrefix = "workflow:role:"
const roleCacheTTL = 5 * time.Minute

// Engine is the workflow state machine. Each instance is mutated under its
// own lock; definitions are read-only during transitions.
type Engine struct {
	definitions persistence.WorkflowDefinitionRepository
	instances   persistence.WorkflowInstanceRepository
	tasks       protocol.TaskStore
	users       protocol.UserDirectory
	registry    *registry.Registry
	evaluator   *conditions.Evaluator
	publisher   eventbus.EventPublisher
	roleCache   cache.Cache
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a workflow engine. publisher and roleCache may be nil;
// events are then dropped and every authorization check hits the directory.
func NewEngine(
	definitions persistence.WorkflowDefinitionRepository,
	instances persistence.WorkflowInstanceRepository,
	tasks protocol.TaskStore,
	users protocol.UserDirectory,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	roleCache cache.Cache,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		definitions: definitions,
		instances:   instances,
		tasks:       tasks,
		users:       users,
		registry:    reg,
		evaluator:   conditions.NewEvaluator(),
		publisher:   publisher,
		roleCache:   roleCache,
		logger:      logger.With("module", "workflow"),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (e *Engine) instanceLock(instanceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[instanceID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[instanceID] = lock
	}

	return lock
}

// Apply binds an entity to a workflow, creating an instance in the initial
// state. Fails with ErrInstanceAlreadyExists when the entity already has
// one.
func (e *Engine) Apply(ctx context.Context, workflowID, entityType, entityID, actorID string) (*models.WorkflowInstance, error) {
	def, err := e.definitions.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	existing, err := e.instances.GetByEntity(ctx, entityType, entityID)
	if err == nil && existing != nil {
		return nil, persistence.NewStorageError("Apply", "workflow_instance", existing.ID, persistence.ErrInstanceAlreadyExists)
	}

	if err != nil && !persistence.IsNotFound(err) {
		return nil, err
	}

	initial := def.InitialState()
	if initial == nil {
		return nil, models.ErrNoInitialState
	}

	now := time.Now().UTC()

	instance := &models.WorkflowInstance{
		ID:             uuid.New().String(),
		WorkflowID:     workflowID,
		EntityType:     entityType,
		EntityID:       entityID,
		CurrentStateID: initial.ID,
		StateHistory: []models.StateHistoryEntry{
			{StateID: initial.ID, EnteredAt: now, EnteredBy: actorID},
		},
		TransitionHistory: []models.TransitionHistoryEntry{},
		TimeInState:       make(map[string]time.Duration),
		EnteredCurrentAt:  now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	e.runActions(ctx, initial.EntryActions, protocol.ExecutionContext{
		EntityType:  entityType,
		EntityID:    entityID,
		TriggerType: string(models.TriggerStateEntered),
		TriggerData: map[string]any{"state_id": initial.ID, "workflow_id": workflowID},
	})

	if err := e.instances.Save(ctx, instance); err != nil {
		return nil, err
	}

	event := events.StateEntered{
		BaseEvent:  events.NewBaseEvent(events.StateEnteredEvent, entityType, entityID),
		InstanceID: instance.ID,
		WorkflowID: workflowID,
		StateID:    initial.ID,
		ActorID:    actorID,
	}

	e.publish(ctx, instance.ID, event)

	return instance, nil
}

// TransitionRequest is one transition attempt.
type TransitionRequest struct {
	InstanceID string
	ToStateID  string
	ActorID    string
	Comment    string

	// FieldUpdates are merged over the matched transition's own field
	// updates; caller values win on conflicting keys.
	FieldUpdates map[string]any
}

// Transition moves an instance to a target state. Candidate transitions
// from any currently active state are evaluated in definition order; the
// first one whose authorization and conditions both pass wins.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (*models.WorkflowInstance, error) {
	lock := e.instanceLock(req.InstanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err := e.instances.GetByID(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}

	if instance.IsCompleted {
		return nil, &InvalidTransitionError{
			InstanceID:  instance.ID,
			FromStateID: instance.CurrentStateID,
			ToStateID:   req.ToStateID,
			Reason:      ReasonCompleted,
		}
	}

	def, err := e.definitions.GetByID(ctx, instance.WorkflowID)
	if err != nil {
		return nil, err
	}

	candidates := e.candidateTransitions(def, instance, req.ToStateID)
	if len(candidates) == 0 {
		return nil, &InvalidTransitionError{
			InstanceID:  instance.ID,
			FromStateID: instance.CurrentStateID,
			ToStateID:   req.ToStateID,
			Reason:      ReasonNoTransition,
		}
	}

	fields := e.entityFields(ctx, instance)

	var (
		matched       *models.Transition
		anyAuthorized bool
	)

	for _, candidate := range candidates {
		if !e.authorized(ctx, candidate, req.ActorID) {
			continue
		}

		anyAuthorized = true

		ok, err := e.evaluator.EvaluateAll(candidate.Conditions, candidate.ConditionLogic, fields)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate transition conditions: %w", err)
		}

		if ok {
			matched = candidate

			break
		}
	}

	if matched == nil {
		reason := ReasonNoMatchingCondition
		if !anyAuthorized {
			reason = ReasonNoPermission
		}

		return nil, &InvalidTransitionError{
			InstanceID:  instance.ID,
			FromStateID: instance.CurrentStateID,
			ToStateID:   req.ToStateID,
			Reason:      reason,
		}
	}

	if matched.RequireComment && req.Comment == "" {
		return nil, &InvalidTransitionError{
			InstanceID:  instance.ID,
			FromStateID: matched.FromStateID,
			ToStateID:   req.ToStateID,
			Reason:      ReasonCommentRequired,
		}
	}

	now := time.Now().UTC()
	fromState := def.StateByID(matched.FromStateID)
	toState := def.StateByID(matched.ToStateID)

	if instance.TimeInState == nil {
		instance.TimeInState = make(map[string]time.Duration)
	}

	instance.TimeInState[matched.FromStateID] += now.Sub(instance.EnteredCurrentAt)

	execCtx := protocol.ExecutionContext{
		EntityType:  instance.EntityType,
		EntityID:    instance.EntityID,
		TriggerType: string(models.TriggerStateEntered),
		TriggerData: map[string]any{
			"workflow_id":   instance.WorkflowID,
			"from_state_id": matched.FromStateID,
			"state_id":      matched.ToStateID,
			"actor_id":      req.ActorID,
		},
	}

	if fromState != nil {
		e.runActions(ctx, fromState.ExitActions, execCtx)
	}

	instance.TransitionHistory = append(instance.TransitionHistory, models.TransitionHistoryEntry{
		TransitionID: matched.ID,
		FromStateID:  matched.FromStateID,
		ToStateID:    matched.ToStateID,
		ActorID:      req.ActorID,
		Comment:      req.Comment,
		At:           now,
	})

	instance.StateHistory = append(instance.StateHistory, models.StateHistoryEntry{
		StateID:   matched.ToStateID,
		EnteredAt: now,
		EnteredBy: req.ActorID,
	})

	e.advanceState(instance, def, matched, toState)
	instance.EnteredCurrentAt = now
	instance.UpdatedAt = now

	if toState != nil {
		e.runActions(ctx, toState.EntryActions, execCtx)
	}

	e.applyFieldUpdates(ctx, instance, matched, req.FieldUpdates)

	if toState != nil && toState.Type == models.StateFinal {
		instance.IsCompleted = true
	}

	if err := e.instances.Save(ctx, instance); err != nil {
		return nil, err
	}

	entered := events.StateEntered{
		BaseEvent:   events.NewBaseEvent(events.StateEnteredEvent, instance.EntityType, instance.EntityID),
		InstanceID:  instance.ID,
		WorkflowID:  instance.WorkflowID,
		FromStateID: matched.FromStateID,
		StateID:     matched.ToStateID,
		ActorID:     req.ActorID,
	}
	e.publish(ctx, instance.ID, entered)

	if instance.IsCompleted {
		completed := events.WorkflowCompleted{
			BaseEvent:    events.NewBaseEvent(events.WorkflowCompletedEvent, instance.EntityType, instance.EntityID),
			InstanceID:   instance.ID,
			WorkflowID:   instance.WorkflowID,
			FinalStateID: matched.ToStateID,
		}
		e.publish(ctx, instance.ID, completed)
	}

	return instance, nil
}

// candidateTransitions collects transitions into the target state from any
// currently active state, in definition order.
func (e *Engine) candidateTransitions(def *models.WorkflowDefinition, instance *models.WorkflowInstance, toStateID string) []*models.Transition {
	from := []string{instance.CurrentStateID}

	for _, active := range instance.ActiveStates {
		if active != instance.CurrentStateID {
			from = append(from, active)
		}
	}

	var candidates []*models.Transition
	for _, fromStateID := range from {
		candidates = append(candidates, def.TransitionsBetween(fromStateID, toStateID)...)
	}

	return candidates
}

// advanceState updates the current state pointer and the parallel active
// set. Entering a parallel-typed state forks: the target joins the active
// set and the outgoing state stays in it. Entering any other state retires
// the outgoing state from the set.
func (e *Engine) advanceState(instance *models.WorkflowInstance, def *models.WorkflowDefinition, matched *models.Transition, toState *models.State) {
	if toState != nil && toState.Type == models.StateParallel && def.AllowParallelStates {
		if !instance.InActiveState(matched.ToStateID) {
			instance.ActiveStates = append(instance.ActiveStates, matched.ToStateID)
		}

		instance.CurrentStateID = matched.ToStateID

		return
	}

	remaining := instance.ActiveStates[:0]

	for _, active := range instance.ActiveStates {
		if active != matched.FromStateID {
			remaining = append(remaining, active)
		}
	}

	instance.ActiveStates = remaining
	instance.CurrentStateID = matched.ToStateID
}

// entityFields loads the entity's current field values for condition
// evaluation. A missing entity evaluates against an empty map.
func (e *Engine) entityFields(ctx context.Context, instance *models.WorkflowInstance) map[string]any {
	task, err := e.tasks.Get(ctx, instance.EntityID)
	if err != nil || task == nil {
		return map[string]any{}
	}

	return task.FieldMap()
}

// authorized checks allow_all, the user list, then the actor's role via the
// cached directory lookup. A transition with no restrictions at all is open.
func (e *Engine) authorized(ctx context.Context, tr *models.Transition, actorID string) bool {
	if tr.AllowAll {
		return true
	}

	if len(tr.AllowedUsers) == 0 && len(tr.AllowedRoles) == 0 {
		return true
	}

	for _, user := range tr.AllowedUsers {
		if user == actorID {
			return true
		}
	}

	if len(tr.AllowedRoles) == 0 {
		return false
	}

	role, ok := e.actorRole(ctx, actorID)
	if !ok {
		return false
	}

	for _, allowed := range tr.AllowedRoles {
		if allowed == role {
			return true
		}
	}

	return false
}

func (e *Engine) actorRole(ctx context.Context, actorID string) (string, bool) {
	key := roleCachePrefix + actorID

	if e.roleCache != nil {
		if role, ok := e.roleCache.Get(ctx, key); ok {
			return role, true
		}
	}

	user, err := e.users.Get(ctx, actorID)
	if err != nil || user == nil {
		return "", false
	}

	if e.roleCache != nil {
		e.roleCache.Set(ctx, key, user.Role, roleCacheTTL)
	}

	return user.Role, true
}

// InvalidateRoleCache drops cached directory lookups, for callers reacting
// to role changes.
func (e *Engine) InvalidateRoleCache(ctx context.Context) {
	if e.roleCache != nil {
		e.roleCache.Invalidate(ctx, roleCachePrefix)
	}
}

// runActions executes entry/exit action specs. Failures never abort the
// transition; stop_on_error only short-circuits the remaining actions of
// the same list.
func (e *Engine) runActions(ctx context.Context, specs []models.ActionSpec, execCtx protocol.ExecutionContext) {
	for _, spec := range specs {
		action, err := e.registry.CreateAction(spec.Type, spec.Parameters)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to create state action", "action_type", spec.Type, "error", err)

			if spec.StopOnError {
				return
			}

			continue
		}

		_, err = action.Execute(ctx, execCtx, e.logger)
		if err != nil {
			e.logger.ErrorContext(ctx, "state action failed", "action_type", spec.Type, "error", err)

			if spec.StopOnError {
				return
			}
		}
	}
}

// applyFieldUpdates merges the transition's configured updates with the
// caller's and writes them through the task store.
func (e *Engine) applyFieldUpdates(ctx context.Context, instance *models.WorkflowInstance, tr *models.Transition, callerUpdates map[string]any) {
	if len(tr.FieldUpdates) == 0 && len(callerUpdates) == 0 {
		return
	}

	merged := make(map[string]any, len(tr.FieldUpdates)+len(callerUpdates))

	for k, v := range tr.FieldUpdates {
		merged[k] = v
	}

	for k, v := range callerUpdates {
		merged[k] = v
	}

	err := e.tasks.Update(ctx, instance.EntityID, merged)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to apply transition field updates",
			"entity_id", instance.EntityID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
