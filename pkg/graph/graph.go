// Package graph is the dependency graph engine: typed edges between tasks,
// cycle detection over the scheduling subgraph, and critical-path
// computation.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planfold/planfold/pkg/eventbus"
	"github.com/planfold/planfold/pkg/events"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/protocol"
)

// Options tunes engine policy.
type Options struct {
	// DefaultDurationDays is used for tasks with no duration given to
	// CriticalPath. Documented default, never a silent zero.
	DefaultDurationDays int

	// CompletedStatuses are the task statuses treated as finished when
	// computing which successors a completed task unblocks.
	CompletedStatuses []string
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		DefaultDurationDays: 1,
		CompletedStatuses:   []string{"done", "completed"},
	}
}

// Engine stores typed dependency edges and answers graph queries. Inserts
// are serialized per project so the cycle check and the insert are atomic;
// queries run on a snapshot of the project's edge set and never block
// unrelated writes.
type Engine struct {
	deps      persistence.DependencyRepository
	tasks     protocol.TaskStore
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	opts      Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a graph engine. The publisher may be nil; events are
// then dropped.
func NewEngine(
	deps persistence.DependencyRepository,
	tasks protocol.TaskStore,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	opts Options,
) *Engine {
	if opts.DefaultDurationDays <= 0 {
		opts.DefaultDurationDays = DefaultOptions().DefaultDurationDays
	}

	if len(opts.CompletedStatuses) == 0 {
		opts.CompletedStatuses = DefaultOptions().CompletedStatuses
	}

	return &Engine{
		deps:      deps,
		tasks:     tasks,
		publisher: publisher,
		logger:    logger.With("module", "graph"),
		opts:      opts,
		locks:     make(map[string]*sync.Mutex),
	}
}

// projectLock returns the mutex serializing writes for one project.
func (e *Engine) projectLock(projectID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[projectID] = lock
	}

	return lock
}

// AddDependency validates, cycle-checks, and persists a new edge. A rejected
// insert leaves the stored edge set untouched: the tentative edge only ever
// exists on the in-memory snapshot the cycle check runs against.
func (e *Engine) AddDependency(ctx context.Context, dep *models.Dependency) error {
	if err := dep.Validate(); err != nil {
		return err
	}

	source, err := e.tasks.Get(ctx, dep.SourceTaskID)
	if err != nil || source == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, dep.SourceTaskID)
	}

	target, err := e.tasks.Get(ctx, dep.TargetTaskID)
	if err != nil || target == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, dep.TargetTaskID)
	}

	if source.ProjectID != target.ProjectID {
		return fmt.Errorf("%w: %s vs %s", ErrCrossProject, source.ProjectID, target.ProjectID)
	}

	dep.ProjectID = source.ProjectID

	lock := e.projectLock(dep.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := e.deps.ListByProject(ctx, dep.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project dependencies: %w", err)
	}

	for _, existing := range snapshot {
		if existing.SourceTaskID == dep.SourceTaskID &&
			existing.TargetTaskID == dep.TargetTaskID &&
			existing.Type == dep.Type {
			return fmt.Errorf("%w: %s -> %s (%s)", ErrDuplicateDependency, dep.SourceTaskID, dep.TargetTaskID, dep.Type)
		}
	}

	if dep.Type.Scheduling() {
		tentative := append(append([]*models.Dependency{}, snapshot...), dep)

		cycles := findCycles(tentative)
		if len(cycles) > 0 {
			return &CycleError{Cycle: cycles[0]}
		}
	}

	if dep.ID == "" {
		dep.ID = uuid.New().String()
	}

	dep.Active = true

	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now().UTC()
	}

	if err := e.deps.Save(ctx, dep); err != nil {
		return fmt.Errorf("failed to save dependency: %w", err)
	}

	event := events.DependencyCreated{
		BaseEvent:      events.NewBaseEvent(events.DependencyCreatedEvent, "dependency", dep.ID),
		DependencyID:   dep.ID,
		SourceTaskID:   dep.SourceTaskID,
		TargetTaskID:   dep.TargetTaskID,
		DependencyType: string(dep.Type),
		LagDays:        dep.LagDays,
	}
	event.ProjectID = dep.ProjectID

	e.publish(ctx, dep.ProjectID, event)

	return nil
}

// GetDependency resolves one edge by id.
func (e *Engine) GetDependency(ctx context.Context, id string) (*models.Dependency, error) {
	return e.deps.GetByID(ctx, id)
}

// ListDependencies returns a project's active edges.
func (e *Engine) ListDependencies(ctx context.Context, projectID string) ([]*models.Dependency, error) {
	return e.deps.ListByProject(ctx, projectID)
}

// RemoveDependency deletes an edge.
func (e *Engine) RemoveDependency(ctx context.Context, id string) error {
	dep, err := e.deps.GetByID(ctx, id)
	if err != nil {
		return err
	}

	lock := e.projectLock(dep.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.deps.Delete(ctx, id); err != nil {
		return err
	}

	event := events.DependencyRemoved{
		BaseEvent:    events.NewBaseEvent(events.DependencyRemovedEvent, "dependency", id),
		DependencyID: id,
	}
	event.ProjectID = dep.ProjectID

	e.publish(ctx, dep.ProjectID, event)

	return nil
}

// TaskCompleted reports a finished task to the graph. For every scheduling
// edge the task precedes, a dependency.completed event fires, naming the
// successor when all of its predecessors are now finished.
func (e *Engine) TaskCompleted(ctx context.Context, projectID, taskID string) error {
	snapshot, err := e.deps.ListByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load project dependencies: %w", err)
	}

	predecessors := make(map[string][]string)

	for _, dep := range snapshot {
		pred, succ, ok := dep.PredecessorSuccessor()
		if ok {
			predecessors[succ] = append(predecessors[succ], pred)
		}
	}

	for _, dep := range snapshot {
		pred, succ, ok := dep.PredecessorSuccessor()
		if !ok || pred != taskID {
			continue
		}

		var unblocked []string

		if e.allCompleted(ctx, predecessors[succ], taskID) {
			unblocked = []string{succ}
		}

		event := events.DependencyCompleted{
			BaseEvent:        events.NewBaseEvent(events.DependencyCompletedEvent, "task", succ),
			DependencyID:     dep.ID,
			CompletedTaskID:  taskID,
			UnblockedTaskIDs: unblocked,
		}
		event.ProjectID = projectID

		e.publish(ctx, projectID, event)
	}

	return nil
}

// allCompleted reports whether every listed predecessor is finished. The
// task that just completed counts as finished regardless of what the store
// currently says.
func (e *Engine) allCompleted(ctx context.Context, taskIDs []string, justCompleted string) bool {
	for _, id := range taskIDs {
		if id == justCompleted {
			continue
		}

		task, err := e.tasks.Get(ctx, id)
		if err != nil || task == nil {
			return false
		}

		if !e.isCompletedStatus(task.Status) {
			return false
		}
	}

	return true
}

func (e *Engine) isCompletedStatus(status string) bool {
	for _, s := range e.opts.CompletedStatuses {
		if s == status {
			return true
		}
	}

	return false
}

// FindCycles returns all distinct cycles in the project's scheduling
// subgraph. A healthy graph returns an empty list.
func (e *Engine) FindCycles(ctx context.Context, projectID string) ([][]string, error) {
	snapshot, err := e.deps.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project dependencies: %w", err)
	}

	return findCycles(snapshot), nil
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
