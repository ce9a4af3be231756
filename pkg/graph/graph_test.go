package graph

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planfold/planfold/pkg/events"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence/memory"
	"github.com/planfold/planfold/pkg/protocol"
	"github.com/planfold/planfold/pkg/testutil"
)

func newTestEngine(t *testing.T, tasks ...*protocol.TaskRecord) (*Engine, *testutil.TaskStore, *testutil.EventCapture) {
	t.Helper()

	store := testutil.NewTaskStore(tasks...)
	capture := testutil.NewEventCapture()
	engine := NewEngine(
		memory.NewPersistence().Dependencies(), store, capture, slog.Default(), DefaultOptions())

	return engine, store, capture
}

func projectTasks(projectID string, ids ...string) []*protocol.TaskRecord {
	tasks := make([]*protocol.TaskRecord, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, &protocol.TaskRecord{ID: id, ProjectID: projectID, Status: "todo"})
	}

	return tasks
}

func blocks(source, target string) *models.Dependency {
	return &models.Dependency{
		SourceTaskID: source,
		TargetTaskID: target,
		Type:         models.DependencyBlocks,
	}
}

func TestEngine_AddDependency(t *testing.T) {
	ctx := context.Background()
	engine, _, capture := newTestEngine(t, projectTasks("p1", "a", "b")...)

	dep := blocks("a", "b")
	require.NoError(t, engine.AddDependency(ctx, dep))

	assert.NotEmpty(t, dep.ID)
	assert.Equal(t, "p1", dep.ProjectID)
	assert.True(t, dep.Active)
	assert.False(t, dep.CreatedAt.IsZero())

	listed, err := engine.ListDependencies(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	assert.Len(t, capture.ByType(string(events.DependencyCreatedEvent)), 1)
}

func TestEngine_AddDependency_UnknownTask(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, projectTasks("p1", "a")...)

	err := engine.AddDependency(ctx, blocks("a", "ghost"))
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestEngine_AddDependency_CrossProject(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t,
		&protocol.TaskRecord{ID: "a", ProjectID: "p1"},
		&protocol.TaskRecord{ID: "b", ProjectID: "p2"},
	)

	err := engine.AddDependency(ctx, blocks("a", "b"))
	require.ErrorIs(t, err, ErrCrossProject)
}

func TestEngine_AddDependency_Duplicate(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, projectTasks("p1", "a", "b")...)

	require.NoError(t, engine.AddDependency(ctx, blocks("a", "b")))

	err := engine.AddDependency(ctx, blocks("a", "b"))
	require.ErrorIs(t, err, ErrDuplicateDependency)

	// Same tasks under a different type is a distinct edge.
	related := &models.Dependency{
		SourceTaskID: "a", TargetTaskID: "b", Type: models.DependencyRelatesTo,
	}
	require.NoError(t, engine.AddDependency(ctx, related))
}

func TestEngine_AddDependency_RejectsCycle(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, projectTasks("p1", "a", "b", "c")...)

	require.NoError(t, engine.AddDependency(ctx, blocks("a", "b")))
	require.NoError(t, engine.AddDependency(ctx, blocks("b", "c")))

	err := engine.AddDependency(ctx, blocks("c", "a"))
	require.Error(t, err)
	assert.True(t, IsCycleError(err))

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.NotEmpty(t, cycleErr.Cycle)

	// The rejected insert must leave the stored graph untouched.
	listed, err := engine.ListDependencies(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	cycles, err := engine.FindCycles(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, cycles)
}

func TestEngine_AddDependency_NonSchedulingTypesSkipCycleCheck(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, projectTasks("p1", "a", "b")...)

	forward := &models.Dependency{
		SourceTaskID: "a", TargetTaskID: "b", Type: models.DependencyRelatesTo,
	}
	backward := &models.Dependency{
		SourceTaskID: "b", TargetTaskID: "a", Type: models.DependencyRelatesTo,
	}

	require.NoError(t, engine.AddDependency(ctx, forward))
	require.NoError(t, engine.AddDependency(ctx, backward))
}

func TestEngine_RemoveDependency(t *testing.T) {
	ctx := context.Background()
	engine, _, capture := newTestEngine(t, projectTasks("p1", "a", "b")...)

	dep := blocks("a", "b")
	require.NoError(t, engine.AddDependency(ctx, dep))
	require.NoError(t, engine.RemoveDependency(ctx, dep.ID))

	listed, err := engine.ListDependencies(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, listed)

	assert.Len(t, capture.ByType(string(events.DependencyRemovedEvent)), 1)
}

func TestEngine_TaskCompleted_UnblocksSuccessors(t *testing.T) {
	ctx := context.Background()

	tasks := projectTasks("p1", "a", "b", "c")
	engine, store, capture := newTestEngine(t, tasks...)

	require.NoError(t, engine.AddDependency(ctx, blocks("a", "c")))
	require.NoError(t, engine.AddDependency(ctx, blocks("b", "c")))

	// Only one predecessor done: c stays blocked.
	store.Tasks["a"].Status = "done"
	require.NoError(t, engine.TaskCompleted(ctx, "p1", "a"))

	completed := capture.ByType(string(events.DependencyCompletedEvent))
	require.Len(t, completed, 1)

	first, ok := completed[0].Event.(events.DependencyCompleted)
	require.True(t, ok)
	assert.Empty(t, first.UnblockedTaskIDs)

	// Both predecessors done: c unblocks.
	store.Tasks["b"].Status = "done"
	require.NoError(t, engine.TaskCompleted(ctx, "p1", "b"))

	completed = capture.ByType(string(events.DependencyCompletedEvent))
	require.Len(t, completed, 2)

	second, ok := completed[1].Event.(events.DependencyCompleted)
	require.True(t, ok)
	assert.Equal(t, []string{"c"}, second.UnblockedTaskIDs)
}

func TestEngine_CriticalPath_Chain(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, projectTasks("p1", "A", "B", "C")...)

	require.NoError(t, engine.AddDependency(ctx, blocks("A", "B")))
	require.NoError(t, engine.AddDependency(ctx, blocks("B", "C")))

	result, err := engine.CriticalPath(ctx, "p1", map[string]int{"A": 2, "B": 3, "C": 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, result.CriticalPath)
	assert.Equal(t, 6, result.TotalDurationDays)

	byID := make(map[string]TaskSchedule, len(result.Tasks))
	for _, task := range result.Tasks {
		byID[task.TaskID] = task
	}

	assert.Equal(t, 0, byID["A"].EarliestStart)
	assert.Equal(t, 2, byID["A"].EarliestFinish)
	assert.Equal(t, 2, byID["B"].EarliestStart)
	assert.Equal(t, 5, byID["B"].EarliestFinish)
	assert.Equal(t, 5, byID["C"].EarliestStart)
	assert.Equal(t, 6, byID["C"].EarliestFinish)

	for _, task := range result.Tasks {
		assert.Equal(t, 0, task.SlackDays, "task %s", task.TaskID)
		assert.True(t, task.Critical, "task %s", task.TaskID)
	}
}

func TestEngine_CriticalPath_SlackOnSidePath(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, projectTasks("p1", "A", "B", "C", "D")...)

	// A -> B -> D is the long path; A -> C -> D is shorter.
	require.NoError(t, engine.AddDependency(ctx, blocks("A", "B")))
	require.NoError(t, engine.AddDependency(ctx, blocks("B", "D")))
	require.NoError(t, engine.AddDependency(ctx, blocks("A", "C")))
	require.NoError(t, engine.AddDependency(ctx, blocks("C", "D")))

	result, err := engine.CriticalPath(ctx, "p1", map[string]int{"A": 1, "B": 4, "C": 2, "D": 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "D"}, result.CriticalPath)
	assert.Equal(t, 6, result.TotalDurationDays)

	byID := make(map[string]TaskSchedule, len(result.Tasks))
	for _, task := range result.Tasks {
		byID[task.TaskID] = task
	}

	assert.Equal(t, 2, byID["C"].SlackDays)
	assert.False(t, byID["C"].Critical)
	assert.True(t, byID["B"].Critical)
}

func TestEngine_CriticalPath_LagExtendsSchedule(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, projectTasks("p1", "A", "B")...)

	lagged := blocks("A", "B")
	lagged.LagDays = 2
	require.NoError(t, engine.AddDependency(ctx, lagged))

	result, err := engine.CriticalPath(ctx, "p1", map[string]int{"A": 1, "B": 1})
	require.NoError(t, err)

	byID := make(map[string]TaskSchedule, len(result.Tasks))
	for _, task := range result.Tasks {
		byID[task.TaskID] = task
	}

	assert.Equal(t, 3, byID["B"].EarliestStart)
	assert.Equal(t, 4, result.TotalDurationDays)
}

func TestEngine_CriticalPath_DefaultDuration(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, projectTasks("p1", "A", "B")...)

	require.NoError(t, engine.AddDependency(ctx, blocks("A", "B")))

	// No durations supplied: every task gets the default one day.
	result, err := engine.CriticalPath(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalDurationDays)
}

func TestEngine_CriticalPath_EmptyProject(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	result, err := engine.CriticalPath(ctx, "empty", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Tasks)
	assert.Empty(t, result.CriticalPath)
	assert.Zero(t, result.TotalDurationDays)
}

func TestEngine_Export(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, projectTasks("p1", "A", "B")...)

	dep := blocks("A", "B")
	require.NoError(t, engine.AddDependency(ctx, dep))

	related := &models.Dependency{
		SourceTaskID: "A", TargetTaskID: "B", Type: models.DependencyRelatesTo,
	}
	require.NoError(t, engine.AddDependency(ctx, related))

	export, err := engine.Export(ctx, "p1", map[string]int{"A": 2, "B": 1})
	require.NoError(t, err)

	// Non-scheduling edges are exported too; CPM annotations only cover
	// scheduling tasks.
	assert.Len(t, export.Edges, 2)
	assert.Equal(t, []string{"A", "B"}, export.CriticalPath)
	assert.Equal(t, 3, export.TotalDurationDays)
}

func TestFindCycles_Deterministic(t *testing.T) {
	deps := []*models.Dependency{
		{ID: "1", SourceTaskID: "a", TargetTaskID: "b", Type: models.DependencyBlocks},
		{ID: "2", SourceTaskID: "b", TargetTaskID: "a", Type: models.DependencyBlocks},
	}

	cycles := findCycles(deps)
	require.Len(t, cycles, 1)

	// A cycle is reported closed: first and last node are the same.
	cycle := cycles[0]
	require.GreaterOrEqual(t, len(cycle), 3)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
}
