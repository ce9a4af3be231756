package workflow

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planfold/planfold/pkg/cache"
	"github.com/planfold/planfold/pkg/conditions"
	"github.com/planfold/planfold/pkg/events"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/persistence/memory"
	"github.com/planfold/planfold/pkg/protocol"
	"github.com/planfold/planfold/pkg/registry"
	"github.com/planfold/planfold/pkg/testutil"
)

type engineFixture struct {
	engine  *Engine
	store   *testutil.TaskStore
	users   *testutil.UserDirectory
	capture *testutil.EventCapture
	p       persistence.Persistence
}

func newFixture(t *testing.T, def *models.WorkflowDefinition, tasks ...*protocol.TaskRecord) *engineFixture {
	t.Helper()

	ctx := context.Background()

	p := memory.NewPersistence()
	if def != nil {
		require.NoError(t, p.WorkflowDefinitions().Save(ctx, def))
	}

	store := testutil.NewTaskStore(tasks...)
	users := testutil.NewUserDirectory(
		&protocol.UserRecord{ID: "alice", Role: "manager"},
		&protocol.UserRecord{ID: "bob", Role: "developer"},
	)
	capture := testutil.NewEventCapture()

	engine := NewEngine(
		p.WorkflowDefinitions(), p.WorkflowInstances(), store, users,
		registry.NewRegistry(slog.Default()), capture, cache.NewMemory(), slog.Default())

	return &engineFixture{engine: engine, store: store, users: users, capture: capture, p: p}
}

func approvalWorkflow() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:         "wf-1",
		Name:       "Task review",
		EntityType: "task",
		States: []*models.State{
			{ID: "todo", Name: "To do", Type: models.StateInitial},
			{ID: "review", Name: "Review", Type: models.StateNormal},
			{ID: "done", Name: "Done", Type: models.StateFinal},
		},
		Transitions: []*models.Transition{
			{ID: "start-review", FromStateID: "todo", ToStateID: "review", AllowAll: true},
			{
				ID: "approve", FromStateID: "review", ToStateID: "done",
				AllowedRoles:   []string{"manager"},
				RequireComment: true,
			},
		},
	}
}

func TestEngine_Apply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, approvalWorkflow(), &protocol.TaskRecord{ID: "t1", ProjectID: "p1"})

	instance, err := f.engine.Apply(ctx, "wf-1", "task", "t1", "alice")
	require.NoError(t, err)

	assert.Equal(t, "todo", instance.CurrentStateID)
	assert.False(t, instance.IsCompleted)
	require.Len(t, instance.StateHistory, 1)
	assert.Equal(t, "todo", instance.StateHistory[0].StateID)
	assert.Equal(t, "alice", instance.StateHistory[0].EnteredBy)

	assert.Len(t, f.capture.ByType(string(events.StateEnteredEvent)), 1)
}

func TestEngine_Apply_DuplicateEntity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, approvalWorkflow(), &protocol.TaskRecord{ID: "t1", ProjectID: "p1"})

	_, err := f.engine.Apply(ctx, "wf-1", "task", "t1", "alice")
	require.NoError(t, err)

	_, err = f.engine.Apply(ctx, "wf-1", "task", "t1", "alice")
	require.ErrorIs(t, err, persistence.ErrInstanceAlreadyExists)
}

func TestEngine_Transition_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, approvalWorkflow(), &protocol.TaskRecord{ID: "t1", ProjectID: "p1", Status: "todo"})

	instance, err := f.engine.Apply(ctx, "wf-1", "task", "t1", "alice")
	require.NoError(t, err)

	moved, err := f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID,
		ToStateID:  "review",
		ActorID:    "bob",
	})
	require.NoError(t, err)

	assert.Equal(t, "review", moved.CurrentStateID)
	require.Len(t, moved.TransitionHistory, 1)
	assert.Equal(t, "start-review", moved.TransitionHistory[0].TransitionID)
	assert.Equal(t, "bob", moved.TransitionHistory[0].ActorID)

	// Time spent in the outgoing state is folded into the accumulator.
	assert.Contains(t, moved.TimeInState, "todo")
}

func TestEngine_Transition_NoSuchTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, approvalWorkflow(), &protocol.TaskRecord{ID: "t1", ProjectID: "p1"})

	instance, err := f.engine.Apply(ctx, "wf-1", "task", "t1", "alice")
	require.NoError(t, err)

	// todo -> done has no transition defined.
	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID,
		ToStateID:  "done",
		ActorID:    "alice",
	})
	require.True(t, IsInvalidTransition(err))

	var invalidErr *InvalidTransitionError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, ReasonNoTransition, invalidErr.Reason)
}

func TestEngine_Transition_RoleAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, approvalWorkflow(), &protocol.TaskRecord{ID: "t1", ProjectID: "p1"})

	instance, err := f.engine.Apply(ctx, "wf-1", "task", "t1", "alice")
	require.NoError(t, err)

	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "review", ActorID: "bob",
	})
	require.NoError(t, err)

	// Developers may not approve.
	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "done", ActorID: "bob", Comment: "done",
	})

	var invalidErr *InvalidTransitionError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, ReasonNoPermission, invalidErr.Reason)

	// Managers may, but the transition requires a comment.
	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "done", ActorID: "alice",
	})
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, ReasonCommentRequired, invalidErr.Reason)

	moved, err := f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "done", ActorID: "alice", Comment: "ship it",
	})
	require.NoError(t, err)
	assert.True(t, moved.IsCompleted)

	assert.Len(t, f.capture.ByType(string(events.WorkflowCompletedEvent)), 1)
}

func TestEngine_Transition_RoleLookupsAreCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, approvalWorkflow(), &protocol.TaskRecord{ID: "t1", ProjectID: "p1"})

	instance, err := f.engine.Apply(ctx, "wf-1", "task", "t1", "alice")
	require.NoError(t, err)

	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "review", ActorID: "alice",
	})
	require.NoError(t, err)

	// Two role-guarded attempts; the directory is hit once.
	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "done", ActorID: "alice",
	})
	require.True(t, IsInvalidTransition(err)) // comment required

	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "done", ActorID: "alice", Comment: "ok",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.users.Lookups)
}

func TestEngine_Transition_FinalStateRejectsFurtherMoves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, approvalWorkflow(), &protocol.TaskRecord{ID: "t1", ProjectID: "p1"})

	instance, err := f.engine.Apply(ctx, "wf-1", "task", "t1", "alice")
	require.NoError(t, err)

	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "review", ActorID: "alice",
	})
	require.NoError(t, err)

	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "done", ActorID: "alice", Comment: "approved",
	})
	require.NoError(t, err)

	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "review", ActorID: "alice",
	})

	var invalidErr *InvalidTransitionError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, ReasonCompleted, invalidErr.Reason)
}

func TestEngine_Transition_ConditionGuard(t *testing.T) {
	ctx := context.Background()

	def := approvalWorkflow()
	def.Transitions[0].Conditions = []conditions.Condition{
		{Field: "status", Operator: conditions.OpEquals, Value: "ready"},
	}

	f := newFixture(t, def, &protocol.TaskRecord{ID: "t1", ProjectID: "p1", Status: "todo"})

	instance, err := f.engine.Apply(ctx, "wf-1", "task", "t1", "alice")
	require.NoError(t, err)

	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "review", ActorID: "alice",
	})

	var invalidErr *InvalidTransitionError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, ReasonNoMatchingCondition, invalidErr.Reason)

	f.store.Tasks["t1"].Status = "ready"

	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "review", ActorID: "alice",
	})
	require.NoError(t, err)
}

func TestEngine_Transition_FieldUpdates(t *testing.T) {
	ctx := context.Background()

	def := approvalWorkflow()
	def.Transitions[0].FieldUpdates = map[string]any{"status": "in_review", "priority": "high"}

	f := newFixture(t, def, &protocol.TaskRecord{ID: "t1", ProjectID: "p1", Status: "todo"})

	instance, err := f.engine.Apply(ctx, "wf-1", "task", "t1", "alice")
	require.NoError(t, err)

	// Caller updates win on conflicting keys.
	_, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID:   instance.ID,
		ToStateID:    "review",
		ActorID:      "alice",
		FieldUpdates: map[string]any{"priority": "urgent"},
	})
	require.NoError(t, err)

	require.Len(t, f.store.Updates, 1)
	assert.Equal(t, "in_review", f.store.Updates[0]["status"])
	assert.Equal(t, "urgent", f.store.Updates[0]["priority"])
}

func TestEngine_Transition_ParallelStates(t *testing.T) {
	ctx := context.Background()

	def := &models.WorkflowDefinition{
		ID:                  "wf-par",
		Name:                "Parallel review",
		EntityType:          "task",
		AllowParallelStates: true,
		States: []*models.State{
			{ID: "start", Name: "Start", Type: models.StateInitial},
			{ID: "qa", Name: "QA", Type: models.StateParallel},
			{ID: "docs", Name: "Docs", Type: models.StateParallel},
			{ID: "done", Name: "Done", Type: models.StateFinal},
		},
		Transitions: []*models.Transition{
			{ID: "to-qa", FromStateID: "start", ToStateID: "qa", AllowAll: true},
			{ID: "to-docs", FromStateID: "qa", ToStateID: "docs", AllowAll: true},
			{ID: "to-done", FromStateID: "docs", ToStateID: "done", AllowAll: true},
		},
	}

	f := newFixture(t, def, &protocol.TaskRecord{ID: "t1", ProjectID: "p1"})

	instance, err := f.engine.Apply(ctx, "wf-par", "task", "t1", "alice")
	require.NoError(t, err)

	moved, err := f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "qa", ActorID: "alice",
	})
	require.NoError(t, err)
	assert.True(t, moved.InActiveState("qa"))

	// Entering a second parallel state forks: qa stays active alongside docs.
	moved, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "docs", ActorID: "alice",
	})
	require.NoError(t, err)
	assert.True(t, moved.InActiveState("docs"))
	assert.True(t, moved.InActiveState("qa"))
	assert.Len(t, moved.ActiveStates, 2)
	assert.Equal(t, "docs", moved.CurrentStateID)

	// Leaving a parallel state for a non-parallel one retires only the
	// outgoing branch; qa keeps running.
	moved, err = f.engine.Transition(ctx, TransitionRequest{
		InstanceID: instance.ID, ToStateID: "done", ActorID: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "done", moved.CurrentStateID)
	assert.Equal(t, []string{"qa"}, moved.ActiveStates)
	assert.True(t, moved.IsCompleted)
}
