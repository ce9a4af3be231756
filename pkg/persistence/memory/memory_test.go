package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
)

func TestDependencyRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().Dependencies()

	dep := &models.Dependency{
		ID:           "d1",
		ProjectID:    "p1",
		SourceTaskID: "a",
		TargetTaskID: "b",
		Type:         models.DependencyBlocks,
		Active:       true,
	}
	require.NoError(t, repo.Save(ctx, dep))

	loaded, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, dep, loaded)

	// Returned records are copies; mutating one never touches the store.
	loaded.TargetTaskID = "z"

	again, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "b", again.TargetTaskID)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrDependencyNotFound)
	assert.True(t, persistence.IsNotFound(err))

	require.NoError(t, repo.Delete(ctx, "d1"))
	require.ErrorIs(t, repo.Delete(ctx, "d1"), persistence.ErrDependencyNotFound)
}

func TestDependencyRepository_ListByProject(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().Dependencies()

	require.NoError(t, repo.Save(ctx, &models.Dependency{
		ID: "d1", ProjectID: "p1", SourceTaskID: "a", TargetTaskID: "b",
		Type: models.DependencyBlocks, Active: true,
	}))
	require.NoError(t, repo.Save(ctx, &models.Dependency{
		ID: "d2", ProjectID: "p1", SourceTaskID: "b", TargetTaskID: "c",
		Type: models.DependencyBlocks, Active: false,
	}))
	require.NoError(t, repo.Save(ctx, &models.Dependency{
		ID: "d3", ProjectID: "p2", SourceTaskID: "x", TargetTaskID: "y",
		Type: models.DependencyBlocks, Active: true,
	}))

	deps, err := repo.ListByProject(ctx, "p1")
	require.NoError(t, err)

	// Inactive edges and other projects are filtered out.
	require.Len(t, deps, 1)
	assert.Equal(t, "d1", deps[0].ID)
}

func TestInstanceRepository_GetByEntity(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().WorkflowInstances()

	require.NoError(t, repo.Save(ctx, &models.WorkflowInstance{
		ID: "i1", WorkflowID: "w1", EntityType: "task", EntityID: "t1",
	}))

	instance, err := repo.GetByEntity(ctx, "task", "t1")
	require.NoError(t, err)
	assert.Equal(t, "i1", instance.ID)

	_, err = repo.GetByEntity(ctx, "task", "t2")
	require.ErrorIs(t, err, persistence.ErrWorkflowInstanceNotFound)

	_, err = repo.GetByEntity(ctx, "document", "t1")
	require.ErrorIs(t, err, persistence.ErrWorkflowInstanceNotFound)
}

func TestRuleRepository_ListByTriggerType(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().AutomationRules()

	require.NoError(t, repo.Save(ctx, &models.AutomationRule{
		ID:       "r1",
		IsActive: true,
		Triggers: []models.RuleTrigger{{Type: models.TriggerTaskStatusChanged}},
	}))
	require.NoError(t, repo.Save(ctx, &models.AutomationRule{
		ID:       "r2",
		IsActive: false,
		Triggers: []models.RuleTrigger{{Type: models.TriggerTaskStatusChanged}},
	}))
	require.NoError(t, repo.Save(ctx, &models.AutomationRule{
		ID:       "r3",
		IsActive: true,
		Triggers: []models.RuleTrigger{{Type: models.TriggerTaskCreated}},
	}))

	rules, err := repo.ListByTriggerType(ctx, models.TriggerTaskStatusChanged)
	require.NoError(t, err)

	// Only active rules carrying the firing trigger type are returned.
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].ID)
}

func TestLogRepository_CountForRuleSince(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().AutomationLogs()

	midnight := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	save := func(id string, status models.LogStatus, startedAt time.Time) {
		require.NoError(t, repo.Save(ctx, &models.AutomationLog{
			ID: id, RuleID: "r1", Status: status, StartedAt: startedAt,
		}))
	}

	save("l1", models.LogSuccess, midnight.Add(time.Hour))
	save("l2", models.LogFailed, midnight.Add(2*time.Hour))
	save("l3", models.LogRunning, midnight.Add(3*time.Hour))

	// Skipped runs and yesterday's runs never consume the daily budget.
	save("l4", models.LogSkipped, midnight.Add(4*time.Hour))
	save("l5", models.LogSuccess, midnight.Add(-time.Hour))

	count, err := repo.CountForRuleSince(ctx, "r1", midnight)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestLogRepository_ListByRule(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().AutomationLogs()

	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, &models.AutomationLog{
		ID: "l1", RuleID: "r1", Status: models.LogSuccess, StartedAt: base,
	}))
	require.NoError(t, repo.Save(ctx, &models.AutomationLog{
		ID: "l2", RuleID: "r1", Status: models.LogSuccess, StartedAt: base.Add(-48 * time.Hour),
	}))
	require.NoError(t, repo.Save(ctx, &models.AutomationLog{
		ID: "l3", RuleID: "r2", Status: models.LogSuccess, StartedAt: base,
	}))

	logs, err := repo.ListByRule(ctx, "r1", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "l1", logs[0].ID)
}

func TestRecurringRepository_ListActive(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().RecurringTasks()

	require.NoError(t, repo.Save(ctx, &models.RecurringTask{ID: "g1", ProjectID: "p1", IsActive: true}))
	require.NoError(t, repo.Save(ctx, &models.RecurringTask{ID: "g2", ProjectID: "p1", IsActive: false}))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "g1", active[0].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrRecurringTaskNotFound)
}

func TestDefinitionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().WorkflowDefinitions()

	require.NoError(t, repo.Save(ctx, &models.WorkflowDefinition{ID: "w1", Name: "Review"}))

	defs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrWorkflowDefinitionNotFound)
	assert.True(t, persistence.IsNotFound(err))
}
