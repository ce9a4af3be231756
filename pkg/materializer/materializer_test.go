package materializer

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planfold/planfold/pkg/events"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/persistence/memory"
	"github.com/planfold/planfold/pkg/testutil"
)

type materializerFixture struct {
	materializer *Materializer
	recurring    persistence.RecurringTaskRepository
	store        *testutil.TaskStore
	capture      *testutil.EventCapture
}

func newMaterializerFixture(t *testing.T, now time.Time) *materializerFixture {
	t.Helper()

	p := memory.NewPersistence()
	store := testutil.NewTaskStore()
	capture := testutil.NewEventCapture()

	m := NewMaterializer(p.RecurringTasks(), store, capture, nil, slog.Default(), 0)
	m.now = func() time.Time { return now }

	return &materializerFixture{
		materializer: m,
		recurring:    p.RecurringTasks(),
		store:        store,
		capture:      capture,
	}
}

func dailyGenerator(start time.Time) *models.RecurringTask {
	return &models.RecurringTask{
		ID:        "gen-1",
		ProjectID: "p1",
		Pattern: models.RecurrencePattern{
			Frequency: models.FrequencyDaily,
			Interval:  1,
			StartDate: start,
		},
		Template: models.TaskTemplate{
			Title:       "Standup notes {date}",
			Description: "Prepared for {weekday}",
		},
		AutoCreateDaysAhead: 3,
		IsActive:            true,
	}
}

func TestMaterializer_RunOnce_CreatesWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	f := newMaterializerFixture(t, now)
	require.NoError(t, f.recurring.Save(ctx, dailyGenerator(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))))

	created, err := f.materializer.RunOnce(ctx)
	require.NoError(t, err)

	// Mar 2 through Mar 5 fall inside the three day lookahead.
	assert.Equal(t, 4, created)
	assert.Equal(t, 4, f.store.CreatedCount())

	generator, err := f.recurring.GetByID(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, 4, generator.CreatedInstances)
	require.NotNil(t, generator.NextOccurrence)
	assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), *generator.NextOccurrence)
	assert.True(t, generator.IsActive)

	published := f.capture.ByType(string(events.RecurringMaterializedEvent))
	assert.Len(t, published, 4)
}

func TestMaterializer_RunOnce_Idempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	f := newMaterializerFixture(t, now)
	require.NoError(t, f.recurring.Save(ctx, dailyGenerator(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))))

	created, err := f.materializer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, created)

	// Second run over the same window must not duplicate anything.
	created, err = f.materializer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Equal(t, 4, f.store.CreatedCount())
}

func TestMaterializer_ExcludedDatesSkipped(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	f := newMaterializerFixture(t, now)

	generator := dailyGenerator(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	generator.Pattern.ExcludedDates = []time.Time{time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, f.recurring.Save(ctx, generator))

	created, err := f.materializer.RunOnce(ctx)
	require.NoError(t, err)

	// Mar 3 is skipped but the cursor still advances past it.
	assert.Equal(t, 3, created)

	stored, err := f.recurring.GetByID(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.CreatedInstances)
	require.NotNil(t, stored.NextOccurrence)
	assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), *stored.NextOccurrence)
}

func TestMaterializer_ExcludedDateDoesNotConsumeBudget(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	f := newMaterializerFixture(t, now)

	generator := dailyGenerator(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	generator.Pattern.End = models.EndAfterCount
	generator.Pattern.MaxOccurrences = 2
	generator.Pattern.ExcludedDates = []time.Time{time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, f.recurring.Save(ctx, generator))

	created, err := f.materializer.RunOnce(ctx)
	require.NoError(t, err)

	// The excluded Mar 2 occurrence costs nothing, so Mar 3 and Mar 4
	// are both created before the count runs out.
	assert.Equal(t, 2, created)

	stored, err := f.recurring.GetByID(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CreatedInstances)
}

func TestMaterializer_DeactivatesExhaustedGenerator(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	f := newMaterializerFixture(t, now)

	generator := dailyGenerator(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	generator.Pattern.End = models.EndAfterCount
	generator.Pattern.MaxOccurrences = 2
	require.NoError(t, f.recurring.Save(ctx, generator))

	created, err := f.materializer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	stored, err := f.recurring.GetByID(ctx, "gen-1")
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Nil(t, stored.NextOccurrence)

	// Exhausted generators are no longer listed, so the next run is a
	// no-op.
	created, err = f.materializer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestMaterializer_FailedCreateAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	f := newMaterializerFixture(t, now)
	f.store.FailCreates = true

	require.NoError(t, f.recurring.Save(ctx, dailyGenerator(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))))

	created, err := f.materializer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)

	stored, err := f.recurring.GetByID(ctx, "gen-1")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.LastError)
	assert.Zero(t, stored.CreatedInstances)

	// The cursor moved past the whole window, so the same occurrences
	// are never retried forever.
	require.NotNil(t, stored.NextOccurrence)
	assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), *stored.NextOccurrence)
}

func TestMaterializer_MaterializeOne(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	f := newMaterializerFixture(t, now)
	require.NoError(t, f.recurring.Save(ctx, dailyGenerator(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))))

	created, err := f.materializer.MaterializeOne(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, 4, created)

	_, err = f.materializer.MaterializeOne(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))
}

func TestMaterializer_TemplateRendering(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	f := newMaterializerFixture(t, now)

	generator := dailyGenerator(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	generator.AutoCreateDaysAhead = 1
	require.NoError(t, f.recurring.Save(ctx, generator))

	created, err := f.materializer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	task, err := f.store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "Standup notes 2026-03-02", task.Title)
	assert.Equal(t, "Prepared for Monday", task.Description)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), *task.DueDate)
}
