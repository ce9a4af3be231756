package services

import (
	"context"
	"time"

	"github.com/planfold/planfold/pkg/materializer"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/recurrence"
)

// Recurrence exposes recurring-task CRUD, pattern preview, and manual
// materialization to the API layer.
type Recurrence struct {
	materializer *materializer.Materializer
	persistence  persistence.Persistence
}

// NewRecurrence creates a new recurrence service.
func NewRecurrence(m *materializer.Materializer, p persistence.Persistence) *Recurrence {
	return &Recurrence{materializer: m, persistence: p}
}

// SaveRecurringTask validates and stores a generator, seeding its cursor at
// the first occurrence of the pattern.
func (s *Recurrence) SaveRecurringTask(ctx context.Context, task *models.RecurringTask) (*models.RecurringTask, error) {
	if err := task.Validate(); err != nil {
		return nil, NewValidationError("SaveRecurringTask", err.Error(), err)
	}

	if task.NextOccurrence == nil {
		next, err := recurrence.NextOccurrence(task.Pattern, task.Pattern.StartDate.Add(-time.Second), task.CreatedInstances)
		if err != nil {
			return nil, NewValidationError("SaveRecurringTask", err.Error(), err)
		}

		task.NextOccurrence = next
	}

	if err := s.persistence.RecurringTasks().Save(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

// GetRecurringTask resolves one generator.
func (s *Recurrence) GetRecurringTask(ctx context.Context, id string) (*models.RecurringTask, error) {
	return s.persistence.RecurringTasks().GetByID(ctx, id)
}

// ListRecurringTasks returns all generators.
func (s *Recurrence) ListRecurringTasks(ctx context.Context) ([]*models.RecurringTask, error) {
	return s.persistence.RecurringTasks().List(ctx)
}

// DeleteRecurringTask removes a generator. Already-created instances are
// independent tasks and stay untouched.
func (s *Recurrence) DeleteRecurringTask(ctx context.Context, id string) error {
	return s.persistence.RecurringTasks().Delete(ctx, id)
}

// Preview returns the next count occurrences of a pattern from start.
// Excluded dates are included in the result, flagged, not dropped.
func (s *Recurrence) Preview(ctx context.Context, pattern models.RecurrencePattern, start time.Time, count int) ([]recurrence.PreviewItem, error) {
	if count <= 0 || count > 100 {
		return nil, NewValidationError("PreviewRecurrence", "count must be within 1-100", nil)
	}

	items, err := recurrence.Preview(pattern, start, count)
	if err != nil {
		return nil, NewValidationError("PreviewRecurrence", err.Error(), err)
	}

	return items, nil
}

// MaterializeNow manually triggers one materialization run. With a
// generator id only that generator runs; empty runs all active ones.
func (s *Recurrence) MaterializeNow(ctx context.Context, generatorID string) (int, error) {
	if generatorID != "" {
		return s.materializer.MaterializeOne(ctx, generatorID)
	}

	return s.materializer.RunOnce(ctx)
}
