package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
)

// RecurringTaskRepository handles recurring task database operations.
type RecurringTaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecurringTaskRepository creates a new recurring task repository.
func NewRecurringTaskRepository(db *sql.DB, logger *slog.Logger) *RecurringTaskRepository {
	return &RecurringTaskRepository{db: db, logger: logger}
}

// Save upserts a recurring task generator.
func (r *RecurringTaskRepository) Save(ctx context.Context, task *models.RecurringTask) error {
	now := time.Now().UTC()

	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	task.UpdatedAt = now

	if task.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate recurring task ID: %w", err)
		}

		task.ID = id.String()
	}

	patternJSON, err := json.Marshal(task.Pattern)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern: %w", err)
	}

	templateJSON, err := json.Marshal(task.Template)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	var nextOccurrence sql.NullTime
	if task.NextOccurrence != nil {
		nextOccurrence = sql.NullTime{Time: *task.NextOccurrence, Valid: true}
	}

	query := `
		INSERT INTO recurring_tasks (id, project_id, pattern, template, next_occurrence,
			created_instances, auto_create_days_ahead, is_active, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			pattern = EXCLUDED.pattern,
			template = EXCLUDED.template,
			next_occurrence = EXCLUDED.next_occurrence,
			created_instances = EXCLUDED.created_instances,
			auto_create_days_ahead = EXCLUDED.auto_create_days_ahead,
			is_active = EXCLUDED.is_active,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		task.ID,
		task.ProjectID,
		patternJSON,
		templateJSON,
		nextOccurrence,
		task.CreatedInstances,
		task.AutoCreateDaysAhead,
		task.IsActive,
		task.LastError,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStorageError("Save", "recurring_task", task.ID, err)
	}

	return nil
}

// GetByID returns a recurring task by its id.
func (r *RecurringTaskRepository) GetByID(ctx context.Context, id string) (*models.RecurringTask, error) {
	row := r.db.QueryRowContext(ctx, recurringSelect+" WHERE id = $1", id)

	task, err := scanRecurringTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStorageError("GetByID", "recurring_task", id, persistence.ErrRecurringTaskNotFound)
		}

		return nil, fmt.Errorf("failed to scan recurring task: %w", err)
	}

	return task, nil
}

// Delete removes a recurring task generator.
func (r *RecurringTaskRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM recurring_tasks WHERE id = $1", id)
	if err != nil {
		return persistence.NewStorageError("Delete", "recurring_task", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStorageError("Delete", "recurring_task", id, persistence.ErrRecurringTaskNotFound)
	}

	return nil
}

// List returns all recurring tasks.
func (r *RecurringTaskRepository) List(ctx context.Context) ([]*models.RecurringTask, error) {
	return r.queryTasks(ctx, recurringSelect+" ORDER BY created_at DESC")
}

// ListActive returns active generators ordered by next due date, soonest
// first, so the materializer processes overdue generators before future
// ones.
func (r *RecurringTaskRepository) ListActive(ctx context.Context) ([]*models.RecurringTask, error) {
	return r.queryTasks(ctx, recurringSelect+" WHERE is_active ORDER BY next_occurrence NULLS LAST")
}

func (r *RecurringTaskRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*models.RecurringTask, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring tasks: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	tasks := make([]*models.RecurringTask, 0)

	for rows.Next() {
		task, err := scanRecurringTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recurring task: %w", err)
		}

		tasks = append(tasks, task)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating recurring tasks: %w", err)
	}

	return tasks, nil
}

const recurringSelect = `
	SELECT id, project_id, pattern, template, next_occurrence,
		created_instances, auto_create_days_ahead, is_active, last_error, created_at, updated_at
	FROM recurring_tasks
`

func scanRecurringTask(row rowScanner) (*models.RecurringTask, error) {
	var (
		task           models.RecurringTask
		patternJSON    []byte
		templateJSON   []byte
		nextOccurrence sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.ProjectID,
		&patternJSON,
		&templateJSON,
		&nextOccurrence,
		&task.CreatedInstances,
		&task.AutoCreateDaysAhead,
		&task.IsActive,
		&task.LastError,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if nextOccurrence.Valid {
		next := nextOccurrence.Time
		task.NextOccurrence = &next
	}

	err = json.Unmarshal(patternJSON, &task.Pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal pattern: %w", err)
	}

	err = json.Unmarshal(templateJSON, &task.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}

	return &task, nil
}
