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

// WorkflowInstanceRepository handles workflow instance database operations.
type WorkflowInstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowInstanceRepository creates a new workflow instance repository.
func NewWorkflowInstanceRepository(db *sql.DB, logger *slog.Logger) *WorkflowInstanceRepository {
	return &WorkflowInstanceRepository{db: db, logger: logger}
}

// Save upserts a workflow instance.
func (r *WorkflowInstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	now := time.Now().UTC()

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now

	if instance.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow instance ID: %w", err)
		}

		instance.ID = id.String()
	}

	activeStatesJSON, err := json.Marshal(instance.ActiveStates)
	if err != nil {
		return fmt.Errorf("failed to marshal active states: %w", err)
	}

	stateHistoryJSON, err := json.Marshal(instance.StateHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal state history: %w", err)
	}

	transitionHistoryJSON, err := json.Marshal(instance.TransitionHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal transition history: %w", err)
	}

	timeInStateJSON, err := json.Marshal(instance.TimeInState)
	if err != nil {
		return fmt.Errorf("failed to marshal time in state: %w", err)
	}

	query := `
		INSERT INTO workflow_instances (id, workflow_id, entity_type, entity_id, current_state_id,
			active_states, state_history, transition_history, time_in_state,
			entered_current_at, is_completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			current_state_id = EXCLUDED.current_state_id,
			active_states = EXCLUDED.active_states,
			state_history = EXCLUDED.state_history,
			transition_history = EXCLUDED.transition_history,
			time_in_state = EXCLUDED.time_in_state,
			entered_current_at = EXCLUDED.entered_current_at,
			is_completed = EXCLUDED.is_completed,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID,
		instance.WorkflowID,
		instance.EntityType,
		instance.EntityID,
		instance.CurrentStateID,
		activeStatesJSON,
		stateHistoryJSON,
		transitionHistoryJSON,
		timeInStateJSON,
		instance.EnteredCurrentAt,
		instance.IsCompleted,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewStorageError("Save", "workflow_instance", instance.ID, persistence.ErrInstanceAlreadyExists)
		}

		return persistence.NewStorageError("Save", "workflow_instance", instance.ID, err)
	}

	return nil
}

// GetByID returns a workflow instance by its id.
func (r *WorkflowInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	row := r.db.QueryRowContext(ctx, instanceSelect+" WHERE id = $1", id)

	instance, err := scanWorkflowInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStorageError("GetByID", "workflow_instance", id, persistence.ErrWorkflowInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
	}

	return instance, nil
}

// GetByEntity returns the workflow instance bound to an entity.
func (r *WorkflowInstanceRepository) GetByEntity(ctx context.Context, entityType, entityID string) (*models.WorkflowInstance, error) {
	row := r.db.QueryRowContext(ctx, instanceSelect+" WHERE entity_type = $1 AND entity_id = $2", entityType, entityID)

	instance, err := scanWorkflowInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStorageError("GetByEntity", "workflow_instance", entityID, persistence.ErrWorkflowInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
	}

	return instance, nil
}

// ListByWorkflow returns all instances of one workflow definition.
func (r *WorkflowInstanceRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx, instanceSelect+" WHERE workflow_id = $1 ORDER BY created_at", workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow instances: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanWorkflowInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow instances: %w", err)
	}

	return instances, nil
}

// Delete removes a workflow instance.
func (r *WorkflowInstanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflow_instances WHERE id = $1", id)
	if err != nil {
		return persistence.NewStorageError("Delete", "workflow_instance", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStorageError("Delete", "workflow_instance", id, persistence.ErrWorkflowInstanceNotFound)
	}

	return nil
}

const instanceSelect = `
	SELECT id, workflow_id, entity_type, entity_id, current_state_id,
		active_states, state_history, transition_history, time_in_state,
		entered_current_at, is_completed, created_at, updated_at
	FROM workflow_instances
`

func scanWorkflowInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var (
		instance              models.WorkflowInstance
		activeStatesJSON      []byte
		stateHistoryJSON      []byte
		transitionHistoryJSON []byte
		timeInStateJSON       []byte
	)

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowID,
		&instance.EntityType,
		&instance.EntityID,
		&instance.CurrentStateID,
		&activeStatesJSON,
		&stateHistoryJSON,
		&transitionHistoryJSON,
		&timeInStateJSON,
		&instance.EnteredCurrentAt,
		&instance.IsCompleted,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(activeStatesJSON, &instance.ActiveStates)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal active states: %w", err)
	}

	err = json.Unmarshal(stateHistoryJSON, &instance.StateHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal state history: %w", err)
	}

	err = json.Unmarshal(transitionHistoryJSON, &instance.TransitionHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal transition history: %w", err)
	}

	err = json.Unmarshal(timeInStateJSON, &instance.TimeInState)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal time in state: %w", err)
	}

	return &instance, nil
}
