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

// WorkflowDefinitionRepository handles workflow definition database
// operations. States and transitions are stored as JSONB documents on the
// definition row; the engine always loads a definition whole.
type WorkflowDefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowDefinitionRepository creates a new workflow definition repository.
func NewWorkflowDefinitionRepository(db *sql.DB, logger *slog.Logger) *WorkflowDefinitionRepository {
	return &WorkflowDefinitionRepository{db: db, logger: logger}
}

// Save upserts a workflow definition.
func (r *WorkflowDefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	if def.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow definition ID: %w", err)
		}

		def.ID = id.String()
	}

	statesJSON, err := json.Marshal(def.States)
	if err != nil {
		return fmt.Errorf("failed to marshal states: %w", err)
	}

	transitionsJSON, err := json.Marshal(def.Transitions)
	if err != nil {
		return fmt.Errorf("failed to marshal transitions: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (id, name, entity_type, states, transitions,
			allow_parallel_states, enforce_transitions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			entity_type = EXCLUDED.entity_type,
			states = EXCLUDED.states,
			transitions = EXCLUDED.transitions,
			allow_parallel_states = EXCLUDED.allow_parallel_states,
			enforce_transitions = EXCLUDED.enforce_transitions,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		def.ID,
		def.Name,
		def.EntityType,
		statesJSON,
		transitionsJSON,
		def.AllowParallelStates,
		def.EnforceTransitions,
		def.CreatedAt,
		def.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStorageError("Save", "workflow_definition", def.ID, err)
	}

	return nil
}

// GetByID returns a workflow definition by its id.
func (r *WorkflowDefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT id, name, entity_type, states, transitions,
			allow_parallel_states, enforce_transitions, created_at, updated_at
		FROM workflow_definitions
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	def, err := scanWorkflowDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStorageError("GetByID", "workflow_definition", id, persistence.ErrWorkflowDefinitionNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
	}

	return def, nil
}

// Delete removes a workflow definition.
func (r *WorkflowDefinitionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflow_definitions WHERE id = $1", id)
	if err != nil {
		return persistence.NewStorageError("Delete", "workflow_definition", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStorageError("Delete", "workflow_definition", id, persistence.ErrWorkflowDefinitionNotFound)
	}

	return nil
}

// List returns all workflow definitions.
func (r *WorkflowDefinitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT id, name, entity_type, states, transitions,
			allow_parallel_states, enforce_transitions, created_at, updated_at
		FROM workflow_definitions
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	defs := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		def, err := scanWorkflowDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}

		defs = append(defs, def)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow definitions: %w", err)
	}

	return defs, nil
}

func scanWorkflowDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		def             models.WorkflowDefinition
		statesJSON      []byte
		transitionsJSON []byte
	)

	err := row.Scan(
		&def.ID,
		&def.Name,
		&def.EntityType,
		&statesJSON,
		&transitionsJSON,
		&def.AllowParallelStates,
		&def.EnforceTransitions,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(statesJSON, &def.States)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal states: %w", err)
	}

	err = json.Unmarshal(transitionsJSON, &def.Transitions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal transitions: %w", err)
	}

	return &def, nil
}
