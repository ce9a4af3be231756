package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
)

// DependencyRepository handles dependency edge database operations.
type DependencyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDependencyRepository creates a new dependency repository.
func NewDependencyRepository(db *sql.DB, logger *slog.Logger) *DependencyRepository {
	return &DependencyRepository{db: db, logger: logger}
}

// Save upserts a dependency edge.
func (r *DependencyRepository) Save(ctx context.Context, dep *models.Dependency) error {
	if dep.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate dependency ID: %w", err)
		}

		dep.ID = id.String()
	}

	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO dependencies (id, project_id, source_task_id, target_task_id, dependency_type, lag_days, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			dependency_type = EXCLUDED.dependency_type,
			lag_days = EXCLUDED.lag_days,
			active = EXCLUDED.active
	`

	_, err := r.db.ExecContext(ctx, query,
		dep.ID,
		dep.ProjectID,
		dep.SourceTaskID,
		dep.TargetTaskID,
		dep.Type,
		dep.LagDays,
		dep.Active,
		dep.CreatedAt,
	)
	if err != nil {
		return persistence.NewStorageError("Save", "dependency", dep.ID, err)
	}

	return nil
}

// GetByID returns a dependency by its id.
func (r *DependencyRepository) GetByID(ctx context.Context, id string) (*models.Dependency, error) {
	query := `
		SELECT id, project_id, source_task_id, target_task_id, dependency_type, lag_days, active, created_at
		FROM dependencies
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	dep, err := scanDependency(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStorageError("GetByID", "dependency", id, persistence.ErrDependencyNotFound)
		}

		return nil, fmt.Errorf("failed to scan dependency: %w", err)
	}

	return dep, nil
}

// Delete removes a dependency edge.
func (r *DependencyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM dependencies WHERE id = $1", id)
	if err != nil {
		return persistence.NewStorageError("Delete", "dependency", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStorageError("Delete", "dependency", id, persistence.ErrDependencyNotFound)
	}

	return nil
}

// ListByProject returns all active dependencies of a project.
func (r *DependencyRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Dependency, error) {
	query := `
		SELECT id, project_id, source_task_id, target_task_id, dependency_type, lag_days, active, created_at
		FROM dependencies
		WHERE project_id = $1 AND active
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	deps := make([]*models.Dependency, 0)

	for rows.Next() {
		dep, err := scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}

		deps = append(deps, dep)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}

	return deps, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDependency(row rowScanner) (*models.Dependency, error) {
	var dep models.Dependency

	err := row.Scan(
		&dep.ID,
		&dep.ProjectID,
		&dep.SourceTaskID,
		&dep.TargetTaskID,
		&dep.Type,
		&dep.LagDays,
		&dep.Active,
		&dep.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &dep, nil
}
