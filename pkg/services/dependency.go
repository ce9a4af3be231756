package services

import (
	"context"
	"errors"

	"github.com/planfold/planfold/pkg/graph"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
)

// Dependency exposes the dependency graph engine to the API layer.
type Dependency struct {
	engine      *graph.Engine
	persistence persistence.Persistence
}

// NewDependency creates a new dependency service.
func NewDependency(engine *graph.Engine, p persistence.Persistence) *Dependency {
	return &Dependency{engine: engine, persistence: p}
}

// HealthCheck checks the health of the persistence layer.
func (s *Dependency) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create inserts a new dependency edge. Model validation failures map to
// validation errors; cycle rejections and duplicates pass through as
// conflicts.
func (s *Dependency) Create(ctx context.Context, dep *models.Dependency) (*models.Dependency, error) {
	if err := dep.Validate(); err != nil {
		return nil, NewValidationError("CreateDependency", err.Error(), err)
	}

	err := s.engine.AddDependency(ctx, dep)
	if err != nil {
		if errors.Is(err, models.ErrInvalidDependencyType) ||
			errors.Is(err, models.ErrSelfDependency) ||
			errors.Is(err, models.ErrLagOutOfRange) ||
			errors.Is(err, models.ErrMissingTaskID) {
			return nil, NewValidationError("CreateDependency", err.Error(), err)
		}

		return nil, err
	}

	return dep, nil
}

// Get resolves one dependency by id.
func (s *Dependency) Get(ctx context.Context, id string) (*models.Dependency, error) {
	return s.engine.GetDependency(ctx, id)
}

// List returns a project's active dependencies.
func (s *Dependency) List(ctx context.Context, projectID string) ([]*models.Dependency, error) {
	if projectID == "" {
		return nil, NewValidationError("ListDependencies", "project_id is required", nil)
	}

	return s.engine.ListDependencies(ctx, projectID)
}

// Delete removes a dependency edge.
func (s *Dependency) Delete(ctx context.Context, id string) error {
	return s.engine.RemoveDependency(ctx, id)
}

// FindCycles returns all cycles in a project's scheduling subgraph.
func (s *Dependency) FindCycles(ctx context.Context, projectID string) ([][]string, error) {
	if projectID == "" {
		return nil, NewValidationError("FindCycles", "project_id is required", nil)
	}

	return s.engine.FindCycles(ctx, projectID)
}

// CriticalPath computes the CPM schedule for a project.
func (s *Dependency) CriticalPath(ctx context.Context, projectID string, durations map[string]int) (*graph.CriticalPathResult, error) {
	if projectID == "" {
		return nil, NewValidationError("CriticalPath", "project_id is required", nil)
	}

	return s.engine.CriticalPath(ctx, projectID, durations)
}

// Export returns the annotated project graph.
func (s *Dependency) Export(ctx context.Context, projectID string, durations map[string]int) (*graph.GraphExport, error) {
	if projectID == "" {
		return nil, NewValidationError("ExportGraph", "project_id is required", nil)
	}

	return s.engine.Export(ctx, projectID, durations)
}

// TaskCompleted reports a finished task so dependents can be unblocked.
func (s *Dependency) TaskCompleted(ctx context.Context, projectID, taskID string) error {
	if projectID == "" || taskID == "" {
		return NewValidationError("TaskCompleted", "project_id and task_id are required", nil)
	}

	return s.engine.TaskCompleted(ctx, projectID, taskID)
}
