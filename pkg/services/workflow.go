package services

import (
	"context"

	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/workflow"
)

// Workflow exposes workflow definition CRUD and the state machine to the
// API layer.
type Workflow struct {
	engine      *workflow.Engine
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(engine *workflow.Engine, p persistence.Persistence) *Workflow {
	return &Workflow{engine: engine, persistence: p}
}

// SaveDefinition validates and stores a workflow definition.
func (s *Workflow) SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if err := def.Validate(); err != nil {
		return nil, NewValidationError("SaveWorkflowDefinition", err.Error(), err)
	}

	if err := s.persistence.WorkflowDefinitions().Save(ctx, def); err != nil {
		return nil, err
	}

	return def, nil
}

// GetDefinition resolves one definition.
func (s *Workflow) GetDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return s.persistence.WorkflowDefinitions().GetByID(ctx, id)
}

// ListDefinitions returns all definitions.
func (s *Workflow) ListDefinitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return s.persistence.WorkflowDefinitions().List(ctx)
}

// DeleteDefinition removes a definition.
func (s *Workflow) DeleteDefinition(ctx context.Context, id string) error {
	return s.persistence.WorkflowDefinitions().Delete(ctx, id)
}

// Apply binds an entity to a workflow.
func (s *Workflow) Apply(ctx context.Context, workflowID, entityType, entityID, actorID string) (*models.WorkflowInstance, error) {
	if workflowID == "" || entityType == "" || entityID == "" {
		return nil, NewValidationError("ApplyWorkflow", "workflow_id, entity_type, and entity_id are required", nil)
	}

	return s.engine.Apply(ctx, workflowID, entityType, entityID, actorID)
}

// Transition advances an instance. Rejections come back as
// InvalidTransitionError with a reason.
func (s *Workflow) Transition(ctx context.Context, req workflow.TransitionRequest) (*models.WorkflowInstance, error) {
	if req.InstanceID == "" || req.ToStateID == "" {
		return nil, NewValidationError("Transition", "instance_id and to_state_id are required", nil)
	}

	return s.engine.Transition(ctx, req)
}

// GetInstance resolves one instance.
func (s *Workflow) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return s.persistence.WorkflowInstances().GetByID(ctx, id)
}

// GetInstanceByEntity resolves the instance bound to an entity.
func (s *Workflow) GetInstanceByEntity(ctx context.Context, entityType, entityID string) (*models.WorkflowInstance, error) {
	return s.persistence.WorkflowInstances().GetByEntity(ctx, entityType, entityID)
}

// Analytics summarizes one workflow's history.
func (s *Workflow) Analytics(ctx context.Context, workflowID string) (*workflow.Analytics, error) {
	return s.engine.Analytics(ctx, workflowID)
}
