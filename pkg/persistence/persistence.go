// Package persistence abstracts storage for the flow engine aggregates:
// dependencies, workflow definitions and instances, automation rules and
// logs, and recurring tasks.
package persistence

import (
	"context"
	"time"

	"github.com/planfold/planfold/pkg/models"
)

type Persistence interface {
	Dependencies() DependencyRepository
	WorkflowDefinitions() WorkflowDefinitionRepository
	WorkflowInstances() WorkflowInstanceRepository
	AutomationRules() AutomationRuleRepository
	AutomationLogs() AutomationLogRepository
	RecurringTasks() RecurringTaskRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type DependencyRepository interface {
	Save(ctx context.Context, dep *models.Dependency) error
	GetByID(ctx context.Context, id string) (*models.Dependency, error)
	Delete(ctx context.Context, id string) error

	// ListByProject returns all active dependencies of one project. The
	// result is a snapshot: mutating it never affects stored state.
	ListByProject(ctx context.Context, projectID string) ([]*models.Dependency, error)
}

type WorkflowDefinitionRepository interface {
	Save(ctx context.Context, def *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.WorkflowDefinition, error)
}

type WorkflowInstanceRepository interface {
	Save(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	GetByEntity(ctx context.Context, entityType, entityID string) (*models.WorkflowInstance, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowInstance, error)
	Delete(ctx context.Context, id string) error
}

type AutomationRuleRepository interface {
	Save(ctx context.Context, rule *models.AutomationRule) error
	GetByID(ctx context.Context, id string) (*models.AutomationRule, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.AutomationRule, error)

	// ListByTriggerType returns active rules having at least one trigger of
	// the given type.
	ListByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.AutomationRule, error)
}

type AutomationLogRepository interface {
	Save(ctx context.Context, log *models.AutomationLog) error
	GetByID(ctx context.Context, id string) (*models.AutomationLog, error)
	ListByRule(ctx context.Context, ruleID string, since time.Time) ([]*models.AutomationLog, error)

	// CountForRuleSince counts logs that consume the rule's daily budget
	// (running, success, failed) created at or after since.
	CountForRuleSince(ctx context.Context, ruleID string, since time.Time) (int, error)
}

type RecurringTaskRepository interface {
	Save(ctx context.Context, task *models.RecurringTask) error
	GetByID(ctx context.Context, id string) (*models.RecurringTask, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.RecurringTask, error)
	ListActive(ctx context.Context) ([]*models.RecurringTask, error)
}
