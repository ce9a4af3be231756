// Package memory provides the in-memory persistence driver used in tests
// and embedded single-process deployments.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
)

// Persistence keeps every aggregate in mutex-guarded maps. All reads and
// writes deep-copy records so callers can never alias stored state; the
// graph engine's rollback guarantee depends on that.
type Persistence struct {
	dependencies *dependencyRepository
	definitions  *definitionRepository
	instances    *instanceRepository
	rules        *ruleRepository
	logs         *logRepository
	recurring    *recurringRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		dependencies: &dependencyRepository{records: make(map[string]*models.Dependency)},
		definitions:  &definitionRepository{records: make(map[string]*models.WorkflowDefinition)},
		instances:    &instanceRepository{records: make(map[string]*models.WorkflowInstance)},
		rules:        &ruleRepository{records: make(map[string]*models.AutomationRule)},
		logs:         &logRepository{records: make(map[string]*models.AutomationLog)},
		recurring:    &recurringRepository{records: make(map[string]*models.RecurringTask)},
	}
}

func (p *Persistence) Dependencies() persistence.DependencyRepository { return p.dependencies }

func (p *Persistence) WorkflowDefinitions() persistence.WorkflowDefinitionRepository {
	return p.definitions
}

func (p *Persistence) WorkflowInstances() persistence.WorkflowInstanceRepository {
	return p.instances
}

func (p *Persistence) AutomationRules() persistence.AutomationRuleRepository { return p.rules }
func (p *Persistence) AutomationLogs() persistence.AutomationLogRepository   { return p.logs }
func (p *Persistence) RecurringTasks() persistence.RecurringTaskRepository   { return p.recurring }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }
func (p *Persistence) Close(_ context.Context) error       { return nil }

// clone deep-copies a record through JSON. Every stored type marshals
// losslessly, so this keeps the repositories free of per-type copy code.
func clone[T any](in *T) *T {
	if in == nil {
		return nil
	}

	raw, err := json.Marshal(in)
	if err != nil {
		panic("memory persistence: unmarshalable record: " + err.Error())
	}

	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic("memory persistence: uncloneable record: " + err.Error())
	}

	return out
}

type dependencyRepository struct {
	mu      sync.RWMutex
	records map[string]*models.Dependency
}

func (r *dependencyRepository) Save(_ context.Context, dep *models.Dependency) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[dep.ID] = clone(dep)

	return nil
}

func (r *dependencyRepository) GetByID(_ context.Context, id string) (*models.Dependency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dep, ok := r.records[id]
	if !ok {
		return nil, persistence.NewStorageError("GetByID", "dependency", id, persistence.ErrDependencyNotFound)
	}

	return clone(dep), nil
}

func (r *dependencyRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return persistence.NewStorageError("Delete", "dependency", id, persistence.ErrDependencyNotFound)
	}

	delete(r.records, id)

	return nil
}

func (r *dependencyRepository) ListByProject(_ context.Context, projectID string) ([]*models.Dependency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deps := make([]*models.Dependency, 0)

	for _, dep := range r.records {
		if dep.ProjectID == projectID && dep.Active {
			deps = append(deps, clone(dep))
		}
	}

	return deps, nil
}

type definitionRepository struct {
	mu      sync.RWMutex
	records map[string]*models.WorkflowDefinition
}

func (r *definitionRepository) Save(_ context.Context, def *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[def.ID] = clone(def)

	return nil
}

func (r *definitionRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.records[id]
	if !ok {
		return nil, persistence.NewStorageError("GetByID", "workflow_definition", id, persistence.ErrWorkflowDefinitionNotFound)
	}

	return clone(def), nil
}

func (r *definitionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return persistence.NewStorageError("Delete", "workflow_definition", id, persistence.ErrWorkflowDefinitionNotFound)
	}

	delete(r.records, id)

	return nil
}

func (r *definitionRepository) List(_ context.Context) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*models.WorkflowDefinition, 0, len(r.records))
	for _, def := range r.records {
		defs = append(defs, clone(def))
	}

	return defs, nil
}

type instanceRepository struct {
	mu      sync.RWMutex
	records map[string]*models.WorkflowInstance
}

func (r *instanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[instance.ID] = clone(instance)

	return nil
}

func (r *instanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.records[id]
	if !ok {
		return nil, persistence.NewStorageError("GetByID", "workflow_instance", id, persistence.ErrWorkflowInstanceNotFound)
	}

	return clone(instance), nil
}

func (r *instanceRepository) GetByEntity(_ context.Context, entityType, entityID string) (*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, instance := range r.records {
		if instance.EntityType == entityType && instance.EntityID == entityID {
			return clone(instance), nil
		}
	}

	return nil, persistence.NewStorageError("GetByEntity", "workflow_instance", entityID, persistence.ErrWorkflowInstanceNotFound)
}

func (r *instanceRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]*models.WorkflowInstance, 0)

	for _, instance := range r.records {
		if instance.WorkflowID == workflowID {
			instances = append(instances, clone(instance))
		}
	}

	return instances, nil
}

func (r *instanceRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return persistence.NewStorageError("Delete", "workflow_instance", id, persistence.ErrWorkflowInstanceNotFound)
	}

	delete(r.records, id)

	return nil
}

type ruleRepository struct {
	mu      sync.RWMutex
	records map[string]*models.AutomationRule
}

func (r *ruleRepository) Save(_ context.Context, rule *models.AutomationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rule.ID] = clone(rule)

	return nil
}

func (r *ruleRepository) GetByID(_ context.Context, id string) (*models.AutomationRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.records[id]
	if !ok {
		return nil, persistence.NewStorageError("GetByID", "automation_rule", id, persistence.ErrAutomationRuleNotFound)
	}

	return clone(rule), nil
}

func (r *ruleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return persistence.NewStorageError("Delete", "automation_rule", id, persistence.ErrAutomationRuleNotFound)
	}

	delete(r.records, id)

	return nil
}

func (r *ruleRepository) List(_ context.Context) ([]*models.AutomationRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]*models.AutomationRule, 0, len(r.records))
	for _, rule := range r.records {
		rules = append(rules, clone(rule))
	}

	return rules, nil
}

func (r *ruleRepository) ListByTriggerType(_ context.Context, triggerType models.TriggerType) ([]*models.AutomationRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]*models.AutomationRule, 0)

	for _, rule := range r.records {
		if !rule.IsActive {
			continue
		}

		for i := range rule.Triggers {
			if rule.Triggers[i].Type == triggerType {
				rules = append(rules, clone(rule))

				break
			}
		}
	}

	return rules, nil
}

type logRepository struct {
	mu      sync.RWMutex
	records map[string]*models.AutomationLog
}

func (r *logRepository) Save(_ context.Context, log *models.AutomationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[log.ID] = clone(log)

	return nil
}

func (r *logRepository) GetByID(_ context.Context, id string) (*models.AutomationLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log, ok := r.records[id]
	if !ok {
		return nil, persistence.NewStorageError("GetByID", "automation_log", id, persistence.ErrAutomationLogNotFound)
	}

	return clone(log), nil
}

func (r *logRepository) ListByRule(_ context.Context, ruleID string, since time.Time) ([]*models.AutomationLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := make([]*models.AutomationLog, 0)

	for _, log := range r.records {
		if log.RuleID == ruleID && !log.StartedAt.Before(since) {
			logs = append(logs, clone(log))
		}
	}

	return logs, nil
}

func (r *logRepository) CountForRuleSince(_ context.Context, ruleID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0

	for _, log := range r.records {
		if log.RuleID == ruleID && !log.StartedAt.Before(since) && log.CountsTowardDailyLimit() {
			count++
		}
	}

	return count, nil
}

type recurringRepository struct {
	mu      sync.RWMutex
	records map[string]*models.RecurringTask
}

func (r *recurringRepository) Save(_ context.Context, task *models.RecurringTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[task.ID] = clone(task)

	return nil
}

func (r *recurringRepository) GetByID(_ context.Context, id string) (*models.RecurringTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.records[id]
	if !ok {
		return nil, persistence.NewStorageError("GetByID", "recurring_task", id, persistence.ErrRecurringTaskNotFound)
	}

	return clone(task), nil
}

func (r *recurringRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return persistence.NewStorageError("Delete", "recurring_task", id, persistence.ErrRecurringTaskNotFound)
	}

	delete(r.records, id)

	return nil
}

func (r *recurringRepository) List(_ context.Context) ([]*models.RecurringTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]*models.RecurringTask, 0, len(r.records))
	for _, task := range r.records {
		tasks = append(tasks, clone(task))
	}

	return tasks, nil
}

func (r *recurringRepository) ListActive(_ context.Context) ([]*models.RecurringTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]*models.RecurringTask, 0)

	for _, task := range r.records {
		if task.IsActive {
			tasks = append(tasks, clone(task))
		}
	}

	return tasks, nil
}
