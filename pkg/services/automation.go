package services

import (
	"context"
	"time"

	"github.com/planfold/planfold/pkg/automation"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
)

// Automation exposes rule CRUD, execution, dry-run, and analytics to the
// API layer.
type Automation struct {
	engine      *automation.Engine
	persistence persistence.Persistence
}

// NewAutomation creates a new automation service.
func NewAutomation(engine *automation.Engine, p persistence.Persistence) *Automation {
	return &Automation{engine: engine, persistence: p}
}

// SaveRule validates and stores an automation rule.
func (s *Automation) SaveRule(ctx context.Context, rule *models.AutomationRule) (*models.AutomationRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, NewValidationError("SaveAutomationRule", err.Error(), err)
	}

	if err := s.persistence.AutomationRules().Save(ctx, rule); err != nil {
		return nil, err
	}

	return rule, nil
}

// GetRule resolves one rule.
func (s *Automation) GetRule(ctx context.Context, id string) (*models.AutomationRule, error) {
	return s.persistence.AutomationRules().GetByID(ctx, id)
}

// ListRules returns all rules.
func (s *Automation) ListRules(ctx context.Context) ([]*models.AutomationRule, error) {
	return s.persistence.AutomationRules().List(ctx)
}

// DeleteRule removes a rule.
func (s *Automation) DeleteRule(ctx context.Context, id string) error {
	return s.persistence.AutomationRules().Delete(ctx, id)
}

// Execute runs all matching rules for a firing event.
func (s *Automation) Execute(
	ctx context.Context,
	triggerType models.TriggerType,
	entityType, entityID string,
	triggerData map[string]any,
) ([]*models.AutomationLog, error) {
	if triggerType == "" || entityID == "" {
		return nil, NewValidationError("ExecuteRules", "trigger_type and entity_id are required", nil)
	}

	return s.engine.ExecuteRules(ctx, triggerType, entityType, entityID, triggerData)
}

// Test dry-runs one rule against a simulated event without mutating
// anything.
func (s *Automation) Test(
	ctx context.Context,
	ruleID string,
	triggerType models.TriggerType,
	entityType, entityID string,
	triggerData map[string]any,
) (*automation.TestResult, error) {
	if ruleID == "" || triggerType == "" {
		return nil, NewValidationError("TestRule", "rule_id and trigger_type are required", nil)
	}

	return s.engine.Test(ctx, ruleID, triggerType, entityType, entityID, triggerData)
}

// Analytics summarizes one rule's executions since the given instant. A
// zero since defaults to the last 30 days.
func (s *Automation) Analytics(ctx context.Context, ruleID string, since time.Time) (*automation.Analytics, error) {
	if since.IsZero() {
		since = time.Now().UTC().AddDate(0, 0, -30)
	}

	return s.engine.Analytics(ctx, ruleID, since)
}

// ListLogs returns a rule's execution logs since the given instant.
func (s *Automation) ListLogs(ctx context.Context, ruleID string, since time.Time) ([]*models.AutomationLog, error) {
	return s.persistence.AutomationLogs().ListByRule(ctx, ruleID, since)
}
