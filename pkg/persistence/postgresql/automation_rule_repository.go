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

	"github.com/planfold/planfold/pkg/conditions"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
)

// AutomationRuleRepository handles automation rule database operations.
type AutomationRuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAutomationRuleRepository creates a new automation rule repository.
func NewAutomationRuleRepository(db *sql.DB, logger *slog.Logger) *AutomationRuleRepository {
	return &AutomationRuleRepository{db: db, logger: logger}
}

// Save upserts an automation rule.
func (r *AutomationRuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	now := time.Now().UTC()

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	if rule.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate automation rule ID: %w", err)
		}

		rule.ID = id.String()
	}

	triggersJSON, err := json.Marshal(rule.Triggers)
	if err != nil {
		return fmt.Errorf("failed to marshal triggers: %w", err)
	}

	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	scopeJSON, err := json.Marshal(rule.Scope)
	if err != nil {
		return fmt.Errorf("failed to marshal scope: %w", err)
	}

	query := `
		INSERT INTO automation_rules (id, name, description, triggers, trigger_logic,
			conditions, condition_logic, actions, scope, max_executions_per_day,
			is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			triggers = EXCLUDED.triggers,
			trigger_logic = EXCLUDED.trigger_logic,
			conditions = EXCLUDED.conditions,
			condition_logic = EXCLUDED.condition_logic,
			actions = EXCLUDED.actions,
			scope = EXCLUDED.scope,
			max_executions_per_day = EXCLUDED.max_executions_per_day,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		triggersJSON,
		string(rule.TriggerLogic),
		conditionsJSON,
		string(rule.ConditionLogic),
		actionsJSON,
		scopeJSON,
		rule.MaxExecutionsPerDay,
		rule.IsActive,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStorageError("Save", "automation_rule", rule.ID, err)
	}

	return nil
}

// GetByID returns an automation rule by its id.
func (r *AutomationRuleRepository) GetByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	row := r.db.QueryRowContext(ctx, ruleSelect+" WHERE id = $1", id)

	rule, err := scanAutomationRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStorageError("GetByID", "automation_rule", id, persistence.ErrAutomationRuleNotFound)
		}

		return nil, fmt.Errorf("failed to scan automation rule: %w", err)
	}

	return rule, nil
}

// Delete removes an automation rule.
func (r *AutomationRuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automation_rules WHERE id = $1", id)
	if err != nil {
		return persistence.NewStorageError("Delete", "automation_rule", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStorageError("Delete", "automation_rule", id, persistence.ErrAutomationRuleNotFound)
	}

	return nil
}

// List returns all automation rules.
func (r *AutomationRuleRepository) List(ctx context.Context) ([]*models.AutomationRule, error) {
	return r.queryRules(ctx, ruleSelect+" ORDER BY created_at DESC")
}

// ListByTriggerType returns active rules that declare a trigger of the given
// type. The JSONB containment check keeps the filter in the database.
func (r *AutomationRuleRepository) ListByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.AutomationRule, error) {
	query := ruleSelect + `
		WHERE is_active
		  AND triggers @> $1::jsonb
		ORDER BY created_at
	`

	match, err := json.Marshal([]map[string]any{{"type": string(triggerType)}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger filter: %w", err)
	}

	return r.queryRules(ctx, query, match)
}

func (r *AutomationRuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]*models.AutomationRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation rules: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	rules := make([]*models.AutomationRule, 0)

	for rows.Next() {
		rule, err := scanAutomationRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation rule: %w", err)
		}

		rules = append(rules, rule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automation rules: %w", err)
	}

	return rules, nil
}

const ruleSelect = `
	SELECT id, name, description, triggers, trigger_logic,
		conditions, condition_logic, actions, scope, max_executions_per_day,
		is_active, created_at, updated_at
	FROM automation_rules
`

func scanAutomationRule(row rowScanner) (*models.AutomationRule, error) {
	var (
		rule           models.AutomationRule
		triggersJSON   []byte
		conditionsJSON []byte
		actionsJSON    []byte
		scopeJSON      []byte
		triggerLogic   string
		conditionLogic string
	)

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&triggersJSON,
		&triggerLogic,
		&conditionsJSON,
		&conditionLogic,
		&actionsJSON,
		&scopeJSON,
		&rule.MaxExecutionsPerDay,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.TriggerLogic = conditions.Logic(triggerLogic)
	rule.ConditionLogic = conditions.Logic(conditionLogic)

	err = json.Unmarshal(triggersJSON, &rule.Triggers)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal triggers: %w", err)
	}

	err = json.Unmarshal(conditionsJSON, &rule.Conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	err = json.Unmarshal(actionsJSON, &rule.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	err = json.Unmarshal(scopeJSON, &rule.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal scope: %w", err)
	}

	return &rule, nil
}
