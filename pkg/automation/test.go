package automation

import (
	"context"
	"fmt"

	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/protocol"
)

// TestResult reports what a rule would do for a simulated event. Nothing is
// mutated and no log is persisted.
type TestResult struct {
	RuleID            string                  `json:"rule_id"`
	InScope           bool                    `json:"in_scope"`
	TriggersMatched   bool                    `json:"triggers_matched"`
	ConditionsMatched bool                    `json:"conditions_matched"`
	WouldExecute      bool                    `json:"would_execute"`
	Actions           []protocol.ChangeRecord `json:"actions,omitempty"`
}

// Test dry-runs one rule against a simulated trigger. Actions execute with
// DryRun set, so they report their change records without touching the
// task store or the notification sink.
func (e *Engine) Test(
	ctx context.Context,
	ruleID string,
	triggerType models.TriggerType,
	entityType, entityID string,
	triggerData map[string]any,
) (*TestResult, error) {
	rule, err := e.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	task := e.entityTask(ctx, entityType, entityID)
	fields := e.entityFieldMap(task, triggerData)

	result := &TestResult{RuleID: rule.ID, InScope: true}

	if task != nil && !rule.Scope.Includes(task.ProjectID, task.BoardID) {
		result.InScope = false

		return result, nil
	}

	result.TriggersMatched = rule.MatchesTriggers(triggerType, triggerData)
	if !result.TriggersMatched {
		return result, nil
	}

	matched, err := e.evaluator.EvaluateAll(rule.Conditions, rule.ConditionLogic, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate rule conditions: %w", err)
	}

	result.ConditionsMatched = matched
	if !matched {
		return result, nil
	}

	result.WouldExecute = true

	execCtx := protocol.ExecutionContext{
		EntityType:  entityType,
		EntityID:    entityID,
		TriggerType: string(triggerType),
		TriggerData: triggerData,
		DryRun:      true,
	}

	for _, spec := range rule.Actions {
		record, err := e.executeAction(ctx, spec, execCtx, e.logger)
		if err != nil {
			result.Actions = append(result.Actions, protocol.ChangeRecord{
				ActionType: spec.Type,
				Error:      err.Error(),
			})

			if spec.StopOnError {
				break
			}

			continue
		}

		if record != nil {
			result.Actions = append(result.Actions, *record)
		}
	}

	return result, nil
}
