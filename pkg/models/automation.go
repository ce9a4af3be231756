package models

import (
	"errors"
	"time"

	"github.com/planfold/planfold/pkg/conditions"
)

// TriggerType names a domain event an automation rule can fire on.
type TriggerType string

const (
	TriggerTaskCreated           TriggerType = "task.created"
	TriggerTaskUpdated           TriggerType = "task.updated"
	TriggerTaskStatusChanged     TriggerType = "task.status_changed"
	TriggerTaskAssigned          TriggerType = "task.assigned"
	TriggerTaskDue               TriggerType = "task.due"
	TriggerDependencyCreated     TriggerType = "dependency.created"
	TriggerDependencyCompleted   TriggerType = "dependency.completed"
	TriggerStateEntered          TriggerType = "workflow.state_entered"
	TriggerWorkflowCompleted     TriggerType = "workflow.completed"
	TriggerRecurringMaterialized TriggerType = "recurring.materialized"
)

// RuleTrigger matches a firing event. The type must equal the firing type;
// every filter present must equal the corresponding trigger-data value.
type RuleTrigger struct {
	Type    TriggerType    `json:"type" validate:"required"`
	Filters map[string]any `json:"filters,omitempty"`
}

// Matches reports whether this trigger accepts the firing event.
func (t *RuleTrigger) Matches(firing TriggerType, data map[string]any) bool {
	if t.Type != firing {
		return false
	}

	for key, want := range t.Filters {
		got, ok := data[key]
		if !ok {
			return false
		}

		if !conditions.FromAny(got).Equal(conditions.FromAny(want)) {
			return false
		}
	}

	return true
}

// RuleScope restricts a rule to projects/boards. Empty lists mean no
// restriction on that axis.
type RuleScope struct {
	ProjectIDs       []string `json:"project_ids,omitempty"`
	BoardIDs         []string `json:"board_ids,omitempty"`
	IncludeSubtasks  bool     `json:"include_subtasks"`
}

// Includes reports whether the entity identified by the given project and
// board falls inside the scope.
func (s *RuleScope) Includes(projectID, boardID string) bool {
	if len(s.ProjectIDs) > 0 && !containsString(s.ProjectIDs, projectID) {
		return false
	}

	if len(s.BoardIDs) > 0 && !containsString(s.BoardIDs, boardID) {
		return false
	}

	return true
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}

	return false
}

var (
	ErrRuleNoTriggers = errors.New("automation rule requires at least one trigger")
	ErrRuleNoActions  = errors.New("automation rule requires at least one action")
)

// AutomationRule is a trigger+condition+action automation.
type AutomationRule struct {
	ID                  string                 `json:"id"`
	Name                string                 `json:"name" validate:"required,min=3"`
	Description         string                 `json:"description,omitempty"`
	Triggers            []RuleTrigger          `json:"triggers"`
	TriggerLogic        conditions.Logic       `json:"trigger_logic,omitempty"`
	Conditions          []conditions.Condition `json:"conditions,omitempty"`
	ConditionLogic      conditions.Logic       `json:"condition_logic,omitempty"`
	Actions             []ActionSpec           `json:"actions"`
	Scope               RuleScope              `json:"scope"`
	MaxExecutionsPerDay int                    `json:"max_executions_per_day,omitempty"`
	IsActive            bool                   `json:"is_active"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

func (r *AutomationRule) Validate() error {
	if len(r.Triggers) == 0 {
		return ErrRuleNoTriggers
	}

	if len(r.Actions) == 0 {
		return ErrRuleNoActions
	}

	return nil
}

// MatchesTriggers combines per-trigger matches with the rule's trigger
// logic.
func (r *AutomationRule) MatchesTriggers(firing TriggerType, data map[string]any) bool {
	switch r.TriggerLogic {
	case conditions.LogicAnd:
		for i := range r.Triggers {
			if !r.Triggers[i].Matches(firing, data) {
				return false
			}
		}

		return true
	default: // OR is the default for triggers
		for i := range r.Triggers {
			if r.Triggers[i].Matches(firing, data) {
				return true
			}
		}

		return false
	}
}

// LogStatus is the lifecycle state of one rule execution record.
type LogStatus string

const (
	LogPending LogStatus = "pending"
	LogRunning LogStatus = "running"
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
	LogSkipped LogStatus = "skipped"
)

// ChangeRecord mirrors protocol.ChangeRecord for persisted logs.
type ChangeRecord struct {
	ActionType string         `json:"action_type"`
	Detail     map[string]any `json:"detail,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// AutomationLog is the immutable record of one rule execution attempt.
type AutomationLog struct {
	ID              string         `json:"id"`
	RuleID          string         `json:"rule_id"`
	TriggerType     TriggerType    `json:"trigger_type"`
	EntityType      string         `json:"entity_type"`
	EntityID        string         `json:"entity_id"`
	Status          LogStatus      `json:"status"`
	ActionsExecuted int            `json:"actions_executed"`
	Changes         []ChangeRecord `json:"changes,omitempty"`
	Error           string         `json:"error,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at,omitempty"`
}

// CountsTowardDailyLimit reports whether this log consumes the rule's daily
// execution budget. Skipped evaluations are free.
func (l *AutomationLog) CountsTowardDailyLimit() bool {
	switch l.Status {
	case LogRunning, LogSuccess, LogFailed:
		return true
	case LogPending, LogSkipped:
		return false
	default:
		return false
	}
}
