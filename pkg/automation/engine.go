// Package automation evaluates trigger+condition+action rules against
// domain events and records every attempt in an immutable execution log.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/planfold/planfold/pkg/cache"
	"github.com/planfold/planfold/pkg/conditions"
	"github.com/planfold/planfold/pkg/eventbus"
	"github.com/planfold/planfold/pkg/events"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/otelhelper"
	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/protocol"
	"github.com/planfold/planfold/pkg/registry"
)

const dailyCountCachePrefix = "automation:daily:"
const dailyCountCacheTTL = time.Minute

// Engine executes automation rules. Independent rules triggered by the
// same event run concurrently; each rule's actions run sequentially.
type Engine struct {
	rules     persistence.AutomationRuleRepository
	logs      persistence.AutomationLogRepository
	tasks     protocol.TaskStore
	registry  *registry.Registry
	evaluator *conditions.Evaluator
	publisher eventbus.EventPublisher
	cache     cache.Cache
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewEngine creates an automation engine. publisher, dailyCache, and tracer
// may be nil.
func NewEngine(
	rules persistence.AutomationRuleRepository,
	logs persistence.AutomationLogRepository,
	tasks protocol.TaskStore,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	dailyCache cache.Cache,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		rules:     rules,
		logs:      logs,
		tasks:     tasks,
		registry:  reg,
		evaluator: conditions.NewEvaluator(),
		publisher: publisher,
		cache:     dailyCache,
		tracer:    tracer,
		logger:    logger.With("module", "automation"),
	}
}

// ExecuteRules runs every active rule indexed on the firing trigger type.
// Scope exclusions and exhausted daily budgets skip a rule without a log;
// everything past that point is recorded.
func (e *Engine) ExecuteRules(
	ctx context.Context,
	triggerType models.TriggerType,
	entityType, entityID string,
	triggerData map[string]any,
) ([]*models.AutomationLog, error) {
	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "automation.execute_rules",
			attribute.String(otelhelper.TriggerTypeKey, string(triggerType)),
			attribute.String(otelhelper.EntityTypeKey, entityType),
			attribute.String(otelhelper.EntityIDKey, entityID),
		)
		defer span.End()
	}

	rules, err := e.rules.ListByTriggerType(ctx, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for trigger %q: %w", triggerType, err)
	}

	task := e.entityTask(ctx, entityType, entityID)
	fields := e.entityFieldMap(task, triggerData)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*models.AutomationLog
	)

	for _, rule := range rules {
		wg.Add(1)

		go func(rule *models.AutomationRule) {
			defer wg.Done()

			log := e.executeRule(ctx, rule, triggerType, entityType, entityID, triggerData, task, fields)
			if log != nil {
				mu.Lock()
				results = append(results, log)
				mu.Unlock()
			}
		}(rule)
	}

	wg.Wait()

	return results, nil
}

func (e *Engine) executeRule(
	ctx context.Context,
	rule *models.AutomationRule,
	triggerType models.TriggerType,
	entityType, entityID string,
	triggerData map[string]any,
	task *protocol.TaskRecord,
	fields map[string]any,
) *models.AutomationLog {
	logger := e.logger.With("rule_id", rule.ID, "trigger_type", triggerType)

	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "automation.execute_rule",
			attribute.String(otelhelper.RuleIDKey, rule.ID),
			attribute.String(otelhelper.TriggerTypeKey, string(triggerType)),
		)
		defer span.End()
	}

	if task != nil && !rule.Scope.Includes(task.ProjectID, task.BoardID) {
		logger.DebugContext(ctx, "rule out of scope", "project_id", task.ProjectID)

		return nil
	}

	if rule.MaxExecutionsPerDay > 0 {
		count, err := e.countToday(ctx, rule.ID)
		if err != nil {
			logger.ErrorContext(ctx, "failed to count rule executions", "error", err)

			return nil
		}

		if count >= rule.MaxExecutionsPerDay {
			logger.InfoContext(ctx, "rule daily execution limit reached", "limit", rule.MaxExecutionsPerDay)

			return nil
		}
	}

	log := &models.AutomationLog{
		ID:          uuid.New().String(),
		RuleID:      rule.ID,
		TriggerType: triggerType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      models.LogPending,
		StartedAt:   time.Now().UTC(),
	}

	if err := e.logs.Save(ctx, log); err != nil {
		logger.ErrorContext(ctx, "failed to save pending log", "error", err)

		return nil
	}

	if !rule.MatchesTriggers(triggerType, triggerData) {
		e.finishLog(ctx, log, models.LogSkipped, "")

		return log
	}

	matched, err := e.evaluator.EvaluateAll(rule.Conditions, rule.ConditionLogic, fields)
	if err != nil {
		e.finishLog(ctx, log, models.LogFailed, fmt.Sprintf("condition evaluation: %v", err))

		return log
	}

	if !matched {
		e.finishLog(ctx, log, models.LogSkipped, "")

		return log
	}

	log.Status = models.LogRunning
	if err := e.logs.Save(ctx, log); err != nil {
		logger.ErrorContext(ctx, "failed to mark log running", "error", err)
	}

	e.invalidateDailyCount(ctx, rule.ID)

	execCtx := protocol.ExecutionContext{
		EntityType:  entityType,
		EntityID:    entityID,
		TriggerType: string(triggerType),
		TriggerData: triggerData,
	}

	status := e.runActions(ctx, rule, log, execCtx, logger)
	e.finishLog(ctx, log, status, log.Error)

	event := events.RuleExecuted{
		BaseEvent: events.NewBaseEvent(events.RuleExecutedEvent, entityType, entityID),
		RuleID:    rule.ID,
		LogID:     log.ID,
		Status:    string(log.Status),
	}
	e.publish(ctx, rule.ID, event)

	return log
}

// runActions executes the rule's actions in order. A failing action is
// recorded on the log; stop_on_error turns the failure terminal and skips
// the rest.
func (e *Engine) runActions(
	ctx context.Context,
	rule *models.AutomationRule,
	log *models.AutomationLog,
	execCtx protocol.ExecutionContext,
	logger *slog.Logger,
) models.LogStatus {
	for _, spec := range rule.Actions {
		record, err := e.executeAction(ctx, spec, execCtx, logger)
		if record != nil {
			log.Changes = append(log.Changes, models.ChangeRecord{
				ActionType: record.ActionType,
				Detail:     record.Detail,
				Error:      record.Error,
			})
		}

		if err != nil {
			logger.ErrorContext(ctx, "action failed", "action_type", spec.Type, "error", err)

			log.Changes = append(log.Changes, models.ChangeRecord{
				ActionType: spec.Type,
				Error:      err.Error(),
			})

			if spec.StopOnError {
				log.Error = err.Error()

				return models.LogFailed
			}

			continue
		}

		log.ActionsExecuted++
	}

	return models.LogSuccess
}

func (e *Engine) executeAction(
	ctx context.Context,
	spec models.ActionSpec,
	execCtx protocol.ExecutionContext,
	logger *slog.Logger,
) (*protocol.ChangeRecord, error) {
	action, err := e.registry.CreateAction(spec.Type, spec.Parameters)
	if err != nil {
		return nil, err
	}

	return action.Execute(ctx, execCtx, logger)
}

func (e *Engine) finishLog(ctx context.Context, log *models.AutomationLog, status models.LogStatus, errMsg string) {
	log.Status = status
	log.Error = errMsg
	log.FinishedAt = time.Now().UTC()

	if err := e.logs.Save(ctx, log); err != nil {
		e.logger.ErrorContext(ctx, "failed to save execution log", "log_id", log.ID, "error", err)
	}
}

// countToday returns the number of budget-consuming executions of the rule
// in the current UTC day, cached briefly to keep hot triggers cheap.
func (e *Engine) countToday(ctx context.Context, ruleID string) (int, error) {
	midnight := utcMidnight(time.Now().UTC())
	key := dailyCountCacheKey(ruleID, midnight)

	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, key); ok {
			if count, err := strconv.Atoi(cached); err == nil {
				return count, nil
			}
		}
	}

	count, err := e.logs.CountForRuleSince(ctx, ruleID, midnight)
	if err != nil {
		return 0, err
	}

	if e.cache != nil {
		e.cache.Set(ctx, key, strconv.Itoa(count), dailyCountCacheTTL)
	}

	return count, nil
}

func (e *Engine) invalidateDailyCount(ctx context.Context, ruleID string) {
	if e.cache == nil {
		return
	}

	e.cache.Delete(ctx, dailyCountCacheKey(ruleID, utcMidnight(time.Now().UTC())))
}

func dailyCountCacheKey(ruleID string, midnight time.Time) string {
	return dailyCountCachePrefix + ruleID + ":" + midnight.Format("2006-01-02")
}

func utcMidnight(now time.Time) time.Time {
	year, month, day := now.Date()

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func (e *Engine) entityTask(ctx context.Context, entityType, entityID string) *protocol.TaskRecord {
	if entityType != "task" {
		return nil
	}

	task, err := e.tasks.Get(ctx, entityID)
	if err != nil {
		return nil
	}

	return task
}

// entityFieldMap merges the entity's current fields with the trigger data.
// Trigger data wins so rules can match on transition payloads (from_status,
// to_status) that the stored record no longer shows.
func (e *Engine) entityFieldMap(task *protocol.TaskRecord, triggerData map[string]any) map[string]any {
	fields := make(map[string]any)

	if task != nil {
		fields = task.FieldMap()
	}

	for k, v := range triggerData {
		fields[k] = v
	}

	return fields
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
