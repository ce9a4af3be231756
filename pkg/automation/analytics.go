package automation

import (
	"context"
	"time"

	"github.com/planfold/planfold/pkg/models"
)

// Analytics summarizes one rule's execution history since a point in time.
type Analytics struct {
	RuleID          string        `json:"rule_id"`
	Since           time.Time     `json:"since"`
	TotalRuns       int           `json:"total_runs"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	Skipped         int           `json:"skipped"`
	SuccessRate     float64       `json:"success_rate"`
	ActionsExecuted int           `json:"actions_executed"`
	AverageDuration time.Duration `json:"average_duration"`
	LastRunAt       time.Time     `json:"last_run_at,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
}

// Analytics aggregates the rule's logs since the given instant.
func (e *Engine) Analytics(ctx context.Context, ruleID string, since time.Time) (*Analytics, error) {
	if _, err := e.rules.GetByID(ctx, ruleID); err != nil {
		return nil, err
	}

	logs, err := e.logs.ListByRule(ctx, ruleID, since)
	if err != nil {
		return nil, err
	}

	result := &Analytics{RuleID: ruleID, Since: since}

	var totalDuration time.Duration
	var finished int
	var lastFailedAt time.Time

	for _, log := range logs {
		result.TotalRuns++
		result.ActionsExecuted += log.ActionsExecuted

		switch log.Status {
		case models.LogSuccess:
			result.Succeeded++
		case models.LogFailed:
			result.Failed++

			if log.StartedAt.After(lastFailedAt) {
				lastFailedAt = log.StartedAt
				result.LastError = log.Error
			}
		case models.LogSkipped:
			result.Skipped++
		case models.LogPending, models.LogRunning:
			// Still in flight; counted in TotalRuns only.
		}

		if !log.FinishedAt.IsZero() {
			totalDuration += log.FinishedAt.Sub(log.StartedAt)
			finished++
		}

		if log.StartedAt.After(result.LastRunAt) {
			result.LastRunAt = log.StartedAt
		}
	}

	executed := result.Succeeded + result.Failed
	if executed > 0 {
		result.SuccessRate = float64(result.Succeeded) / float64(executed)
	}

	if finished > 0 {
		result.AverageDuration = totalDuration / time.Duration(finished)
	}

	return result, nil
}
