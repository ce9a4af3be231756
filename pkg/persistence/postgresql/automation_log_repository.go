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

	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
)

// AutomationLogRepository handles automation execution log database
// operations.
type AutomationLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAutomationLogRepository creates a new automation log repository.
func NewAutomationLogRepository(db *sql.DB, logger *slog.Logger) *AutomationLogRepository {
	return &AutomationLogRepository{db: db, logger: logger}
}

// Save upserts an execution log. Logs transition pending -> running ->
// success/failed/skipped through repeated saves of the same row.
func (r *AutomationLogRepository) Save(ctx context.Context, log *models.AutomationLog) error {
	if log.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate automation log ID: %w", err)
		}

		log.ID = id.String()
	}

	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now().UTC()
	}

	changesJSON, err := json.Marshal(log.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	var finishedAt sql.NullTime
	if !log.FinishedAt.IsZero() {
		finishedAt = sql.NullTime{Time: log.FinishedAt, Valid: true}
	}

	query := `
		INSERT INTO automation_logs (id, rule_id, trigger_type, entity_type, entity_id,
			status, actions_executed, changes, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			actions_executed = EXCLUDED.actions_executed,
			changes = EXCLUDED.changes,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at
	`

	_, err = r.db.ExecContext(ctx, query,
		log.ID,
		log.RuleID,
		log.TriggerType,
		log.EntityType,
		log.EntityID,
		log.Status,
		log.ActionsExecuted,
		changesJSON,
		log.Error,
		log.StartedAt,
		finishedAt,
	)
	if err != nil {
		return persistence.NewStorageError("Save", "automation_log", log.ID, err)
	}

	return nil
}

// GetByID returns an execution log by its id.
func (r *AutomationLogRepository) GetByID(ctx context.Context, id string) (*models.AutomationLog, error) {
	row := r.db.QueryRowContext(ctx, logSelect+" WHERE id = $1", id)

	log, err := scanAutomationLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStorageError("GetByID", "automation_log", id, persistence.ErrAutomationLogNotFound)
		}

		return nil, fmt.Errorf("failed to scan automation log: %w", err)
	}

	return log, nil
}

// ListByRule returns logs of one rule started at or after since, newest
// first.
func (r *AutomationLogRepository) ListByRule(ctx context.Context, ruleID string, since time.Time) ([]*models.AutomationLog, error) {
	query := logSelect + `
		WHERE rule_id = $1 AND started_at >= $2
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, ruleID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation logs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	logs := make([]*models.AutomationLog, 0)

	for rows.Next() {
		log, err := scanAutomationLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation log: %w", err)
		}

		logs = append(logs, log)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automation logs: %w", err)
	}

	return logs, nil
}

// CountForRuleSince counts logs that consume the rule's daily budget.
// Pending and skipped evaluations are free, matching
// AutomationLog.CountsTowardDailyLimit.
func (r *AutomationLogRepository) CountForRuleSince(ctx context.Context, ruleID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM automation_logs
		WHERE rule_id = $1
		  AND started_at >= $2
		  AND status IN ('running', 'success', 'failed')
	`

	var count int

	err := r.db.QueryRowContext(ctx, query, ruleID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count automation logs: %w", err)
	}

	return count, nil
}

const logSelect = `
	SELECT id, rule_id, trigger_type, entity_type, entity_id,
		status, actions_executed, changes, error, started_at, finished_at
	FROM automation_logs
`

func scanAutomationLog(row rowScanner) (*models.AutomationLog, error) {
	var (
		log         models.AutomationLog
		changesJSON []byte
		finishedAt  sql.NullTime
	)

	err := row.Scan(
		&log.ID,
		&log.RuleID,
		&log.TriggerType,
		&log.EntityType,
		&log.EntityID,
		&log.Status,
		&log.ActionsExecuted,
		&changesJSON,
		&log.Error,
		&log.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		log.FinishedAt = finishedAt.Time
	}

	err = json.Unmarshal(changesJSON, &log.Changes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
	}

	return &log, nil
}
