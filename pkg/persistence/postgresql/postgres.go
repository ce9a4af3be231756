// Package postgresql provides the PostgreSQL persistence driver for the
// flow engine aggregates.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	dependencyRepo *DependencyRepository
	definitionRepo *WorkflowDefinitionRepository
	instanceRepo   *WorkflowInstanceRepository
	ruleRepo       *AutomationRuleRepository
	logRepo        *AutomationLogRepository
	recurringRepo  *RecurringTaskRepository
}

// NewPersistence connects, runs migrations, and returns the driver.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		dependencyRepo: NewDependencyRepository(database, logger),
		definitionRepo: NewWorkflowDefinitionRepository(database, logger),
		instanceRepo:   NewWorkflowInstanceRepository(database, logger),
		ruleRepo:       NewAutomationRuleRepository(database, logger),
		logRepo:        NewAutomationLogRepository(database, logger),
		recurringRepo:  NewRecurringTaskRepository(database, logger),
	}, nil
}

func (p *Persistence) Dependencies() persistence.DependencyRepository { return p.dependencyRepo }

func (p *Persistence) WorkflowDefinitions() persistence.WorkflowDefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) WorkflowInstances() persistence.WorkflowInstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) AutomationRules() persistence.AutomationRuleRepository { return p.ruleRepo }
func (p *Persistence) AutomationLogs() persistence.AutomationLogRepository   { return p.logRepo }
func (p *Persistence) RecurringTasks() persistence.RecurringTaskRepository   { return p.recurringRepo }

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
