package postgresql

// migrations returns the versioned schema for the flow engine tables.
// Nested structures (states, transitions, triggers, actions, patterns) are
// stored as JSONB; scalar columns carry everything the repositories filter
// or sort on.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE dependencies (
				id VARCHAR(255) PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL,
				source_task_id VARCHAR(255) NOT NULL,
				target_task_id VARCHAR(255) NOT NULL,
				dependency_type VARCHAR(32) NOT NULL,
				lag_days INTEGER NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_dependencies_project ON dependencies(project_id) WHERE active;
			CREATE UNIQUE INDEX idx_dependencies_edge
				ON dependencies(project_id, source_task_id, target_task_id, dependency_type)
				WHERE active;
		`,
		2: `
			CREATE TABLE workflow_definitions (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				entity_type VARCHAR(64) NOT NULL,
				states JSONB NOT NULL DEFAULT '[]',
				transitions JSONB NOT NULL DEFAULT '[]',
				allow_parallel_states BOOLEAN NOT NULL DEFAULT false,
				enforce_transitions BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE workflow_instances (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				entity_type VARCHAR(64) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				current_state_id VARCHAR(255) NOT NULL,
				active_states JSONB NOT NULL DEFAULT '[]',
				state_history JSONB NOT NULL DEFAULT '[]',
				transition_history JSONB NOT NULL DEFAULT '[]',
				time_in_state JSONB NOT NULL DEFAULT '{}',
				entered_current_at TIMESTAMP WITH TIME ZONE NOT NULL,
				is_completed BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_instances_workflow ON workflow_instances(workflow_id);
			CREATE UNIQUE INDEX idx_workflow_instances_entity
				ON workflow_instances(entity_type, entity_id);
		`,
		3: `
			CREATE TABLE automation_rules (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				triggers JSONB NOT NULL DEFAULT '[]',
				trigger_logic VARCHAR(8) NOT NULL DEFAULT 'OR',
				conditions JSONB NOT NULL DEFAULT '[]',
				condition_logic VARCHAR(8) NOT NULL DEFAULT 'AND',
				actions JSONB NOT NULL DEFAULT '[]',
				scope JSONB NOT NULL DEFAULT '{}',
				max_executions_per_day INTEGER NOT NULL DEFAULT 0,
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automation_rules_active ON automation_rules(is_active);

			CREATE TABLE automation_logs (
				id VARCHAR(255) PRIMARY KEY,
				rule_id VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(64) NOT NULL,
				entity_type VARCHAR(64) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				status VARCHAR(16) NOT NULL,
				actions_executed INTEGER NOT NULL DEFAULT 0,
				changes JSONB NOT NULL DEFAULT '[]',
				error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_automation_logs_rule_started ON automation_logs(rule_id, started_at);
		`,
		4: `
			CREATE TABLE recurring_tasks (
				id VARCHAR(255) PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL,
				pattern JSONB NOT NULL,
				template JSONB NOT NULL,
				next_occurrence TIMESTAMP WITH TIME ZONE,
				created_instances INTEGER NOT NULL DEFAULT 0,
				auto_create_days_ahead INTEGER NOT NULL DEFAULT 7,
				is_active BOOLEAN NOT NULL DEFAULT true,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_recurring_tasks_active_due
				ON recurring_tasks(next_occurrence) WHERE is_active;
		`,
	}
}
