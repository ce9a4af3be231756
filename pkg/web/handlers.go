package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/registry"
	"github.com/planfold/planfold/pkg/services"
	"github.com/planfold/planfold/pkg/workflow"
)

type APIHandlers struct {
	dependencyService *services.Dependency
	workflowService   *services.Workflow
	automationService *services.Automation
	recurrenceService *services.Recurrence
	validator         *validator.Validate
	registry          *registry.Registry
}

func NewAPIHandlers(
	dependencyService *services.Dependency,
	workflowService *services.Workflow,
	automationService *services.Automation,
	recurrenceService *services.Recurrence,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		dependencyService: dependencyService,
		workflowService:   workflowService,
		automationService: automationService,
		recurrenceService: recurrenceService,
		validator:         validator,
		registry:          registry,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.dependencyService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Planfold API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Planfold API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Dependency endpoints

func (h *APIHandlers) CreateDependency(c fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return badRequest(c, "Project ID is required")
	}

	var req CreateDependencyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	dep := &models.Dependency{
		ProjectID:    projectID,
		SourceTaskID: req.SourceTaskID,
		TargetTaskID: req.TargetTaskID,
		Type:         models.DependencyType(req.Type),
		LagDays:      req.LagDays,
	}

	created, err := h.dependencyService.Create(c.Context(), dep)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ListDependencies(c fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return badRequest(c, "Project ID is required")
	}

	deps, err := h.dependencyService.List(c.Context(), projectID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"dependencies": deps,
		"total_count":  len(deps),
	})
}

func (h *APIHandlers) GetDependency(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Dependency ID is required")
	}

	dep, err := h.dependencyService.Get(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Dependency not found")
		}

		return internalError(c, err)
	}

	return c.JSON(dep)
}

func (h *APIHandlers) DeleteDependency(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Dependency ID is required")
	}

	err := h.dependencyService.Delete(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Dependency not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) FindCycles(c fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return badRequest(c, "Project ID is required")
	}

	cycles, err := h.dependencyService.FindCycles(c.Context(), projectID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"cycles": cycles,
		"count":  len(cycles),
	})
}

func (h *APIHandlers) CriticalPath(c fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return badRequest(c, "Project ID is required")
	}

	var req CriticalPathRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result, err := h.dependencyService.CriticalPath(c.Context(), projectID, req.Durations)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ExportGraph(c fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return badRequest(c, "Project ID is required")
	}

	var req CriticalPathRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	export, err := h.dependencyService.Export(c.Context(), projectID, req.Durations)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(export)
}

func (h *APIHandlers) TaskCompleted(c fiber.Ctx) error {
	projectID := c.Params("projectId")
	taskID := c.Params("taskId")

	if projectID == "" || taskID == "" {
		return badRequest(c, "Project ID and task ID are required")
	}

	err := h.dependencyService.TaskCompleted(c.Context(), projectID, taskID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// Workflow endpoints

func (h *APIHandlers) CreateWorkflowDefinition(c fiber.Ctx) error {
	var def models.WorkflowDefinition
	if err := c.Bind().JSON(&def); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.workflowService.SaveDefinition(c.Context(), &def)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ListWorkflowDefinitions(c fiber.Ctx) error {
	defs, err := h.workflowService.ListDefinitions(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   defs,
		"total_count": len(defs),
	})
}

func (h *APIHandlers) GetWorkflowDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	def, err := h.workflowService.GetDefinition(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) DeleteWorkflowDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.workflowService.DeleteDefinition(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ApplyWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ApplyWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.workflowService.Apply(c.Context(), id, req.EntityType, req.EntityID, req.ActorID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) WorkflowAnalytics(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	analytics, err := h.workflowService.Analytics(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return handleServiceError(c, err)
	}

	return c.JSON(analytics)
}

func (h *APIHandlers) GetWorkflowInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.workflowService.GetInstance(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow instance not found")
		}

		return internalError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetInstanceByEntity(c fiber.Ctx) error {
	entityType := c.Params("entityType")
	entityID := c.Params("entityId")

	if entityType == "" || entityID == "" {
		return badRequest(c, "Entity type and entity ID are required")
	}

	instance, err := h.workflowService.GetInstanceByEntity(c.Context(), entityType, entityID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow instance not found")
		}

		return internalError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) TransitionInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req TransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.workflowService.Transition(c.Context(), workflow.TransitionRequest{
		InstanceID:   id,
		ToStateID:    req.ToStateID,
		ActorID:      req.ActorID,
		Comment:      req.Comment,
		FieldUpdates: req.FieldUpdates,
	})
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow instance not found")
		}

		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

// Automation endpoints

func (h *APIHandlers) CreateAutomationRule(c fiber.Ctx) error {
	var rule models.AutomationRule
	if err := c.Bind().JSON(&rule); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.automationService.SaveRule(c.Context(), &rule)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ListAutomationRules(c fiber.Ctx) error {
	rules, err := h.automationService.ListRules(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"rules":       rules,
		"total_count": len(rules),
	})
}

func (h *APIHandlers) GetAutomationRule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Rule ID is required")
	}

	rule, err := h.automationService.GetRule(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Automation rule not found")
		}

		return internalError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) DeleteAutomationRule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Rule ID is required")
	}

	err := h.automationService.DeleteRule(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Automation rule not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) TestAutomationRule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Rule ID is required")
	}

	var req TestRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.automationService.Test(
		c.Context(), id, models.TriggerType(req.TriggerType), req.EntityType, req.EntityID, req.TriggerData)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Automation rule not found")
		}

		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) FireEvent(c fiber.Ctx) error {
	var req FireEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	logs, err := h.automationService.Execute(
		c.Context(), models.TriggerType(req.TriggerType), req.EntityType, req.EntityID, req.TriggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"executions": logs,
		"count":      len(logs),
	})
}

func (h *APIHandlers) AutomationAnalytics(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Rule ID is required")
	}

	since, err := parseSince(c)
	if err != nil {
		return badRequest(c, "Invalid since parameter: "+err.Error())
	}

	analytics, err := h.automationService.Analytics(c.Context(), id, since)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Automation rule not found")
		}

		return handleServiceError(c, err)
	}

	return c.JSON(analytics)
}

func (h *APIHandlers) ListAutomationLogs(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Rule ID is required")
	}

	since, err := parseSince(c)
	if err != nil {
		return badRequest(c, "Invalid since parameter: "+err.Error())
	}

	logs, err := h.automationService.ListLogs(c.Context(), id, since)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"logs":        logs,
		"total_count": len(logs),
	})
}

func (h *APIHandlers) ListAvailableActions(c fiber.Ctx) error {
	actionTypes := h.registry.AvailableActions()

	actions := make([]fiber.Map, 0, len(actionTypes))

	for _, actionType := range actionTypes {
		schema, err := h.registry.ActionSchema(actionType)
		if err != nil {
			continue
		}

		actions = append(actions, fiber.Map{
			"type":   actionType,
			"schema": schema,
		})
	}

	return c.JSON(fiber.Map{
		"actions": actions,
		"count":   len(actions),
	})
}

// Recurrence endpoints

func (h *APIHandlers) CreateRecurringTask(c fiber.Ctx) error {
	var task models.RecurringTask
	if err := c.Bind().JSON(&task); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.recurrenceService.SaveRecurringTask(c.Context(), &task)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ListRecurringTasks(c fiber.Ctx) error {
	tasks, err := h.recurrenceService.ListRecurringTasks(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"recurring_tasks": tasks,
		"total_count":     len(tasks),
	})
}

func (h *APIHandlers) GetRecurringTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Recurring task ID is required")
	}

	task, err := h.recurrenceService.GetRecurringTask(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Recurring task not found")
		}

		return internalError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) DeleteRecurringTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Recurring task ID is required")
	}

	err := h.recurrenceService.DeleteRecurringTask(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Recurring task not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PreviewRecurrence(c fiber.Ctx) error {
	var req PreviewRecurrenceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	start := req.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}

	items, err := h.recurrenceService.Preview(c.Context(), req.Pattern, start, req.Count)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"occurrences": items,
		"count":       len(items),
	})
}

func (h *APIHandlers) MaterializeRecurringTask(c fiber.Ctx) error {
	created, err := h.recurrenceService.MaterializeNow(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Recurring task not found")
		}

		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"created_instances": created,
	})
}

func parseSince(c fiber.Ctx) (time.Time, error) {
	sinceStr := c.Query("since")
	if sinceStr == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339, sinceStr)
}
