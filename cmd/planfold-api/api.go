// Package main provides the Planfold API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/planfold/planfold/pkg/automation"
	"github.com/planfold/planfold/pkg/cache"
	"github.com/planfold/planfold/pkg/eventbus"
	"github.com/planfold/planfold/pkg/graph"
	"github.com/planfold/planfold/pkg/materializer"
	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/protocol"
	"github.com/planfold/planfold/pkg/registry"
	"github.com/planfold/planfold/pkg/services"
	"github.com/planfold/planfold/pkg/web"
	"github.com/planfold/planfold/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	cache       cache.Cache
	tasks       protocol.TaskStore
	users       protocol.UserDirectory
	validate    *validator.Validate
	dispatcher  *automation.Dispatcher
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	cache cache.Cache,
	tasks protocol.TaskStore,
	users protocol.UserDirectory,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		cache:       cache,
		tasks:       tasks,
		users:       users,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	graphEngine := graph.NewEngine(
		a.persistence.Dependencies(), a.tasks, a.eventBus, a.logger, graph.DefaultOptions())
	workflowEngine := workflow.NewEngine(
		a.persistence.WorkflowDefinitions(), a.persistence.WorkflowInstances(),
		a.tasks, a.users, a.registry, a.eventBus, a.cache, a.logger)
	automationEngine := automation.NewEngine(
		a.persistence.AutomationRules(), a.persistence.AutomationLogs(),
		a.tasks, a.registry, a.eventBus, a.cache, nil, a.logger)
	taskMaterializer := materializer.NewMaterializer(
		a.persistence.RecurringTasks(), a.tasks, a.eventBus, nil, a.logger, time.Duration(0))

	// Engine mutations published on the bus loop back into rule execution.
	a.dispatcher = automation.NewDispatcher(automationEngine, a.eventBus, a.logger)

	dependencyService := services.NewDependency(graphEngine, a.persistence)
	workflowService := services.NewWorkflow(workflowEngine, a.persistence)
	automationService := services.NewAutomation(automationEngine, a.persistence)
	recurrenceService := services.NewRecurrence(taskMaterializer, a.persistence)

	handlers := web.NewAPIHandlers(
		dependencyService, workflowService, automationService, recurrenceService,
		a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Planfold API")
	})

	p := app.Group("/projects/:projectId")
	p.Get("/dependencies", handlers.ListDependencies)
	p.Post("/dependencies", handlers.CreateDependency)
	p.Get("/cycles", handlers.FindCycles)
	p.Post("/critical-path", handlers.CriticalPath)
	p.Post("/graph/export", handlers.ExportGraph)
	p.Post("/tasks/:taskId/completed", handlers.TaskCompleted)

	d := app.Group("/dependencies")
	d.Get("/:id", handlers.GetDependency)
	d.Delete("/:id", handlers.DeleteDependency)

	w := app.Group("/workflows")
	w.Get("/", handlers.ListWorkflowDefinitions)
	w.Post("/", handlers.CreateWorkflowDefinition)
	w.Get("/:id", handlers.GetWorkflowDefinition)
	w.Delete("/:id", handlers.DeleteWorkflowDefinition)
	w.Post("/:id/apply", handlers.ApplyWorkflow)
	w.Get("/:id/analytics", handlers.WorkflowAnalytics)

	i := app.Group("/instances")
	i.Get("/:id", handlers.GetWorkflowInstance)
	i.Post("/:id/transition", handlers.TransitionInstance)

	app.Get("/entities/:entityType/:entityId/instance", handlers.GetInstanceByEntity)

	r := app.Group("/rules")
	r.Get("/", handlers.ListAutomationRules)
	r.Post("/", handlers.CreateAutomationRule)
	r.Get("/:id", handlers.GetAutomationRule)
	r.Delete("/:id", handlers.DeleteAutomationRule)
	r.Post("/:id/test", handlers.TestAutomationRule)
	r.Get("/:id/analytics", handlers.AutomationAnalytics)
	r.Get("/:id/logs", handlers.ListAutomationLogs)

	app.Post("/events", handlers.FireEvent)
	app.Get("/actions", handlers.ListAvailableActions)

	rt := app.Group("/recurring-tasks")
	rt.Get("/", handlers.ListRecurringTasks)
	rt.Post("/", handlers.CreateRecurringTask)
	rt.Post("/preview", handlers.PreviewRecurrence)
	rt.Post("/materialize", handlers.MaterializeRecurringTask)
	rt.Get("/:id", handlers.GetRecurringTask)
	rt.Delete("/:id", handlers.DeleteRecurringTask)
	rt.Post("/:id/materialize", handlers.MaterializeRecurringTask)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	if err := a.dispatcher.Start(ctx); err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
