package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planfold/planfold/pkg/cache"
	"github.com/planfold/planfold/pkg/cmd"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/persistence/memory"
	"github.com/planfold/planfold/pkg/platform/local"
	"github.com/planfold/planfold/pkg/protocol"
)

func setupTestApp(t *testing.T) (*fiber.App, *local.TaskStore) {
	t.Helper()

	logger := slog.Default()
	tasks := local.NewTaskStore()
	users := local.NewUserDirectory()
	sink := local.NewNotificationSink(logger)

	eventBus := cmd.NewEventBus("gochannel", nil, logger)
	t.Cleanup(func() { _ = eventBus.Close() })

	api := NewAPI(
		logger,
		memory.NewPersistence(),
		cmd.NewRegistry(logger, tasks, sink),
		eventBus,
		cache.NewMemory(),
		tasks,
		users,
	)

	return api.App(), tasks
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Planfold API", string(body))
}

func TestAPI_Liveness(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_HealthEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_DependencyLifecycle(t *testing.T) {
	app, tasks := setupTestApp(t)

	ctx := t.Context()

	_, err := tasks.Create(ctx, &protocol.TaskRecord{ID: "task-a", ProjectID: "p1", Status: "todo"})
	require.NoError(t, err)
	_, err = tasks.Create(ctx, &protocol.TaskRecord{ID: "task-b", ProjectID: "p1", Status: "todo"})
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]any{
		"source_task_id": "task-a",
		"target_task_id": "task-b",
		"type":           "blocks",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/projects/p1/dependencies", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Dependency

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "p1", created.ProjectID)

	// List it back through the project collection.
	req = httptest.NewRequest(http.MethodGet, "/projects/p1/dependencies", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var deps []models.Dependency

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&deps))
	require.Len(t, deps, 1)
	assert.Equal(t, created.ID, deps[0].ID)

	req = httptest.NewRequest(http.MethodDelete, "/dependencies/"+created.ID, nil)
	resp, err = app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPI_CreateDependency_UnknownTask(t *testing.T) {
	app, _ := setupTestApp(t)

	payload, err := json.Marshal(map[string]any{
		"source_task_id": "ghost",
		"target_task_id": "also-ghost",
		"type":           "blocks",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/projects/p1/dependencies", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestAPI_GetWorkflowDefinition_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/non-existent", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListAvailableActions(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/actions", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Actions []map[string]any `json:"actions"`
		Count   int              `json:"count"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, 6, payload.Count)
	assert.Len(t, payload.Actions, 6)
}

func TestAPI_PreviewRecurrence(t *testing.T) {
	app, _ := setupTestApp(t)

	payload, err := json.Marshal(map[string]any{
		"pattern": map[string]any{
			"frequency":  "daily",
			"interval":   1,
			"start_date": "2026-03-02T00:00:00Z",
		},
		"start": "2026-03-02T00:00:00Z",
		"count": 3,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/recurring-tasks/preview", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_CORS_Headers(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/workflows", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
