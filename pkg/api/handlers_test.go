package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/api"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/catalog"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/persistence/file"
)

const apiDefinition = `
id: dbt_snowflake_pipeline
schedule: "@daily"
start_date: 2026-01-01
catchup: false
task_group:
  project_dir: /srv/dbt/data_pipeline
  profiles_path: /srv/dbt/data_pipeline/profiles.yml
  profile_name: data_pipeline
  target_name: dev
`

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	definitionsDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(definitionsDir, "dbt_snowflake_pipeline.yaml"),
		[]byte(apiDefinition),
		0600,
	))

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cat, err := catalog.New(definitionsDir, logger)
	require.NoError(t, err)
	require.NoError(t, cat.Load(context.Background()))

	store := file.NewPersistence(t.TempDir())
	app := api.NewApp(api.NewHandlers(cat, store, logger))

	return app, store
}

func TestGetHealth(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]any

	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.EqualValues(t, 1, payload["workflows"])
}

func TestGetWorkflows(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload struct {
		Workflows  []models.Workflow `json:"workflows"`
		TotalCount int               `json:"total_count"`
	}

	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, 1, payload.TotalCount)
	require.Len(t, payload.Workflows, 1)
	assert.Equal(t, "dbt_snowflake_pipeline", payload.Workflows[0].ID)
}

func TestGetWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/dbt_snowflake_pipeline", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var workflow models.Workflow

	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.Equal(t, "@daily", workflow.Schedule)
	assert.Equal(t, "data_pipeline", workflow.TaskGroup.ProfileName)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/missing", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var problem map[string]any

	require.NoError(t, json.Unmarshal(body, &problem))
	assert.Equal(t, "not_found", problem["type"])
}

func TestGetWorkflowRuns(t *testing.T) {
	app, store := setupTestApp(t)

	run := &models.Run{
		ID:          "run-1",
		WorkflowID:  "dbt_snowflake_pipeline",
		LogicalDate: time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC),
		Trigger:     models.TriggerKindSchedule,
		Status:      models.RunStatusSuccess,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.RunRepository().Save(context.Background(), run))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/dbt_snowflake_pipeline/runs", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload struct {
		Runs       []models.Run `json:"runs"`
		TotalCount int          `json:"total_count"`
	}

	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, 1, payload.TotalCount)
	require.Len(t, payload.Runs, 1)
	assert.Equal(t, "run-1", payload.Runs[0].ID)
}

func TestGetWorkflowRuns_UnknownWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/missing/runs", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRun(t *testing.T) {
	app, store := setupTestApp(t)

	run := &models.Run{
		ID:         "run-9",
		WorkflowID: "dbt_snowflake_pipeline",
		Trigger:    models.TriggerKindManual,
		Status:     models.RunStatusFailed,
		Results: map[string]*models.TaskResult{
			"model.p.stg": {TaskID: "model.p.stg", Status: models.TaskStatusFailed, Error: "dbt exited with code 1"},
		},
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, store.RunRepository().Save(context.Background(), run))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/runs/run-9", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var loaded models.Run

	require.NoError(t, json.Unmarshal(body, &loaded))
	assert.Equal(t, models.RunStatusFailed, loaded.Status)
	require.Contains(t, loaded.Results, "model.p.stg")
	assert.Equal(t, "dbt exited with code 1", loaded.Results["model.p.stg"].Error)
}

func TestGetRun_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/runs/missing", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
