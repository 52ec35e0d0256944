package catalog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
)

const pipelineDefinition = `
id: dbt_snowflake_pipeline
description: Nightly dbt build against Snowflake
schedule: "@daily"
start_date: 2026-01-01
catchup: false
task_group:
  project_dir: /usr/local/pipelines/dbt/data_pipeline
  profiles_path: /usr/local/pipelines/dbt/data_pipeline/profiles.yml
  profile_name: data_pipeline
  target_name: dev
  execution_mode: local
  load_method: manifest
`

func writeDefinition(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0600))
}

func newTestCatalog(t *testing.T, dir string) *Catalog {
	t.Helper()

	catalog, err := New(dir, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)

	return catalog
}

func TestCatalog_Load(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "dbt_snowflake_pipeline.yaml", pipelineDefinition)

	catalog := newTestCatalog(t, dir)
	require.NoError(t, catalog.Load(context.Background()))

	// One definition file registers exactly one workflow.
	require.Equal(t, 1, catalog.Len())

	workflow, err := catalog.Get("dbt_snowflake_pipeline")
	require.NoError(t, err)

	// Settings survive verbatim.
	assert.Equal(t, "@daily", workflow.Schedule)
	assert.False(t, workflow.Catchup)
	assert.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), workflow.StartDate.Time)
	assert.Equal(t, "/usr/local/pipelines/dbt/data_pipeline", workflow.TaskGroup.ProjectDir)
	assert.Equal(t, "/usr/local/pipelines/dbt/data_pipeline/profiles.yml", workflow.TaskGroup.ProfilesPath)
	assert.Equal(t, "data_pipeline", workflow.TaskGroup.ProfileName)
	assert.Equal(t, "dev", workflow.TaskGroup.TargetName)
	assert.Equal(t, models.ExecutionModeLocal, workflow.TaskGroup.ExecutionMode)
	assert.Equal(t, models.LoadMethodManifest, workflow.TaskGroup.LoadMethod)
}

func TestCatalog_LoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "minimal.yaml", `
id: minimal_pipeline
schedule: "@daily"
start_date: 2026-01-01
task_group:
  project_dir: /srv/dbt/p
  profiles_path: /srv/dbt/p/profiles.yml
  profile_name: p
  target_name: dev
`)

	catalog := newTestCatalog(t, dir)
	require.NoError(t, catalog.Load(context.Background()))

	workflow, err := catalog.Get("minimal_pipeline")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionModeLocal, workflow.TaskGroup.ExecutionMode)
	assert.Equal(t, models.LoadMethodManifest, workflow.TaskGroup.LoadMethod)
}

func TestCatalog_ReloadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "dbt_snowflake_pipeline.yaml", pipelineDefinition)

	catalog := newTestCatalog(t, dir)
	require.NoError(t, catalog.Load(context.Background()))

	first, err := catalog.Get("dbt_snowflake_pipeline")
	require.NoError(t, err)

	require.NoError(t, catalog.Reload(context.Background()))
	require.Equal(t, 1, catalog.Len())

	second, err := catalog.Get("dbt_snowflake_pipeline")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCatalog_LoadAggregatesErrors(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "a_broken.yaml", "id: [not, a, string]\n")
	writeDefinition(t, dir, "b_invalid.yaml", `
id: broken_schedule
schedule: whenever
start_date: 2026-01-01
task_group:
  project_dir: /srv/dbt/p
  profiles_path: /srv/dbt/p/profiles.yml
  profile_name: p
  target_name: dev
`)
	writeDefinition(t, dir, "c_good.yaml", pipelineDefinition)

	catalog := newTestCatalog(t, dir)

	err := catalog.Load(context.Background())
	require.Error(t, err)

	// Both broken files are named; a bad file never hides another.
	assert.Contains(t, err.Error(), "a_broken.yaml")
	assert.Contains(t, err.Error(), "b_invalid.yaml")

	// Nothing is registered while the directory is dirty.
	assert.Equal(t, 0, catalog.Len())
}

func TestCatalog_LoadRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "first.yaml", pipelineDefinition)
	writeDefinition(t, dir, "second.yaml", pipelineDefinition)

	catalog := newTestCatalog(t, dir)

	err := catalog.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Contains(t, err.Error(), "first.yaml")
	assert.Contains(t, err.Error(), "second.yaml")
}

func TestCatalog_LoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "extra.yaml", pipelineDefinition+"retries: 3\n")

	catalog := newTestCatalog(t, dir)

	err := catalog.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidWorkflow)
}

func TestCatalog_LoadKeepsPreviousEntriesOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "dbt_snowflake_pipeline.yaml", pipelineDefinition)

	catalog := newTestCatalog(t, dir)
	require.NoError(t, catalog.Load(context.Background()))

	writeDefinition(t, dir, "broken.yaml", "id: {\n")
	require.Error(t, catalog.Reload(context.Background()))

	// The previously registered set stays visible.
	_, err := catalog.Get("dbt_snowflake_pipeline")
	assert.NoError(t, err)
}

func TestCatalog_Get_NotFound(t *testing.T) {
	catalog := newTestCatalog(t, t.TempDir())

	_, err := catalog.Get("missing")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestCatalog_List_Sorted(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "z.yaml", pipelineDefinition)
	writeDefinition(t, dir, "a.yml", `
id: analytics_refresh
schedule: "30 6 * * *"
start_date: 2026-02-01
task_group:
  project_dir: /srv/dbt/analytics
  profiles_path: /srv/dbt/analytics/profiles.yml
  profile_name: analytics
  target_name: dev
`)

	catalog := newTestCatalog(t, dir)
	require.NoError(t, catalog.Load(context.Background()))

	workflows := catalog.List()
	require.Len(t, workflows, 2)
	assert.Equal(t, "analytics_refresh", workflows[0].ID)
	assert.Equal(t, "dbt_snowflake_pipeline", workflows[1].ID)
}

func TestCatalog_MissingDirectory(t *testing.T) {
	catalog := newTestCatalog(t, filepath.Join(t.TempDir(), "nope"))

	assert.Error(t, catalog.Load(context.Background()))
}
