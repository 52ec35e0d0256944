package taskgroup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/dbt"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/testutil"
)

const manifestFixture = `{
  "nodes": {
    "seed.data_pipeline.raw_orders": {
      "name": "raw_orders",
      "resource_type": "seed",
      "depends_on": {"nodes": []}
    },
    "model.data_pipeline.stg_orders": {
      "name": "stg_orders",
      "resource_type": "model",
      "tags": ["staging"],
      "depends_on": {"nodes": ["seed.data_pipeline.raw_orders"]}
    },
    "model.data_pipeline.fct_orders": {
      "name": "fct_orders",
      "resource_type": "model",
      "tags": ["mart"],
      "depends_on": {"nodes": ["model.data_pipeline.stg_orders"]}
    },
    "test.data_pipeline.not_null_fct_orders_id": {
      "name": "not_null_fct_orders_id",
      "resource_type": "test",
      "depends_on": {"nodes": ["model.data_pipeline.fct_orders"]}
    }
  }
}`

const projectFixture = "name: data_pipeline\nversion: \"1.0\"\nprofile: data_pipeline\n"

const profilesFixture = `
data_pipeline:
  target: dev
  outputs:
    dev:
      type: snowflake
      account: xy12345
      database: analytics_dev
      schema: dbt
`

func manifestGroup(t *testing.T) models.TaskGroup {
	t.Helper()

	projectDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, "target"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "target", "manifest.json"), []byte(manifestFixture), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "dbt_project.yml"), []byte(projectFixture), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "profiles.yml"), []byte(profilesFixture), 0600))

	return models.TaskGroup{
		ProjectDir:    projectDir,
		ProfilesPath:  filepath.Join(projectDir, "profiles.yml"),
		ProfileName:   "data_pipeline",
		TargetName:    "dev",
		ExecutionMode: models.ExecutionModeLocal,
		LoadMethod:    models.LoadMethodManifest,
	}
}

func TestExpander_ManifestNeverInvokesDbt(t *testing.T) {
	runner := testutil.NewFakeRunner()
	expander := NewExpander(runner)

	graph, err := expander.Expand(context.Background(), manifestGroup(t))
	require.NoError(t, err)
	assert.Equal(t, 4, graph.Len())

	// Manifest expansion is pure file reading.
	assert.Zero(t, runner.CallCount())
}

func TestExpander_ManifestOrder(t *testing.T) {
	expander := NewExpander(testutil.NewFakeRunner())

	graph, err := expander.Expand(context.Background(), manifestGroup(t))
	require.NoError(t, err)

	order := make([]string, 0, graph.Len())
	for _, task := range graph.Ordered() {
		order = append(order, task.Name)
	}

	assert.Equal(t, []string{"raw_orders", "stg_orders", "fct_orders", "not_null_fct_orders_id"}, order)
}

func TestExpander_SelectByName(t *testing.T) {
	expander := NewExpander(testutil.NewFakeRunner())

	group := manifestGroup(t)
	group.Select = []string{"stg_orders", "raw_orders"}

	graph, err := expander.Expand(context.Background(), group)
	require.NoError(t, err)
	assert.Equal(t, 2, graph.Len())
}

func TestExpander_SelectByTag(t *testing.T) {
	expander := NewExpander(testutil.NewFakeRunner())

	group := manifestGroup(t)
	group.Select = []string{"tag:staging"}

	graph, err := expander.Expand(context.Background(), group)
	require.NoError(t, err)
	require.Equal(t, 1, graph.Len())

	stg := graph.Ordered()[0]
	assert.Equal(t, "stg_orders", stg.Name)

	// The edge to the excluded seed is dropped.
	assert.Empty(t, stg.DependsOn)
}

func TestExpander_Exclude(t *testing.T) {
	expander := NewExpander(testutil.NewFakeRunner())

	group := manifestGroup(t)
	group.Exclude = []string{"not_null_fct_orders_id"}

	graph, err := expander.Expand(context.Background(), group)
	require.NoError(t, err)
	assert.Equal(t, 3, graph.Len())
}

func TestExpander_SelectEverythingOut(t *testing.T) {
	expander := NewExpander(testutil.NewFakeRunner())

	group := manifestGroup(t)
	group.Select = []string{"no_such_model"}

	_, err := expander.Expand(context.Background(), group)
	assert.ErrorIs(t, err, dbt.ErrEmptyTaskGroup)
}

func TestExpander_DbtLs(t *testing.T) {
	runner := testutil.NewFakeRunner()
	runner.Handler = func(_ dbt.CommandSpec) (dbt.CommandResult, error) {
		stdout := `{"unique_id": "model.p.stg", "name": "stg", "resource_type": "model", "depends_on": {"nodes": []}}` + "\n"

		return dbt.CommandResult{ExitCode: 0, Stdout: []byte(stdout)}, nil
	}

	expander := NewExpander(runner)

	group := manifestGroup(t)
	group.LoadMethod = models.LoadMethodDbtLs

	graph, err := expander.Expand(context.Background(), group)
	require.NoError(t, err)
	assert.Equal(t, 1, graph.Len())

	require.Equal(t, 1, runner.CallCount())
	assert.Contains(t, runner.Calls()[0].Args, "ls")
}

func TestExpander_UnknownLoadMethod(t *testing.T) {
	expander := NewExpander(testutil.NewFakeRunner())

	group := manifestGroup(t)
	group.LoadMethod = "compile"

	_, err := expander.Expand(context.Background(), group)
	assert.Error(t, err)
}

func TestExpander_MissingManifestSurfaced(t *testing.T) {
	expander := NewExpander(testutil.NewFakeRunner())

	group := manifestGroup(t)
	require.NoError(t, os.Remove(filepath.Join(group.ProjectDir, "target", "manifest.json")))

	_, err := expander.Expand(context.Background(), group)
	assert.ErrorIs(t, err, dbt.ErrManifestNotFound)
}

func TestExpander_MissingProjectSurfaced(t *testing.T) {
	runner := testutil.NewFakeRunner()
	expander := NewExpander(runner)

	group := manifestGroup(t)
	require.NoError(t, os.Remove(filepath.Join(group.ProjectDir, "dbt_project.yml")))

	_, err := expander.Expand(context.Background(), group)
	assert.ErrorIs(t, err, dbt.ErrProjectNotFound)
	assert.Zero(t, runner.CallCount())
}

func TestExpander_MissingProfilesSurfaced(t *testing.T) {
	expander := NewExpander(testutil.NewFakeRunner())

	group := manifestGroup(t)
	require.NoError(t, os.Remove(group.ProfilesPath))

	_, err := expander.Expand(context.Background(), group)
	assert.ErrorIs(t, err, dbt.ErrProfilesNotFound)
}

func TestExpander_UnknownProfileSurfaced(t *testing.T) {
	expander := NewExpander(testutil.NewFakeRunner())

	group := manifestGroup(t)
	group.ProfileName = "warehouse"

	_, err := expander.Expand(context.Background(), group)
	require.Error(t, err)
	assert.ErrorIs(t, err, dbt.ErrProfileNotFound)

	// The error names the entries the profiles file does define.
	assert.Contains(t, err.Error(), "data_pipeline")
}

func TestExpander_UnknownTargetSurfaced(t *testing.T) {
	expander := NewExpander(testutil.NewFakeRunner())

	group := manifestGroup(t)
	group.TargetName = "staging"

	_, err := expander.Expand(context.Background(), group)
	require.Error(t, err)
	assert.ErrorIs(t, err, dbt.ErrTargetNotFound)
	assert.Contains(t, err.Error(), "dev")
}
