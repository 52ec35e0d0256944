package dbt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
)

func task(id string, deps ...string) *models.Task {
	return &models.Task{
		ID:           id,
		Name:         id,
		ResourceType: models.ResourceTypeModel,
		DependsOn:    deps,
	}
}

func TestNewGraph_TopologicalOrder(t *testing.T) {
	graph, err := NewGraph([]*models.Task{
		task("model.p.mart", "model.p.stg_a", "model.p.stg_b"),
		task("model.p.stg_b", "model.p.raw"),
		task("model.p.stg_a", "model.p.raw"),
		task("model.p.raw"),
	})
	require.NoError(t, err)

	order := make([]string, 0, graph.Len())
	for _, tk := range graph.Ordered() {
		order = append(order, tk.ID)
	}

	assert.Equal(t, []string{"model.p.raw", "model.p.stg_a", "model.p.stg_b", "model.p.mart"}, order)
}

func TestNewGraph_OrderRespectsEveryEdge(t *testing.T) {
	graph, err := NewGraph([]*models.Task{
		task("d", "b", "c"),
		task("c", "a"),
		task("b", "a"),
		task("a"),
	})
	require.NoError(t, err)

	position := make(map[string]int)
	for i, tk := range graph.Ordered() {
		position[tk.ID] = i
	}

	for _, tk := range graph.Ordered() {
		for _, dep := range tk.DependsOn {
			assert.Less(t, position[dep], position[tk.ID], "%s must come after %s", tk.ID, dep)
		}
	}
}

func TestNewGraph_CycleDetected(t *testing.T) {
	_, err := NewGraph([]*models.Task{
		task("a", "b"),
		task("b", "a"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicGraph)
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}

func TestNewGraph_DanglingEdge(t *testing.T) {
	_, err := NewGraph([]*models.Task{
		task("a", "missing"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDanglingEdge)
}

func TestNewGraph_DuplicateTask(t *testing.T) {
	_, err := NewGraph([]*models.Task{
		task("a"),
		task("a"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateTask)
}

func TestNewGraph_Empty(t *testing.T) {
	_, err := NewGraph(nil)
	assert.ErrorIs(t, err, ErrEmptyTaskGroup)
}

func TestGraph_Downstream(t *testing.T) {
	graph, err := NewGraph([]*models.Task{
		task("raw"),
		task("stg", "raw"),
		task("mart", "stg"),
		task("other"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"mart", "stg"}, graph.Downstream("raw"))
	assert.Empty(t, graph.Downstream("mart"))
	assert.Empty(t, graph.Downstream("other"))
}

func TestGraph_Roots(t *testing.T) {
	graph, err := NewGraph([]*models.Task{
		task("raw"),
		task("stg", "raw"),
		task("seed"),
	})
	require.NoError(t, err)

	roots := graph.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "raw", roots[0].ID)
	assert.Equal(t, "seed", roots[1].ID)
}
