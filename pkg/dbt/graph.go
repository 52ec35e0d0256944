package dbt

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
)

var (
	ErrCyclicGraph    = errors.New("task graph contains a cycle")
	ErrUnknownTask    = errors.New("unknown task")
	ErrDuplicateTask  = errors.New("duplicate task id")
	ErrDanglingEdge   = errors.New("dependency on unknown task")
	ErrEmptyTaskGroup = errors.New("task group expanded to zero tasks")
)

// Graph is an immutable DAG over tasks with a precomputed, stable
// topological order (ties broken by task ID).
type Graph struct {
	tasks      map[string]*models.Task
	dependents map[string][]string
	order      []string
}

// NewGraph validates the edges and computes the topological order.
func NewGraph(tasks []*models.Task) (*Graph, error) {
	if len(tasks) == 0 {
		return nil, ErrEmptyTaskGroup
	}

	graph := &Graph{
		tasks:      make(map[string]*models.Task, len(tasks)),
		dependents: make(map[string][]string),
	}

	for _, task := range tasks {
		if _, exists := graph.tasks[task.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
		}

		graph.tasks[task.ID] = task
	}

	indegree := make(map[string]int, len(tasks))
	for _, task := range tasks {
		indegree[task.ID] = 0
	}

	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if _, ok := graph.tasks[dep]; !ok {
				return nil, fmt.Errorf("%w: %s -> %s", ErrDanglingEdge, task.ID, dep)
			}

			graph.dependents[dep] = append(graph.dependents[dep], task.ID)
			indegree[task.ID]++
		}
	}

	for dep := range graph.dependents {
		sort.Strings(graph.dependents[dep])
	}

	// Kahn's algorithm with a sorted ready set for determinism.
	ready := make([]string, 0, len(tasks))

	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	sort.Strings(ready)

	order := make([]string, 0, len(tasks))

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := make([]string, 0)

		for _, dependent := range graph.dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}

		if len(released) > 0 {
			ready = append(ready, released...)
			sort.Strings(ready)
		}
	}

	if len(order) != len(tasks) {
		remaining := make([]string, 0)

		for id, deg := range indegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}

		sort.Strings(remaining)

		return nil, fmt.Errorf("%w: involving %s", ErrCyclicGraph, strings.Join(remaining, ", "))
	}

	graph.order = order

	return graph, nil
}

// Ordered returns the tasks in topological order.
func (g *Graph) Ordered() []*models.Task {
	tasks := make([]*models.Task, len(g.order))
	for i, id := range g.order {
		tasks[i] = g.tasks[id]
	}

	return tasks
}

// Task returns a task by ID.
func (g *Graph) Task(id string) (*models.Task, error) {
	task, ok := g.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}

	return task, nil
}

// Dependents returns the direct dependents of a task, sorted.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// Downstream returns every transitive dependent of a task, sorted.
func (g *Graph) Downstream(id string) []string {
	seen := make(map[string]bool)
	queue := append([]string(nil), g.dependents[id]...)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if seen[current] {
			continue
		}

		seen[current] = true
		queue = append(queue, g.dependents[current]...)
	}

	downstream := make([]string, 0, len(seen))
	for taskID := range seen {
		downstream = append(downstream, taskID)
	}

	sort.Strings(downstream)

	return downstream
}

// Roots returns the tasks with no dependencies, in order.
func (g *Graph) Roots() []*models.Task {
	roots := make([]*models.Task, 0)

	for _, id := range g.order {
		if len(g.tasks[id].DependsOn) == 0 {
			roots = append(roots, g.tasks[id])
		}
	}

	return roots
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.order)
}
