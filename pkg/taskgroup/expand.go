// Package taskgroup expands a workflow's task-group configuration into
// the ordered task graph, delegating discovery to the configured load
// method.
package taskgroup

import (
	"context"
	"fmt"
	"strings"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/dbt"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
)

// Expander turns a task-group configuration into a Graph.
type Expander struct {
	runner dbt.CommandRunner
}

func NewExpander(runner dbt.CommandRunner) *Expander {
	return &Expander{runner: runner}
}

// Expand discovers the project's executable nodes, applies the
// select/exclude lists and returns the dependency graph. This is the
// only place dbt may be invoked outside of execution, and only when
// the group explicitly chose the dbt-ls load method.
func (e *Expander) Expand(ctx context.Context, group models.TaskGroup) (*dbt.Graph, error) {
	// Pre-flight the project and the connection profile. Paths are
	// carried verbatim through definition load, so a bad profile or
	// target surfaces here, with the available entries named, instead
	// of as a dbt CLI error mid-run.
	if _, err := dbt.LoadProject(group.ProjectDir); err != nil {
		return nil, err
	}

	profiles, err := dbt.LoadProfiles(group.ProfilesPath)
	if err != nil {
		return nil, err
	}

	if _, err := profiles.Select(group.ProfileName, group.TargetName); err != nil {
		return nil, err
	}

	var tasks []*models.Task

	switch group.LoadMethod {
	case models.LoadMethodManifest:
		tasks, err = dbt.LoadManifest(group.ProjectDir)
	case models.LoadMethodDbtLs:
		tasks, err = dbt.NewLsLoader(e.runner).Load(ctx, group)
	default:
		return nil, fmt.Errorf("unknown load method: %q", group.LoadMethod)
	}

	if err != nil {
		return nil, err
	}

	tasks = filterTasks(tasks, group.Select, group.Exclude)

	return dbt.NewGraph(tasks)
}

// filterTasks applies select/exclude selectors. A selector matches a
// task by name or, with a "tag:" prefix, by tag. Edges to filtered-out
// tasks are dropped so the remaining graph stays well-formed.
func filterTasks(tasks []*models.Task, selects, excludes []string) []*models.Task {
	if len(selects) == 0 && len(excludes) == 0 {
		return tasks
	}

	kept := make(map[string]bool, len(tasks))

	for _, task := range tasks {
		keep := len(selects) == 0 || matchesAny(task, selects)
		if keep && matchesAny(task, excludes) {
			keep = false
		}

		kept[task.ID] = keep
	}

	filtered := make([]*models.Task, 0, len(tasks))

	for _, task := range tasks {
		if !kept[task.ID] {
			continue
		}

		deps := make([]string, 0, len(task.DependsOn))

		for _, dep := range task.DependsOn {
			if kept[dep] {
				deps = append(deps, dep)
			}
		}

		task.DependsOn = deps
		filtered = append(filtered, task)
	}

	return filtered
}

func matchesAny(task *models.Task, selectors []string) bool {
	for _, selector := range selectors {
		if tag, ok := strings.CutPrefix(selector, "tag:"); ok {
			for _, taskTag := range task.Tags {
				if taskTag == tag {
					return true
				}
			}

			continue
		}

		if task.Name == selector {
			return true
		}
	}

	return false
}
