package dbt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
)

var ErrManifestNotFound = errors.New("manifest not found; run `dbt compile` or choose the dbt-ls load method")

type manifestNode struct {
	Name         string   `json:"name"`
	ResourceType string   `json:"resource_type"`
	Tags         []string `json:"tags"`
	DependsOn    struct {
		Nodes []string `json:"nodes"`
	} `json:"depends_on"`
}

type manifestFile struct {
	Nodes map[string]manifestNode `json:"nodes"`
}

// LoadManifest reads target/manifest.json from a project directory and
// returns the executable tasks. Edges pointing outside the executable
// set (sources, macros) are dropped.
func LoadManifest(projectDir string) ([]*models.Task, error) {
	path := filepath.Join(projectDir, "target", "manifest.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}

		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var manifest manifestFile
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return tasksFromNodes(manifest.Nodes), nil
}

func tasksFromNodes(nodes map[string]manifestNode) []*models.Task {
	included := make(map[string]bool, len(nodes))

	for id, node := range nodes {
		if models.ExecutableResourceTypes[models.ResourceType(node.ResourceType)] {
			included[id] = true
		}
	}

	tasks := make([]*models.Task, 0, len(included))

	for id, node := range nodes {
		if !included[id] {
			continue
		}

		task := &models.Task{
			ID:           id,
			Name:         node.Name,
			ResourceType: models.ResourceType(node.ResourceType),
			Tags:         node.Tags,
		}

		for _, dep := range node.DependsOn.Nodes {
			if included[dep] {
				task.DependsOn = append(task.DependsOn, dep)
			}
		}

		tasks = append(tasks, task)
	}

	return tasks
}
