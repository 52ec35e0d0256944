package dbt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var (
	ErrProjectNotFound = errors.New("dbt project not found")
	ErrInvalidProject  = errors.New("invalid dbt project")
)

// Project is the subset of dbt_project.yml this system reads.
type Project struct {
	Name       string   `yaml:"name"`
	Version    string   `yaml:"version"`
	Profile    string   `yaml:"profile"`
	ModelPaths []string `yaml:"model-paths"`
}

// LoadProject parses dbt_project.yml from a project directory.
func LoadProject(projectDir string) (*Project, error) {
	path := filepath.Join(projectDir, "dbt_project.yml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, path)
		}

		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var project Project
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidProject, path, err)
	}

	if project.Name == "" {
		return nil, fmt.Errorf("%w: %s has no project name", ErrInvalidProject, path)
	}

	return &project, nil
}
