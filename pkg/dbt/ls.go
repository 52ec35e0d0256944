package dbt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
)

// LsLoader discovers the task graph by running `dbt ls --output json`.
// This executes the dbt CLI, so it is only ever called at expansion
// time; the definition catalog never reaches it.
type LsLoader struct {
	runner CommandRunner
}

func NewLsLoader(runner CommandRunner) *LsLoader {
	return &LsLoader{runner: runner}
}

type lsNode struct {
	UniqueID     string   `json:"unique_id"`
	Name         string   `json:"name"`
	ResourceType string   `json:"resource_type"`
	Tags         []string `json:"tags"`
	DependsOn    struct {
		Nodes []string `json:"nodes"`
	} `json:"depends_on"`
}

// Load runs dbt ls for the given task group and parses the JSON lines
// it emits. dbt prints one JSON document per node; log lines in between
// are skipped.
func (l *LsLoader) Load(ctx context.Context, group models.TaskGroup) ([]*models.Task, error) {
	// Same binary resolution as execution: the venv path only applies
	// in venv mode.
	binary := "dbt"
	if group.ExecutionMode == models.ExecutionModeVenv {
		binary = DbtBinary(group.VenvPath)
	}

	spec := CommandSpec{
		Binary: binary,
		Args: []string{
			"ls",
			"--output", "json",
			"--output-keys", "unique_id name resource_type depends_on tags",
			"--project-dir", group.ProjectDir,
			"--profiles-dir", filepath.Dir(group.ProfilesPath),
			"--profile", group.ProfileName,
			"--target", group.TargetName,
		},
		Dir: group.ProjectDir,
	}

	result, err := l.runner.Run(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("dbt ls failed to start: %w", err)
	}

	if result.ExitCode != 0 {
		return nil, fmt.Errorf("dbt ls exited with code %d: %s", result.ExitCode, bytes.TrimSpace(result.Stderr))
	}

	nodes := make(map[string]manifestNode)
	scanner := bufio.NewScanner(bytes.NewReader(result.Stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var node lsNode
		if err := json.Unmarshal(line, &node); err != nil {
			return nil, fmt.Errorf("failed to parse dbt ls output line: %w", err)
		}

		if node.UniqueID == "" {
			continue
		}

		entry := manifestNode{
			Name:         node.Name,
			ResourceType: node.ResourceType,
			Tags:         node.Tags,
		}
		entry.DependsOn.Nodes = node.DependsOn.Nodes
		nodes[node.UniqueID] = entry
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dbt ls output: %w", err)
	}

	return tasksFromNodes(nodes), nil
}
