package executor

import (
	"fmt"
	"path/filepath"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/dbt"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
)

// subcommands maps a resource type to the dbt subcommand that executes
// it.
var subcommands = map[models.ResourceType]string{
	models.ResourceTypeModel:    "run",
	models.ResourceTypeSeed:     "seed",
	models.ResourceTypeSnapshot: "snapshot",
	models.ResourceTypeTest:     "test",
}

// BuildCommand builds the dbt invocation for one task. Every command
// carries the project dir, profiles dir, profile and target from the
// task group verbatim.
func BuildCommand(group models.TaskGroup, task *models.Task) (dbt.CommandSpec, error) {
	subcommand, ok := subcommands[task.ResourceType]
	if !ok {
		return dbt.CommandSpec{}, fmt.Errorf("no dbt subcommand for resource type %q", task.ResourceType)
	}

	binary := "dbt"
	if group.ExecutionMode == models.ExecutionModeVenv {
		binary = dbt.DbtBinary(group.VenvPath)
	}

	return dbt.CommandSpec{
		Binary: binary,
		Args: []string{
			subcommand,
			"--select", task.Name,
			"--project-dir", group.ProjectDir,
			"--profiles-dir", filepath.Dir(group.ProfilesPath),
			"--profile", group.ProfileName,
			"--target", group.TargetName,
		},
		Dir: group.ProjectDir,
	}, nil
}
