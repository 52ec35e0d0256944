// Package dbt introspects dbt projects from the filesystem and builds
// the executable task graph. Nothing in this package runs dbt except
// the explicit `dbt ls` loader, which goes through CommandRunner.
package dbt

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
)

// CommandSpec describes one dbt invocation.
type CommandSpec struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

// CommandResult carries the outcome of an invocation. ExitCode is -1
// when the process could not be started.
type CommandResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// CommandRunner abstracts subprocess execution so tests can substitute
// a fake and assert that definition loading never invokes dbt.
type CommandRunner interface {
	Run(ctx context.Context, spec CommandSpec) (CommandResult, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, spec CommandSpec) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		ExitCode: -1,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Non-zero exit is an outcome, not a runner error.
		return result, nil
	}

	if err != nil {
		return result, err
	}

	return result, nil
}

// DbtBinary resolves the dbt executable for a venv path; an empty path
// means the binary on PATH.
func DbtBinary(venvPath string) string {
	if venvPath == "" {
		return "dbt"
	}

	return filepath.Join(venvPath, "bin", "dbt")
}
