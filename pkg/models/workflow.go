// Package models defines the core domain models for scheduled dbt pipelines.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ExecutionMode selects how individual dbt commands are invoked.
type ExecutionMode string

const (
	// ExecutionModeLocal runs the dbt binary found on PATH.
	ExecutionModeLocal ExecutionMode = "local"
	// ExecutionModeVenv runs dbt from a Python virtualenv's bin directory.
	ExecutionModeVenv ExecutionMode = "venv"
)

// LoadMethod selects how the task graph of a dbt project is discovered.
type LoadMethod string

const (
	// LoadMethodManifest parses target/manifest.json. Pure filesystem
	// introspection, never executes dbt.
	LoadMethodManifest LoadMethod = "manifest"
	// LoadMethodDbtLs shells out to `dbt ls`. Only permitted at
	// expansion time, never while loading definitions.
	LoadMethodDbtLs LoadMethod = "dbt-ls"
)

// TaskGroup holds the dbt-facing settings of a workflow: where the
// project lives, which connection profile to use, how commands are
// invoked and how the task graph is discovered. Values are carried
// verbatim to the expansion and execution layers.
type TaskGroup struct {
	ProjectDir    string        `json:"project_dir"    yaml:"project_dir"    validate:"required"`
	ProfilesPath  string        `json:"profiles_path"  yaml:"profiles_path"  validate:"required"`
	ProfileName   string        `json:"profile_name"   yaml:"profile_name"   validate:"required"`
	TargetName    string        `json:"target_name"    yaml:"target_name"    validate:"required"`
	ExecutionMode ExecutionMode `json:"execution_mode" yaml:"execution_mode" validate:"required,oneof=local venv"`
	VenvPath      string        `json:"venv_path,omitempty" yaml:"venv_path,omitempty"`
	LoadMethod    LoadMethod    `json:"load_method"    yaml:"load_method"    validate:"required,oneof=manifest dbt-ls"`
	Select        []string      `json:"select,omitempty"  yaml:"select,omitempty"`
	Exclude       []string      `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// Workflow is one scheduled pipeline definition: a schedule bound to a
// dbt task group. Definitions are immutable once loaded; a catalog
// reload replaces them wholesale.
type Workflow struct {
	ID          string    `json:"id"          yaml:"id"          validate:"required,min=3"`
	Description string    `json:"description" yaml:"description"`
	Schedule    string    `json:"schedule"    yaml:"schedule"    validate:"required"`
	StartDate   Date      `json:"start_date"  yaml:"start_date"`
	Catchup     bool      `json:"catchup"     yaml:"catchup"`
	TaskGroup   TaskGroup `json:"task_group"  yaml:"task_group"  validate:"required"`
}

var (
	ErrInvalidWorkflow = errors.New("invalid workflow definition")
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)

// ApplyDefaults fills the documented defaults for omitted settings.
// Execution mode defaults to local, load method to manifest.
func (w *Workflow) ApplyDefaults() {
	if w.TaskGroup.ExecutionMode == "" {
		w.TaskGroup.ExecutionMode = ExecutionModeLocal
	}

	if w.TaskGroup.LoadMethod == "" {
		w.TaskGroup.LoadMethod = LoadMethodManifest
	}
}

// Validate checks structural validity and that the schedule parses.
// It performs no I/O: paths are carried verbatim and checked only at
// expansion time.
func (w *Workflow) Validate(validate *validator.Validate) error {
	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	if _, err := cron.ParseStandard(w.Schedule); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, w.Schedule, err)
	}

	if w.StartDate.IsZero() {
		return fmt.Errorf("%w: start_date is required", ErrInvalidWorkflow)
	}

	if w.TaskGroup.ExecutionMode == ExecutionModeVenv && w.TaskGroup.VenvPath == "" {
		return fmt.Errorf("%w: venv execution mode requires venv_path", ErrInvalidWorkflow)
	}

	return nil
}

// Date is a day-precision timestamp serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.Parse(dateLayout, value.Value)
	if err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", value.Value, err)
	}

	d.Time = parsed

	return nil
}

func (d Date) MarshalYAML() (any, error) {
	return d.Format(dateLayout), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}

	parsed, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}

	d.Time = parsed

	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}
