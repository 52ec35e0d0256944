// Package persistence defines the storage contracts for run history
// and schedule state.
package persistence

import (
	"context"
	"errors"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
)

var (
	// ErrRunNotFound is returned when a run does not exist.
	ErrRunNotFound = errors.New("run not found")
	// ErrScheduleNotFound is returned when no schedule state exists
	// for a workflow yet.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// RunRepository stores run history.
type RunRepository interface {
	Save(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, runID string) (*models.Run, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Run, error)
}

// ScheduleRepository stores per-workflow scheduling state, keyed by
// workflow identifier.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	GetByWorkflowID(ctx context.Context, workflowID string) (*models.Schedule, error)
}

// Persistence is the storage root.
type Persistence interface {
	RunRepository() RunRepository
	ScheduleRepository() ScheduleRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
