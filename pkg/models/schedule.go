package models

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is the persisted scheduling state of one workflow. It holds
// the cron expression, the precomputed next execution time and the
// watermark of the last triggered logical date, which together drive
// start-date gating and catchup decisions across restarts.
type Schedule struct {
	// WorkflowID identifies the workflow this schedule belongs to
	WorkflowID string `json:"workflow_id" validate:"required"`

	// CronExpression defines when this schedule triggers. Standard
	// 5-field format or a descriptor such as @daily.
	CronExpression string `json:"cron_expression" validate:"required"`

	// StartDate is the earliest logical date eligible to run
	StartDate time.Time `json:"start_date"`

	// Catchup controls whether missed intervals are backfilled
	Catchup bool `json:"catchup"`

	// NextDueAt is the precomputed next execution time
	NextDueAt time.Time `json:"next_due_at"`

	// LastRunAt is the most recent logical date already triggered
	LastRunAt time.Time `json:"last_run_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSchedule creates scheduling state for a workflow with the first
// execution time precomputed. The watermark is seeded from the start
// date so a fresh schedule never reaches back before it.
func NewSchedule(workflow *Workflow) (*Schedule, error) {
	spec, err := cron.ParseStandard(workflow.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	now := time.Now().UTC()
	schedule := &Schedule{
		WorkflowID:     workflow.ID,
		CronExpression: workflow.Schedule,
		StartDate:      workflow.StartDate.UTC(),
		Catchup:        workflow.Catchup,
		LastRunAt:      workflow.StartDate.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	schedule.NextDueAt = spec.Next(now)

	return schedule, nil
}

// DuePeriods returns the logical dates that should run at the given
// instant: every cron fire time after the watermark (and not before
// the start date) up to now. With catchup disabled only the most
// recent missed interval survives; older ones are discarded.
func (s *Schedule) DuePeriods(now time.Time) ([]time.Time, error) {
	spec, err := cron.ParseStandard(s.CronExpression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	cursor := s.LastRunAt
	if cursor.Before(s.StartDate) {
		cursor = s.StartDate
	}

	var due []time.Time

	for {
		next := spec.Next(cursor)
		if next.After(now) {
			break
		}

		due = append(due, next)
		cursor = next
	}

	if !s.Catchup && len(due) > 1 {
		due = due[len(due)-1:]
	}

	return due, nil
}

// MarkTriggered advances the watermark past the given logical date and
// recomputes the next execution time.
func (s *Schedule) MarkTriggered(logicalDate time.Time) error {
	spec, err := cron.ParseStandard(s.CronExpression)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	if logicalDate.After(s.LastRunAt) {
		s.LastRunAt = logicalDate
	}

	s.NextDueAt = spec.Next(s.LastRunAt)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue checks if this schedule is due for execution at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return !s.NextDueAt.After(now)
}
