// Package scheduler wires the catalog, triggers and executor into the
// long-running scheduling process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/catalog"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/executor"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/persistence"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/triggers/queue"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/triggers/schedule"
)

// Scheduler owns one cron trigger per catalog entry plus the optional
// queue trigger for externally requested runs.
type Scheduler struct {
	catalog     *catalog.Catalog
	executor    *executor.Executor
	persistence persistence.Persistence
	logger      *slog.Logger

	redisURL  string
	queueName string

	triggers     []*schedule.Trigger
	queueTrigger *queue.Trigger
}

type Option func(*Scheduler)

// WithQueue enables the Redis queue trigger.
func WithQueue(redisURL, queueName string) Option {
	return func(s *Scheduler) {
		s.redisURL = redisURL
		s.queueName = queueName
	}
}

func NewScheduler(
	cat *catalog.Catalog,
	exec *executor.Executor,
	store persistence.Persistence,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	scheduler := &Scheduler{
		catalog:     cat,
		executor:    exec,
		persistence: store,
		logger:      logger.With("module", "scheduler"),
	}

	for _, opt := range opts {
		opt(scheduler)
	}

	return scheduler
}

// Start runs catchup for every workflow, then installs the cron
// triggers and, when configured, the queue trigger. It returns once
// everything is installed; the caller blocks on its context.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, workflow := range s.catalog.List() {
		if err := s.startWorkflow(ctx, workflow); err != nil {
			return err
		}
	}

	if s.redisURL != "" {
		trigger, err := queue.NewTrigger(s.redisURL, s.queueName, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create queue trigger: %w", err)
		}

		if err := trigger.Start(ctx, s.handleRunRequest); err != nil {
			return fmt.Errorf("failed to start queue trigger: %w", err)
		}

		s.queueTrigger = trigger
	}

	s.logger.InfoContext(ctx, "Scheduler started", "workflows", s.catalog.Len())

	return nil
}

func (s *Scheduler) startWorkflow(ctx context.Context, workflow *models.Workflow) error {
	state, err := s.loadOrCreateSchedule(ctx, workflow)
	if err != nil {
		return err
	}

	// Catchup: run the intervals missed while the scheduler was down.
	due, err := state.DuePeriods(time.Now().UTC())
	if err != nil {
		return err
	}

	for _, logicalDate := range due {
		s.logger.InfoContext(ctx, "Backfilling missed interval",
			"workflow_id", workflow.ID, "logical_date", logicalDate)

		if err := s.runScheduled(ctx, workflow, state, logicalDate); err != nil {
			s.logger.ErrorContext(ctx, "Backfill run failed",
				"workflow_id", workflow.ID, "logical_date", logicalDate, "error", err)
		}
	}

	trigger, err := schedule.NewTrigger(workflow.ID, workflow.Schedule, state.StartDate, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create schedule trigger for %s: %w", workflow.ID, err)
	}

	callback := func(ctx context.Context, logicalDate time.Time) error {
		return s.runScheduled(ctx, workflow, state, logicalDate)
	}

	if err := trigger.Start(ctx, callback); err != nil {
		return fmt.Errorf("failed to start schedule trigger for %s: %w", workflow.ID, err)
	}

	s.triggers = append(s.triggers, trigger)

	return nil
}

func (s *Scheduler) loadOrCreateSchedule(ctx context.Context, workflow *models.Workflow) (*models.Schedule, error) {
	state, err := s.persistence.ScheduleRepository().GetByWorkflowID(ctx, workflow.ID)
	if err == nil {
		// The definition may have changed since the state was written.
		state.CronExpression = workflow.Schedule
		state.StartDate = workflow.StartDate.UTC()
		state.Catchup = workflow.Catchup

		return state, nil
	}

	if !errors.Is(err, persistence.ErrScheduleNotFound) {
		return nil, err
	}

	state, err = models.NewSchedule(workflow)
	if err != nil {
		return nil, err
	}

	if err := s.persistence.ScheduleRepository().Save(ctx, state); err != nil {
		return nil, err
	}

	return state, nil
}

func (s *Scheduler) runScheduled(
	ctx context.Context,
	workflow *models.Workflow,
	state *models.Schedule,
	logicalDate time.Time,
) error {
	_, execErr := s.executor.Execute(ctx, workflow, models.TriggerKindSchedule, logicalDate)

	// The watermark advances even for failed runs; an interval is
	// triggered once, retrying it is an operator decision.
	if err := state.MarkTriggered(logicalDate); err != nil {
		return err
	}

	if err := s.persistence.ScheduleRepository().Save(ctx, state); err != nil {
		return err
	}

	return execErr
}

func (s *Scheduler) handleRunRequest(ctx context.Context, request queue.RunRequest) error {
	workflow, err := s.catalog.Get(request.WorkflowID)
	if err != nil {
		return err
	}

	logicalDate := time.Now().UTC()
	if request.LogicalDate != nil {
		logicalDate = request.LogicalDate.UTC()
	}

	_, err = s.executor.Execute(ctx, workflow, models.TriggerKindQueue, logicalDate)

	return err
}

// Stop shuts down every trigger.
func (s *Scheduler) Stop(ctx context.Context) error {
	var errs []error

	for _, trigger := range s.triggers {
		if err := trigger.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if s.queueTrigger != nil {
		if err := s.queueTrigger.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
