// Package schedule provides the cron trigger that fires workflow runs.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerCallback receives the logical date of a fired interval.
type TriggerCallback func(ctx context.Context, logicalDate time.Time) error

// Trigger fires a callback on a cron schedule. Fires before the start
// date are dropped.
type Trigger struct {
	WorkflowID string
	CronExpr   string
	StartDate  time.Time
	Enabled    bool

	cron     *cron.Cron
	callback TriggerCallback
	logger   *slog.Logger
}

func NewTrigger(workflowID, cronExpr string, startDate time.Time, logger *slog.Logger) (*Trigger, error) {
	trigger := &Trigger{
		WorkflowID: workflowID,
		CronExpr:   cronExpr,
		StartDate:  startDate,
		Enabled:    true,
		logger: logger.With(
			"module", "schedule_trigger",
			"workflow_id", workflowID,
			"cron", cronExpr,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *Trigger) Validate() error {
	if t.WorkflowID == "" {
		return errors.New("schedule trigger workflow ID is required")
	}

	if t.CronExpr == "" {
		return errors.New("schedule trigger cron expression is required")
	}

	if _, err := cron.ParseStandard(t.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

func (t *Trigger) Start(ctx context.Context, callback TriggerCallback) error {
	if !t.Enabled {
		t.logger.Info("Schedule trigger is disabled")

		return nil
	}

	t.logger.Info("Starting schedule trigger")
	t.callback = callback

	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := t.cron.AddFunc(t.CronExpr, t.run)
	if err != nil {
		return fmt.Errorf("failed to add cron job for workflow %s: %w", t.WorkflowID, err)
	}

	t.logger.Info("Added cron job", "entry_id", entryID)
	t.cron.Start()

	return nil
}

func (t *Trigger) run() {
	logicalDate := time.Now().UTC()

	if logicalDate.Before(t.StartDate) {
		t.logger.Info("Skipping fire before start date", "start_date", t.StartDate)

		return
	}

	t.logger.Info("Cron job triggered", "logical_date", logicalDate)

	if err := t.callback(context.Background(), logicalDate); err != nil {
		t.logger.Error("Error executing workflow for trigger", "error", err)
	}
}

func (t *Trigger) Stop(_ context.Context) error {
	t.logger.Info("Stopping schedule trigger")

	if t.cron != nil {
		t.cron.Stop()
	}

	return nil
}
