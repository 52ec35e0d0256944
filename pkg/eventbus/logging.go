package eventbus

import (
	"context"
	"log/slog"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/events"
)

// RegisterLogging subscribes a handler that logs every run lifecycle
// event. It is the in-process consumer for deployments that have no
// external subscriber attached to the bus.
func RegisterLogging(ctx context.Context, bus EventBus, logger *slog.Logger) error {
	logger = logger.With("module", "event_log")

	handlers := map[events.EventType]EventHandler{
		events.RunTriggeredEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.RunTriggered); ok {
				logger.InfoContext(ctx, "Run triggered",
					"workflow_id", e.WorkflowID, "trigger", e.Trigger, "logical_date", e.LogicalDate)
			}

			return nil
		},
		events.RunStartedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.RunStarted); ok {
				logger.InfoContext(ctx, "Run started",
					"workflow_id", e.WorkflowID, "run_id", e.RunID, "tasks", e.TaskCount)
			}

			return nil
		},
		events.RunCompletedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.RunCompleted); ok {
				logger.InfoContext(ctx, "Run completed",
					"workflow_id", e.WorkflowID, "run_id", e.RunID, "duration", e.Duration)
			}

			return nil
		},
		events.RunFailedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.RunFailed); ok {
				logger.WarnContext(ctx, "Run failed",
					"workflow_id", e.WorkflowID, "run_id", e.RunID, "error", e.Error)
			}

			return nil
		},
		events.TaskStartedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.TaskStarted); ok {
				logger.InfoContext(ctx, "Task started",
					"workflow_id", e.WorkflowID, "run_id", e.RunID,
					"task_id", e.TaskID, "resource_type", e.ResourceType)
			}

			return nil
		},
		events.TaskFinishedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.TaskFinished); ok {
				logger.InfoContext(ctx, "Task finished",
					"workflow_id", e.WorkflowID, "run_id", e.RunID,
					"task_id", e.TaskID, "status", e.Status, "duration_ms", e.DurationMs)
			}

			return nil
		},
	}

	for eventType, handler := range handlers {
		if err := bus.Handle(eventType, handler); err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
