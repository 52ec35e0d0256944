// Package executor runs an expanded task group in dependency order by
// invoking the dbt CLI once per task.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/dbt"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/eventbus"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/events"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/otelhelper"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/persistence"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/taskgroup"
)

// Executor expands and executes workflows. Concurrency bounds how many
// tasks run at once within a run; the default of 1 matches dbt's own
// project-level locking.
type Executor struct {
	runner      dbt.CommandRunner
	expander    *taskgroup.Expander
	eventBus    eventbus.EventBus
	persistence persistence.Persistence
	tracer      trace.Tracer
	logger      *slog.Logger
	concurrency int
}

type Option func(*Executor)

// WithConcurrency sets the per-run task parallelism.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTracer sets the tracer used for run and task spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func NewExecutor(
	runner dbt.CommandRunner,
	eventBus eventbus.EventBus,
	store persistence.Persistence,
	logger *slog.Logger,
	opts ...Option,
) *Executor {
	executor := &Executor{
		runner:      runner,
		expander:    taskgroup.NewExpander(runner),
		eventBus:    eventBus,
		persistence: store,
		tracer:      noop.NewTracerProvider().Tracer("executor"),
		logger:      logger.With("module", "executor"),
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute materializes one run of the workflow for the given logical
// date: expand, walk the graph, persist and publish as it goes. The
// returned run carries the per-task results; the error is non-nil only
// for infrastructure failures, not for task failures (those are in the
// run status).
func (e *Executor) Execute(
	ctx context.Context,
	workflow *models.Workflow,
	trigger models.TriggerKind,
	logicalDate time.Time,
) (*models.Run, error) {
	logger := e.logger.With("workflow_id", workflow.ID, "logical_date", logicalDate.Format(time.RFC3339))

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "pipeline.run",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.TriggerKindKey, string(trigger)),
		attribute.String(otelhelper.LogicalDateKey, logicalDate.Format(time.RFC3339)),
	)
	defer span.End()

	e.publish(ctx, workflow.ID, events.RunTriggered{
		BaseEvent:   events.NewBaseEvent(events.RunTriggeredEvent, workflow.ID, ""),
		Trigger:     trigger,
		LogicalDate: logicalDate,
	})

	graph, err := e.expander.Expand(ctx, workflow.TaskGroup)
	if err != nil {
		otelhelper.SetError(span, err)
		e.publish(ctx, workflow.ID, events.RunFailed{
			BaseEvent: events.NewBaseEvent(events.RunFailedEvent, workflow.ID, ""),
			Error:     err.Error(),
		})

		return nil, fmt.Errorf("failed to expand task group for %s: %w", workflow.ID, err)
	}

	run := newRun(workflow, trigger, logicalDate, graph)
	span.SetAttributes(attribute.String(otelhelper.RunIDKey, run.ID))
	logger = logger.With("run_id", run.ID)

	if err := e.persistence.RunRepository().Save(ctx, run); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to persist run %s: %w", run.ID, err)
	}

	logger.InfoContext(ctx, "Run started", "tasks", graph.Len())
	e.publish(ctx, workflow.ID, events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, workflow.ID, run.ID),
		LogicalDate: logicalDate,
		TaskCount:   graph.Len(),
	})

	anyFailed := e.executeTasks(ctx, workflow, run, graph)

	if anyFailed {
		run.Finish(models.RunStatusFailed)
	} else {
		run.Finish(models.RunStatusSuccess)
	}

	if err := e.persistence.RunRepository().Save(ctx, run); err != nil {
		otelhelper.SetError(span, err)

		return run, fmt.Errorf("failed to persist run %s: %w", run.ID, err)
	}

	duration := run.FinishedAt.Sub(run.StartedAt)

	if anyFailed {
		logger.WarnContext(ctx, "Run failed", "duration", duration)
		otelhelper.SetError(span, fmt.Errorf("run %s failed", run.ID))
		e.publish(ctx, workflow.ID, events.RunFailed{
			BaseEvent: events.NewBaseEvent(events.RunFailedEvent, workflow.ID, run.ID),
			Error:     "one or more tasks failed",
			Duration:  duration,
		})
	} else {
		logger.InfoContext(ctx, "Run completed", "duration", duration)
		e.publish(ctx, workflow.ID, events.RunCompleted{
			BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, workflow.ID, run.ID),
			Duration:  duration,
		})
	}

	return run, nil
}

func newRun(workflow *models.Workflow, trigger models.TriggerKind, logicalDate time.Time, graph *dbt.Graph) *models.Run {
	tasks := graph.Ordered()
	results := make(map[string]*models.TaskResult, len(tasks))

	for _, task := range tasks {
		results[task.ID] = &models.TaskResult{TaskID: task.ID, Status: models.TaskStatusPending}
	}

	return &models.Run{
		ID:          uuid.New().String(),
		WorkflowID:  workflow.ID,
		LogicalDate: logicalDate.UTC(),
		Trigger:     trigger,
		Status:      models.RunStatusRunning,
		Tasks:       tasks,
		Results:     results,
		StartedAt:   time.Now().UTC(),
	}
}

type taskOutcome struct {
	taskID string
	status models.TaskStatus
	errMsg string
}

// executeTasks walks the graph with a bounded worker pool. A failed
// task marks its transitive downstream upstream_failed; independent
// branches keep running. Returns whether any task failed.
func (e *Executor) executeTasks(
	ctx context.Context,
	workflow *models.Workflow,
	run *models.Run,
	graph *dbt.Graph,
) bool {
	remainingDeps := make(map[string]int, graph.Len())
	halted := make(map[string]bool)

	var ready []string

	for _, task := range graph.Ordered() {
		remainingDeps[task.ID] = len(task.DependsOn)
		if len(task.DependsOn) == 0 {
			ready = append(ready, task.ID)
		}
	}

	sort.Strings(ready)

	outcomes := make(chan taskOutcome)
	running := 0
	anyFailed := false

	for running > 0 || len(ready) > 0 {
		for len(ready) > 0 && running < e.concurrency {
			taskID := ready[0]
			ready = ready[1:]
			running++

			task, _ := graph.Task(taskID)
			e.markStarted(ctx, workflow, run, task)

			go func(task *models.Task) {
				status, errMsg := e.runTask(ctx, workflow, run, task)
				outcomes <- taskOutcome{taskID: task.ID, status: status, errMsg: errMsg}
			}(task)
		}

		outcome := <-outcomes
		running--

		e.markFinished(ctx, workflow, run, outcome)

		if outcome.status == models.TaskStatusSuccess {
			released := make([]string, 0)

			for _, dependent := range graph.Dependents(outcome.taskID) {
				remainingDeps[dependent]--
				if remainingDeps[dependent] == 0 && !halted[dependent] {
					released = append(released, dependent)
				}
			}

			if len(released) > 0 {
				ready = append(ready, released...)
				sort.Strings(ready)
			}

			continue
		}

		anyFailed = true

		for _, downstream := range graph.Downstream(outcome.taskID) {
			result := run.Results[downstream]
			if halted[downstream] || result.Status != models.TaskStatusPending {
				continue
			}

			halted[downstream] = true
			result.Status = models.TaskStatusUpstreamFailed

			e.publish(ctx, workflow.ID, events.TaskFinished{
				BaseEvent: events.NewBaseEvent(events.TaskFinishedEvent, workflow.ID, run.ID),
				TaskID:    downstream,
				Status:    models.TaskStatusUpstreamFailed,
			})
		}
	}

	return anyFailed
}

func (e *Executor) markStarted(ctx context.Context, workflow *models.Workflow, run *models.Run, task *models.Task) {
	now := time.Now().UTC()
	result := run.Results[task.ID]
	result.Status = models.TaskStatusRunning
	result.StartedAt = &now

	e.publish(ctx, workflow.ID, events.TaskStarted{
		BaseEvent:    events.NewBaseEvent(events.TaskStartedEvent, workflow.ID, run.ID),
		TaskID:       task.ID,
		ResourceType: task.ResourceType,
	})
}

func (e *Executor) markFinished(ctx context.Context, workflow *models.Workflow, run *models.Run, outcome taskOutcome) {
	now := time.Now().UTC()
	result := run.Results[outcome.taskID]
	result.Status = outcome.status
	result.Error = outcome.errMsg
	result.FinishedAt = &now

	var durationMs int64
	if result.StartedAt != nil {
		durationMs = now.Sub(*result.StartedAt).Milliseconds()
	}

	e.publish(ctx, workflow.ID, events.TaskFinished{
		BaseEvent:  events.NewBaseEvent(events.TaskFinishedEvent, workflow.ID, run.ID),
		TaskID:     outcome.taskID,
		Status:     outcome.status,
		Error:      outcome.errMsg,
		DurationMs: durationMs,
	})

	if err := e.persistence.RunRepository().Save(ctx, run); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist task result", "run_id", run.ID, "task_id", outcome.taskID, "error", err)
	}
}

func (e *Executor) runTask(ctx context.Context, workflow *models.Workflow, run *models.Run, task *models.Task) (models.TaskStatus, string) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "pipeline.task",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.TaskIDKey, task.ID),
		attribute.String(otelhelper.ResourceTypeKey, string(task.ResourceType)),
	)
	defer span.End()

	spec, err := BuildCommand(workflow.TaskGroup, task)
	if err != nil {
		otelhelper.SetError(span, err)

		return models.TaskStatusFailed, err.Error()
	}

	result, err := e.runner.Run(ctx, spec)
	if err != nil {
		otelhelper.SetError(span, err)

		return models.TaskStatusFailed, err.Error()
	}

	if result.ExitCode != 0 {
		errMsg := fmt.Sprintf("dbt exited with code %d: %s", result.ExitCode, lastLine(result.Stderr))
		otelhelper.SetError(span, fmt.Errorf("%s", errMsg))

		return models.TaskStatusFailed, errMsg
	}

	return models.TaskStatusSuccess, ""
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	if err := e.eventBus.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func lastLine(output []byte) string {
	lines := make([]string, 0)

	start := 0
	for i, b := range output {
		if b == '\n' {
			if i > start {
				lines = append(lines, string(output[start:i]))
			}

			start = i + 1
		}
	}

	if start < len(output) {
		lines = append(lines, string(output[start:]))
	}

	if len(lines) == 0 {
		return ""
	}

	return lines[len(lines)-1]
}
