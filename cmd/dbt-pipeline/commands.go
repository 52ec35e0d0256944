package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/api"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/catalog"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/cmd"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/dbt"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/eventbus"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/executor"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/log"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/otelhelper"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/scheduler"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/taskgroup"
)

func newCatalog(ctx context.Context, command *cli.Command) (*catalog.Catalog, error) {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("dbt-pipeline")

	cat, err := catalog.New(command.String("definitions-dir"), logger)
	if err != nil {
		return nil, err
	}

	if err := cat.Load(ctx); err != nil {
		return nil, err
	}

	return cat, nil
}

func runValidate(ctx context.Context, command *cli.Command) error {
	cat, err := newCatalog(ctx, command)
	if err != nil {
		fmt.Printf("invalid definitions:\n%v\n", err)

		return err
	}

	for _, workflow := range cat.List() {
		fmt.Printf("%s\tschedule=%s start_date=%s catchup=%t project=%s\n",
			workflow.ID,
			workflow.Schedule,
			workflow.StartDate.Format("2006-01-02"),
			workflow.Catchup,
			workflow.TaskGroup.ProjectDir,
		)
	}

	fmt.Printf("%d workflow(s) valid\n", cat.Len())

	return nil
}

func runTasks(ctx context.Context, command *cli.Command) error {
	workflowID := command.Args().First()
	if workflowID == "" {
		return errors.New("workflow id argument is required")
	}

	cat, err := newCatalog(ctx, command)
	if err != nil {
		return err
	}

	workflow, err := cat.Get(workflowID)
	if err != nil {
		return err
	}

	graph, err := taskgroup.NewExpander(dbt.NewExecRunner()).Expand(ctx, workflow.TaskGroup)
	if err != nil {
		return err
	}

	for _, task := range graph.Ordered() {
		fmt.Printf("%s\t%s\tdepends_on=%v\n", task.ResourceType, task.ID, task.DependsOn)
	}

	return nil
}

func runOnce(ctx context.Context, command *cli.Command) error {
	cat, err := newCatalog(ctx, command)
	if err != nil {
		return err
	}

	workflow, err := cat.Get(command.Args().First())
	if err != nil {
		return err
	}

	logicalDate := time.Now().UTC()

	if raw := command.String("logical-date"); raw != "" {
		logicalDate, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return fmt.Errorf("invalid logical date %q: %w", raw, err)
		}
	}

	logger := log.WithModule("dbt-pipeline")

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	store := cmd.NewPersistence(command.String("database-url"))
	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	exec := executor.NewExecutor(
		dbt.NewExecRunner(),
		eventBus,
		store,
		logger,
		executor.WithConcurrency(command.Int("concurrency")),
	)

	run, err := exec.Execute(ctx, workflow, models.TriggerKindManual, logicalDate)
	if err != nil {
		return err
	}

	fmt.Printf("run %s finished with status %s\n", run.ID, run.Status)

	if run.Status == models.RunStatusFailed {
		return errors.New("run failed")
	}

	return nil
}

func runScheduler(ctx context.Context, command *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := newCatalog(ctx, command)
	if err != nil {
		return err
	}

	logger := log.WithModule("dbt-pipeline-scheduler")

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	if err := eventbus.RegisterLogging(ctx, eventBus, logger); err != nil {
		return fmt.Errorf("failed to subscribe event logging: %w", err)
	}

	store := cmd.NewPersistence(command.String("database-url"))
	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	executorOpts := []executor.Option{
		executor.WithConcurrency(command.Int("concurrency")),
	}

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "dbt-pipeline")
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}

		executorOpts = append(executorOpts, executor.WithTracer(tracer))
	}

	exec := executor.NewExecutor(dbt.NewExecRunner(), eventBus, store, logger, executorOpts...)

	schedulerOpts := []scheduler.Option{}
	if redisURL := command.String("redis-url"); redisURL != "" {
		schedulerOpts = append(schedulerOpts, scheduler.WithQueue(redisURL, command.String("queue")))
	}

	sched := scheduler.NewScheduler(cat, exec, store, logger, schedulerOpts...)

	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return sched.Stop(shutdownCtx)
}

func runAPI(ctx context.Context, command *cli.Command) error {
	cat, err := newCatalog(ctx, command)
	if err != nil {
		return err
	}

	logger := log.WithModule("dbt-pipeline-api")

	store := cmd.NewPersistence(command.String("database-url"))
	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	app := api.NewApp(api.NewHandlers(cat, store, logger))

	return app.Listen(":" + command.String("port"))
}
