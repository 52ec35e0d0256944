package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "dbt-pipeline",
		Usage:                 "Schedule and run dbt transformation pipelines",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Load and validate every workflow definition",
				Flags: []cli.Flag{
					definitionsDirFlag(),
					logLevelFlag(),
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return runValidate(ctx, command)
				},
			},
			{
				Name:      "tasks",
				Usage:     "Expand a workflow's task group and print the ordered tasks",
				ArgsUsage: "<workflow-id>",
				Flags: []cli.Flag{
					definitionsDirFlag(),
					logLevelFlag(),
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return runTasks(ctx, command)
				},
			},
			{
				Name:      "run",
				Usage:     "Trigger one immediate run of a workflow",
				ArgsUsage: "<workflow-id>",
				Flags: []cli.Flag{
					definitionsDirFlag(),
					databaseURLFlag(),
					eventBusFlag(),
					logLevelFlag(),
					&cli.StringFlag{
						Name:  "logical-date",
						Usage: "Logical date for the run (YYYY-MM-DD, defaults to now)",
					},
					&cli.IntFlag{
						Name:    "concurrency",
						Usage:   "Maximum tasks running at once",
						Value:   1,
						Sources: cli.EnvVars("TASK_CONCURRENCY"),
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return runOnce(ctx, command)
				},
			},
			{
				Name:  "scheduler",
				Usage: "Start the scheduling process",
				Flags: []cli.Flag{
					definitionsDirFlag(),
					databaseURLFlag(),
					eventBusFlag(),
					logLevelFlag(),
					&cli.IntFlag{
						Name:    "concurrency",
						Usage:   "Maximum tasks running at once per run",
						Value:   1,
						Sources: cli.EnvVars("TASK_CONCURRENCY"),
					},
					&cli.BoolFlag{
						Name:    "tracing",
						Usage:   "Export run and task spans over OTLP",
						Sources: cli.EnvVars("TRACING_ENABLED"),
					},
					&cli.StringFlag{
						Name:    "redis-url",
						Usage:   "Redis URL for the external run-request queue (disabled if empty)",
						Sources: cli.EnvVars("REDIS_URL"),
					},
					&cli.StringFlag{
						Name:    "queue",
						Usage:   "Redis list name for run requests",
						Sources: cli.EnvVars("RUN_QUEUE"),
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return runScheduler(ctx, command)
				},
			},
			{
				Name:  "api",
				Usage: "Start the HTTP status API",
				Flags: []cli.Flag{
					definitionsDirFlag(),
					databaseURLFlag(),
					logLevelFlag(),
					&cli.StringFlag{
						Name:    "port",
						Usage:   "Port to listen on",
						Value:   "8080",
						Sources: cli.EnvVars("PORT"),
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return runAPI(ctx, command)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}

func definitionsDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "definitions-dir",
		Aliases: []string{"d"},
		Usage:   "Directory containing workflow definition files",
		Value:   "./definitions",
		Sources: cli.EnvVars("DEFINITIONS_DIR"),
	}
}

func databaseURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database-url",
		Usage:   "Storage URL for run history and schedule state",
		Value:   "file://./data",
		Sources: cli.EnvVars("DATABASE_URL"),
	}
}

func eventBusFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "event-bus",
		Usage:   "Event bus type (memory, kafka)",
		Value:   "memory",
		Sources: cli.EnvVars("EVENT_BUS_TYPE"),
	}
}

func logLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Value:   "info",
		Sources: cli.EnvVars("LOG_LEVEL"),
	}
}
