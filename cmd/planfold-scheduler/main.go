package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"

	cli "github.com/urfave/cli/v3"

	"github.com/planfold/planfold/pkg/cmd"
	"github.com/planfold/planfold/pkg/log"
	"github.com/planfold/planfold/pkg/materializer"
	"github.com/planfold/planfold/pkg/otelhelper"
	"github.com/planfold/planfold/pkg/platform/local"
)

func main() {
	logger := log.WithModule("scheduler")

	command := &cli.Command{
		Name:                  "planfold-scheduler",
		Usage:                 "Materialize recurring tasks on schedule",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Materialization poll cadence",
				Value:   5 * time.Minute,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger.InfoContext(ctx, "Initializing Planfold scheduler")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(
				command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			tracer, err := newTracer(ctx, command.Bool("tracing"))
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			tasks := local.NewTaskStore()

			m := materializer.NewMaterializer(
				persistence.RecurringTasks(),
				tasks,
				eventBus,
				tracer,
				logger,
				command.Duration("poll-interval"),
			)

			scheduler := NewScheduler(m, logger)

			return scheduler.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func newTracer(ctx context.Context, enabled bool) (trace.Tracer, error) {
	if !enabled {
		return nil, nil
	}

	return otelhelper.NewTracer(ctx, "planfold-scheduler")
}
