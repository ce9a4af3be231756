// Package main provides the Planfold scheduler daemon. It polls the active
// recurring-task generators and materializes due occurrences.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/planfold/planfold/pkg/materializer"
)

type Scheduler struct {
	materializer *materializer.Materializer
	logger       *slog.Logger
}

func NewScheduler(m *materializer.Materializer, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		materializer: m,
		logger:       logger,
	}
}

// Run starts the materializer poll loop and blocks until a termination
// signal arrives.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.materializer.Start(ctx); err != nil {
		return err
	}

	s.handleSignals(ctx, cancel)

	<-ctx.Done()

	return nil
}

func (s *Scheduler) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		s.logger.InfoContext(ctx, "Received signal", "signal", sig)
		s.logger.InfoContext(ctx, "Shutting down gracefully...")

		if err := s.materializer.Stop(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to stop materializer", "error", err)
		}

		cancel()
	}()
}
