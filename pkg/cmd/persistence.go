package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/persistence/memory"
	"github.com/planfold/planfold/pkg/persistence/postgresql"
)

// NewPersistence creates a persistence layer from a database URL. A
// postgres URL gets the real store; anything else falls back to the
// in-memory one.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create postgresql persistence: %w", err))
		}

		return p
	}

	return memory.NewPersistence()
}
