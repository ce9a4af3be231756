package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/planfold/planfold/pkg/cache"
)

// NewCache creates a cache from a URL. A redis URL gets the shared cache;
// empty or anything else gets the in-process one.
func NewCache(ctx context.Context, logger *slog.Logger, url string) cache.Cache {
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		c, err := cache.NewRedisFromURL(ctx, logger, url)
		if err != nil {
			panic(fmt.Errorf("failed to create redis cache: %w", err))
		}

		return c
	}

	return cache.NewMemory()
}
