package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// InvalidateCacheCmd removes every cached search result.
type InvalidateCacheCmd struct{}

// Run executes the cache invalidate command
func (c *InvalidateCacheCmd) Run() error {
	ctx := context.Background()

	store, err := OpenFromConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer func() { _ = store.Close() }()

	rowsDeleted, err := store.Invalidate(ctx)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	slog.Info("Cache invalidated successfully", "rows_deleted", rowsDeleted)
	return nil
}

// PruneCacheCmd removes expired entries from backends that keep them.
type PruneCacheCmd struct{}

// Run executes the cache prune command
func (c *PruneCacheCmd) Run() error {
	ctx := context.Background()

	store, err := OpenFromConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer func() { _ = store.Close() }()

	removed, err := Prune(ctx, store)
	if err != nil {
		return err
	}

	slog.Info("Expired cache entries removed", "count", removed)
	return nil
}

// Prune clears expired entries when store supports it. Stores that expire
// entries on their own report zero.
func Prune(ctx context.Context, store Store) (int64, error) {
	pruner, ok := store.(Pruner)
	if !ok {
		slog.Debug("Cache backend has no expired rows to prune")
		return 0, nil
	}
	removed, err := pruner.ClearExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	return removed, nil
}
