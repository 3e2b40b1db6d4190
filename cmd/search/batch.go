package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/libsearch/internal/csvutil"
	"github.com/lepinkainen/libsearch/internal/library"
	"github.com/lepinkainen/libsearch/internal/session"
)

// RunBatch runs every query in a CSV file one after another. Column names
// are query parameters (free, isbn, title, author, ...). Rows that do not
// decode to a query are skipped with a warning.
func RunBatch(ctx context.Context, path string, opts Options) error {
	queries, err := csvutil.ProcessCSV(path, library.Decode, csvutil.ProcessorOptions{
		Comment:     '#',
		SkipInvalid: true,
	})
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return fmt.Errorf("no queries found in %s", path)
	}
	if opts.Output.ConfigKey == "" {
		opts.Output.ConfigKey = "batch"
	}

	reg, cleanup := newRegistry(ctx, opts)
	defer cleanup()

	results := make([]Result, 0, len(queries))
	failed := 0

	for i, q := range queries {
		if ctx.Err() != nil {
			break
		}

		slot := library.SlotFor(q.Mode)
		sess, err := reg.Submit(ctx, slot, q, session.WithObserver(progressObserver(q)))
		if err != nil {
			return err
		}

		snap, waitErr := sess.Wait(ctx)
		res := newResult(slot, q, sess.State(), snap, waitErr)
		results = append(results, res)

		if waitErr != nil {
			failed++
			slog.Warn("Batch query did not complete", "row", i+1, "query", res.Query, "error", waitErr)
			continue
		}
		if err := exportHoldings(res); err != nil {
			slog.Warn("Failed to export holdings", "query", res.Query, "error", err)
		}
	}

	if err := render(opts.stdout(), opts.Format, results); err != nil {
		return err
	}
	if err := writeFiles(opts, results); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch cancelled after %d of %d queries: %w", len(results), len(queries), err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d batch queries failed", failed, len(queries))
	}
	return nil
}
