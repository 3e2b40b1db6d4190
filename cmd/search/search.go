// Package search runs library searches from the command line: it wires the
// aggregator client, query cache and registry together, waits for the
// session to settle and writes the results.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lepinkainen/libsearch/internal/aggregator"
	"github.com/lepinkainen/libsearch/internal/cache"
	"github.com/lepinkainen/libsearch/internal/cmdutil"
	"github.com/lepinkainen/libsearch/internal/config"
	liberrors "github.com/lepinkainen/libsearch/internal/errors"
	"github.com/lepinkainen/libsearch/internal/library"
	"github.com/lepinkainen/libsearch/internal/ratelimit"
	"github.com/lepinkainen/libsearch/internal/registry"
	"github.com/lepinkainen/libsearch/internal/session"
	"github.com/lepinkainen/libsearch/internal/tui"
)

// Options describes one search invocation.
type Options struct {
	Slot        library.Slot
	Query       library.Query
	Format      string
	Output      cmdutil.OutputConfig
	Interactive bool
	// Timeout overrides session.ceiling when non-zero.
	Timeout time.Duration
	NoCache bool
	Stdout  io.Writer
}

var (
	watchSession = tui.Watch
	openCache    = cache.OpenFromConfig
)

func (o Options) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}

func newClient() *aggregator.Client {
	var limiter *ratelimit.Limiter
	if config.AggregatorRateLimit > 0 {
		limiter = ratelimit.New("Unitrad", config.AggregatorRateLimit)
	}
	return aggregator.NewClient(
		aggregator.WithBaseURL(config.AggregatorBaseURL),
		aggregator.WithRegion(config.AggregatorRegion),
		aggregator.WithRateLimiter(limiter),
	)
}

// newRegistry builds the registry and returns a cleanup func that closes
// it together with the cache.
func newRegistry(ctx context.Context, opts Options) (*registry.Registry, func()) {
	ceiling := config.SessionCeiling
	if opts.Timeout > 0 {
		ceiling = opts.Timeout
	}

	factory := registry.NewFactory(newClient(),
		session.WithPollInterval(config.PollInterval),
		session.WithCeiling(ceiling),
	)

	regOpts := []registry.Option{
		registry.WithReuseCompleted(config.ReuseCompleted),
		registry.WithCacheTTL(config.CacheTTL),
	}

	var store cache.Store
	if !opts.NoCache {
		var err error
		store, err = openCache(ctx)
		if err != nil {
			slog.Warn("Query cache unavailable, continuing without it", "error", err)
			store = nil
		} else {
			regOpts = append(regOpts, registry.WithCache(store))
		}
	}

	reg := registry.New(factory, regOpts...)
	return reg, func() {
		reg.Close()
		if store != nil {
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close query cache", "error", err)
			}
		}
	}
}

func progressObserver(q library.Query) session.Observer {
	label := library.QueryString(q)
	return func(snap library.Snapshot, state session.State) {
		slog.Info("Search progress", "query", label, "state", state.String(),
			"holdings", len(snap.Records), "count", snap.Count)
	}
}

// Run submits the query, waits for the session and writes its results.
// Partial results are written even when the search fails or is cancelled.
func Run(ctx context.Context, opts Options) error {
	if err := opts.Query.Validate(); err != nil {
		return err
	}
	if opts.Slot == "" {
		opts.Slot = library.SlotFor(opts.Query.Mode)
	}
	if opts.Output.ConfigKey == "" {
		opts.Output.ConfigKey = string(opts.Slot)
	}

	reg, cleanup := newRegistry(ctx, opts)
	defer cleanup()

	var sessOpts []session.Option
	if !opts.Interactive {
		sessOpts = append(sessOpts, session.WithObserver(progressObserver(opts.Query)))
	}

	sess, err := reg.Submit(ctx, opts.Slot, opts.Query, sessOpts...)
	if err != nil {
		return err
	}

	if opts.Interactive {
		result, err := watchSession(ctx, sess)
		if err != nil {
			return fmt.Errorf("interactive viewer failed: %w", err)
		}
		switch result.Action {
		case tui.ActionStopped:
			sess.Cancel()
			return liberrors.NewStopProcessingError("search stopped by user")
		case tui.ActionSelected:
			return writeSelection(opts, *result.Selection)
		}
	}

	snap, waitErr := sess.Wait(ctx)
	res := newResult(opts.Slot, opts.Query, sess.State(), snap, waitErr)

	if err := writeResult(opts, res); err != nil {
		return err
	}

	if waitErr != nil {
		if errors.Is(waitErr, session.ErrCancelled) || errors.Is(waitErr, context.Canceled) {
			return fmt.Errorf("search cancelled after %d holdings: %w", len(snap.Records), waitErr)
		}
		return fmt.Errorf("search failed: %w", waitErr)
	}

	if err := exportHoldings(res); err != nil {
		slog.Warn("Failed to export holdings", "error", err)
	}
	return nil
}

// Lookup finds the first holding of isbn and writes it.
func Lookup(ctx context.Context, isbn string, opts Options) error {
	opts.Query = library.ISBN(isbn)
	opts.Slot = library.SlotBook
	if err := opts.Query.Validate(); err != nil {
		return err
	}

	reg, cleanup := newRegistry(ctx, opts)
	defer cleanup()

	record, err := reg.Lookup(ctx, isbn)
	if errors.Is(err, registry.ErrBookNotFound) {
		return fmt.Errorf("no library holds ISBN %s: %w", isbn, err)
	}
	if err != nil {
		return err
	}

	return writeSelection(opts, *record)
}
