// Package session drives one search against the aggregator from the
// initial request, through the 500 ms polling loop, to completion,
// cancellation or failure.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lepinkainen/libsearch/internal/accumulator"
	liberrors "github.com/lepinkainen/libsearch/internal/errors"
	"github.com/lepinkainen/libsearch/internal/library"
	"github.com/lepinkainen/libsearch/internal/ratelimit"
)

// DefaultPollInterval is the aggregator's expected fan-out latency.
const DefaultPollInterval = 500 * time.Millisecond

// ErrCancelled is returned by Wait for sessions that were cancelled.
var ErrCancelled = errors.New("search session cancelled")

// Aggregator is the remote side of the protocol.
type Aggregator interface {
	// Search starts a session and returns its first snapshot.
	Search(ctx context.Context, q library.Query) (*library.Snapshot, error)
	// Poll returns the diff after version, or nil, nil when nothing is ready.
	Poll(ctx context.Context, uuid string, version int) (*library.DiffBatch, error)
}

// Observer receives every published snapshot together with the state it
// was published in. Observers are called sequentially from the session's
// goroutine and are never called once the session is cancelled.
type Observer func(snap library.Snapshot, state State)

type subscription struct {
	id int
	fn Observer
}

// Session is a single run of the search protocol. All mutation happens on
// the goroutine executing Run; other goroutines only read.
type Session struct {
	id           string
	query        library.Query
	agg          Aggregator
	pollInterval time.Duration
	ceiling      time.Duration
	logger       *slog.Logger

	mu      sync.RWMutex
	state   State
	err     error
	snap    library.Snapshot
	started bool
	abort   context.CancelFunc
	// ceilingFirst is set when the ceiling expires before any deadline
	// inherited from the caller.
	ceilingFirst bool

	notifyMu  sync.Mutex
	observers []subscription
	nextSub   int
	done      chan struct{}
	doneOnce sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithPollInterval overrides the wait between polls.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithCeiling fails the session with a TimeoutError if it has not finished
// after d. Zero means no ceiling.
func WithCeiling(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.ceiling = d
		}
	}
}

// WithObserver registers an observer for published snapshots.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observers = append(s.observers, subscription{id: s.nextSub, fn: o})
			s.nextSub++
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a pending session for q. Nothing happens until Run or Start.
func New(agg Aggregator, q library.Query, opts ...Option) *Session {
	s := &Session{
		id:           uuid.NewString(),
		query:        q,
		agg:          agg,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
		state:        StatePending,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id, "mode", q.Mode.String())
	return s
}

// NewCompleted creates a session that is already complete with snap, for
// results served from the query cache.
func NewCompleted(q library.Query, snap library.Snapshot, opts ...Option) *Session {
	s := New(nil, q, opts...)
	snap = snap.Clone()
	snap.Running = false
	s.snap = snap
	s.state = StateComplete
	s.started = true
	s.finish()
	return s
}

// ID returns the local identifier used in logs.
func (s *Session) ID() string { return s.id }

// Query returns the query this session runs.
func (s *Session) Query() library.Query { return s.query }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the failure cause for Failed sessions.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Snapshot returns a copy of the latest accumulated results.
func (s *Session) Snapshot() library.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session is terminal or ctx ends. Complete sessions
// return a nil error, cancelled ones ErrCancelled, failed ones their cause.
// The snapshot is returned in every case so partial results stay usable.
func (s *Session) Wait(ctx context.Context) (library.Snapshot, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case StateCancelled:
		return s.snap.Clone(), ErrCancelled
	case StateFailed:
		return s.snap.Clone(), s.err
	default:
		return s.snap.Clone(), nil
	}
}

// Subscribe registers o after construction. Unless the session is still
// pending or was cancelled, o is called once with the current snapshot
// before Subscribe returns. The returned func removes o and must not be
// called from inside an observer.
func (s *Session) Subscribe(o Observer) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.observers = append(s.observers, subscription{id: id, fn: o})

	if state := s.State(); state != StatePending && state != StateCancelled {
		o(s.Snapshot(), state)
	}

	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Start runs the session on its own goroutine.
func (s *Session) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Cancel moves a live session to Cancelled and abandons its in-flight
// request. Responses that arrive afterwards are discarded.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateCancelled
	abort := s.abort
	s.mu.Unlock()

	if abort != nil {
		abort()
	}
	s.logger.Debug("Search session cancelled")
	s.finish()
}

// Run executes the protocol until the session is terminal. It returns
// immediately if the session has already run or was cancelled.
func (s *Session) Run(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.started = true

	if s.ceiling > 0 {
		parent, ok := ctx.Deadline()
		s.ceilingFirst = !ok || !parent.Before(time.Now().Add(s.ceiling))
		var cancelCeiling context.CancelFunc
		ctx, cancelCeiling = context.WithTimeoutCause(ctx, s.ceiling, liberrors.NewTimeoutError(s.ceiling))
		defer cancelCeiling()
	}
	ctx, abort := context.WithCancel(ctx)
	defer abort()
	s.abort = abort
	s.mu.Unlock()

	s.logger.Debug("Starting search", "query", library.QueryString(s.query))

	snap, err := s.agg.Search(ctx, s.query)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	if !s.applyInitial(*snap) {
		return
	}

	for {
		uuid, version, ok := s.pollTarget()
		if !ok {
			return
		}

		if err := s.sleep(ctx); err != nil {
			s.fail(ctx, err)
			return
		}
		if s.State() != StatePolling {
			return
		}

		diff, err := s.agg.Poll(ctx, uuid, version)
		if err != nil {
			s.fail(ctx, err)
			return
		}
		if diff == nil {
			s.logger.Debug("No update yet", "version", version)
			continue
		}
		if !s.applyDiff(*diff) {
			return
		}
	}
}

// pollTarget returns the uuid and the version to echo on the next poll,
// and false once the session has left Polling.
func (s *Session) pollTarget() (string, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.UUID, s.snap.Version, s.state == StatePolling
}

func (s *Session) sleep(ctx context.Context) error {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Session) applyInitial(snap library.Snapshot) bool {
	s.mu.Lock()
	if s.state != StatePending {
		s.mu.Unlock()
		return false
	}
	s.snap = library.Snapshot{
		UUID:    snap.UUID,
		Version: snap.Version,
		Running: snap.Running,
		Count:   snap.Count,
		Records: accumulator.Merge(nil, library.DiffBatch{Inserted: snap.Records}),
	}
	s.state = StatePolling
	if !snap.Running {
		s.state = StateComplete
	}
	state := s.state
	published := s.snap.Clone()
	s.mu.Unlock()

	s.logger.Debug("Search started", "uuid", snap.UUID, "version", snap.Version, "running", snap.Running,
		"records", len(published.Records), "count", snap.Count)
	s.publish(published, state)
	return true
}

func (s *Session) applyDiff(diff library.DiffBatch) bool {
	s.mu.Lock()
	if s.state != StatePolling {
		s.mu.Unlock()
		return false
	}
	s.snap.Records = accumulator.Merge(s.snap.Records, diff)
	s.snap.Version = diff.Version
	s.snap.Running = diff.Running
	s.snap.Count = diff.Count
	if !diff.Running {
		s.state = StateComplete
	}
	state := s.state
	published := s.snap.Clone()
	s.mu.Unlock()

	s.logger.Debug("Merged diff", "version", diff.Version, "inserted", len(diff.Inserted),
		"removed", len(diff.Removed), "records", len(published.Records), "count", diff.Count)
	s.publish(published, state)
	return true
}

func (s *Session) fail(ctx context.Context, err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}

	switch {
	case ctx.Err() != nil:
		cause := context.Cause(ctx)
		if !liberrors.IsTimeoutError(cause) {
			s.cancelledByContext()
			return
		}
		err = cause
	case errors.Is(err, ratelimit.ErrDeadline):
		// The next request could not start before the deadline.
		if !s.ceilingFirst {
			s.cancelledByContext()
			return
		}
		err = liberrors.NewTimeoutError(s.ceiling)
	}

	s.state = StateFailed
	s.err = err
	published := s.snap.Clone()
	s.mu.Unlock()

	s.logger.Warn("Search session failed", "error", err, "records", len(published.Records))
	s.publish(published, StateFailed)
}

// cancelledByContext ends the session as Cancelled because the caller's
// context ended. s.mu must be held; it is released.
func (s *Session) cancelledByContext() {
	s.state = StateCancelled
	s.mu.Unlock()
	s.logger.Debug("Search session cancelled by context")
	s.finish()
}

// publish notifies observers unless the session was cancelled meanwhile,
// and closes Done on terminal states.
func (s *Session) publish(snap library.Snapshot, state State) {
	s.notifyMu.Lock()
	if s.State() != StateCancelled {
		for _, sub := range s.observers {
			sub.fn(snap.Clone(), state)
		}
	}
	s.notifyMu.Unlock()

	if state.Terminal() {
		s.finish()
	}
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}
