// Package registry keeps at most one live search session per slot and
// short-circuits repeated queries through the query cache.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lepinkainen/libsearch/internal/cache"
	"github.com/lepinkainen/libsearch/internal/library"
	"github.com/lepinkainen/libsearch/internal/session"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("registry is closed")
	// ErrBookNotFound is returned by Lookup when no library holds the ISBN.
	ErrBookNotFound = errors.New("book not found")
)

// cacheWriteTimeout bounds a completion write to the query cache.
const cacheWriteTimeout = 5 * time.Second

// SessionFactory creates a pending session for q.
type SessionFactory func(q library.Query, opts ...session.Option) *session.Session

// NewFactory returns a factory creating sessions against agg with the
// given default options.
func NewFactory(agg session.Aggregator, defaults ...session.Option) SessionFactory {
	return func(q library.Query, opts ...session.Option) *session.Session {
		all := make([]session.Option, 0, len(defaults)+len(opts))
		all = append(all, defaults...)
		all = append(all, opts...)
		return session.New(agg, q, all...)
	}
}

// Registry is the slot table. It is safe for concurrent use.
type Registry struct {
	factory        SessionFactory
	store          cache.Store
	cacheTTL       time.Duration
	reuseCompleted bool
	logger         *slog.Logger

	mu     sync.RWMutex
	slots  map[library.Slot]*session.Session
	closed bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithCache persists completed snapshots in store and serves repeated
// queries from it.
func WithCache(store cache.Store) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithCacheTTL sets how long non-empty results are cached. Empty results
// always use cache.NegativeCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.cacheTTL = ttl
	}
}

// WithReuseCompleted controls whether an identical query is answered from
// a completed session or the cache instead of running the protocol again.
func WithReuseCompleted(reuse bool) Option {
	return func(r *Registry) {
		r.reuseCompleted = reuse
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry.
func New(factory SessionFactory, opts ...Option) *Registry {
	r := &Registry{
		factory:        factory,
		cacheTTL:       cache.DefaultCacheTTL,
		reuseCompleted: true,
		logger:         slog.Default(),
		slots:          make(map[library.Slot]*session.Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit makes q the active query of slot and returns its session. Any
// live session in the slot is cancelled first. The swap happens under the
// slot lock, so Get never observes an empty slot in between. The query
// cache is read before the lock is taken. Extra options are applied to
// newly created sessions.
func (r *Registry) Submit(ctx context.Context, slot library.Slot, q library.Query, opts ...session.Option) (*session.Session, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	closed := r.closed
	current := r.slots[slot]
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if r.reusable(current, q) {
		r.logger.Debug("Reusing completed session", "slot", slot, "session", current.ID())
		return current, nil
	}

	key := library.CacheKey(slot, q)
	snap, hit := r.cached(ctx, key)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	// The slot may have changed while the cache was read.
	current = r.slots[slot]
	if r.reusable(current, q) {
		r.logger.Debug("Reusing completed session", "slot", slot, "session", current.ID())
		return current, nil
	}

	if current != nil && !current.State().Terminal() {
		r.logger.Debug("Superseding session", "slot", slot, "session", current.ID())
		current.Cancel()
	}

	if hit {
		sess := session.NewCompleted(q, snap, opts...)
		r.slots[slot] = sess
		r.logger.Debug("Serving search from cache", "slot", slot, "key", key, "records", len(snap.Records))
		return sess, nil
	}

	var sess *session.Session
	hook := session.WithObserver(func(snap library.Snapshot, state session.State) {
		if state == session.StateComplete {
			r.persist(slot, key, sess, snap)
		}
	})
	sess = r.factory(q, append([]session.Option{hook}, opts...)...)
	r.slots[slot] = sess
	sess.Start(ctx)

	r.logger.Debug("Started search session", "slot", slot, "session", sess.ID(), "query", library.QueryString(q))
	return sess, nil
}

// Get returns the session currently occupying slot.
func (r *Registry) Get(slot library.Slot) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.slots[slot]
	return sess, ok
}

// Discard cancels the session in slot and evicts it.
func (r *Registry) Discard(slot library.Slot) {
	r.mu.Lock()
	sess := r.slots[slot]
	delete(r.slots, slot)
	r.mu.Unlock()

	if sess != nil {
		sess.Cancel()
	}
}

// Lookup runs a single-ISBN search in the book slot and returns the first
// holding.
func (r *Registry) Lookup(ctx context.Context, isbn string) (*library.BookRecord, error) {
	sess, err := r.Submit(ctx, library.SlotBook, library.ISBN(isbn))
	if err != nil {
		return nil, err
	}

	snap, err := sess.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if len(snap.Records) == 0 {
		return nil, ErrBookNotFound
	}

	record := snap.Records[0]
	return &record, nil
}

// Close cancels every session. Later submits fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*session.Session, 0, len(r.slots))
	for slot, sess := range r.slots {
		sessions = append(sessions, sess)
		delete(r.slots, slot)
	}
	r.closed = true
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Cancel()
	}
}

func (r *Registry) reusable(current *session.Session, q library.Query) bool {
	return current != nil && r.reuseCompleted && current.State() == session.StateComplete && current.Query().Equal(q)
}

func (r *Registry) cached(ctx context.Context, key string) (library.Snapshot, bool) {
	if r.store == nil || !r.reuseCompleted {
		return library.Snapshot{}, false
	}

	snap, found, err := cache.GetJSON[library.Snapshot](ctx, r.store, key)
	if err != nil {
		r.logger.Warn("Failed to read query cache", "key", key, "error", err)
		return library.Snapshot{}, false
	}
	return snap, found
}

// persist writes a completed snapshot to the cache if sess still owns slot.
func (r *Registry) persist(slot library.Slot, key string, sess *session.Session, snap library.Snapshot) {
	if r.store == nil {
		return
	}

	r.mu.RLock()
	owner := r.slots[slot] == sess
	r.mu.RUnlock()
	if !owner {
		r.logger.Debug("Skipping cache write for superseded session", "slot", slot, "session", sess.ID())
		return
	}

	ttl := cache.SelectNegativeCacheTTL(r.cacheTTL, func(s library.Snapshot) bool {
		return len(s.Records) == 0
	})(snap)

	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := cache.SetJSON(ctx, r.store, key, snap, ttl); err != nil {
		r.logger.Warn("Failed to write query cache", "key", key, "error", err)
		return
	}
	r.logger.Debug("Cached completed search", "key", key, "records", len(snap.Records), "ttl", ttl)
}
