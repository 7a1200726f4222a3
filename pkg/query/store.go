package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agora-dev/agora/pkg/loop"
)

// Store holds the registered queries of one client together with the Router
// that invalidates them. It is created explicitly and injected; there is no
// package-level store.
type Store struct {
	loop   loop.Dispatcher
	router *Router
	logger *slog.Logger
	ctx    context.Context

	staleTime time.Duration

	mu      sync.Mutex
	queries map[string]any

	flight singleflight.Group
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for the store and its router.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(c *Store) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDefaultStaleTime sets the stale time of queries that do not set their
// own.
func WithDefaultStaleTime(d time.Duration) StoreOption {
	return func(c *Store) {
		c.staleTime = d
	}
}

// WithContext sets the context passed to background refetches.
func WithContext(ctx context.Context) StoreOption {
	return func(c *Store) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// NewStore creates a Store whose notifications run on d.
func NewStore(d loop.Dispatcher, opts ...StoreOption) *Store {
	c := &Store{
		loop:    d,
		logger:  slog.Default(),
		ctx:     context.Background(),
		queries: make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.router = NewRouter(d, WithRouterLogger(c.logger))
	return c
}

// Router returns the store's invalidation router.
func (c *Store) Router() *Router {
	return c.router
}

// Invalidate is shorthand for c.Router().Invalidate(ms...).
func (c *Store) Invalidate(ms ...Matcher) []Key {
	return c.router.Invalidate(ms...)
}

// Subscribe calls fn on the loop whenever a key matched by m is invalidated.
func (c *Store) Subscribe(m Matcher, fn func(Key)) (unsubscribe func()) {
	return c.router.Subscribe(m, fn)
}

// IsStale reports whether k has been invalidated and not refetched since.
func (c *Store) IsStale(k Key) bool {
	return c.router.IsStale(k)
}

// Keys returns the keys of every registered query in string order.
func (c *Store) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]Key, len(c.queries))
	for id, q := range c.queries {
		m[id] = q.(interface{ Key() Key }).Key()
	}
	return sortedKeys(m)
}

// Remove unregisters the query for k and forgets k in the router.
func (c *Store) Remove(k Key) {
	id := k.String()
	c.mu.Lock()
	q, ok := c.queries[id]
	delete(c.queries, id)
	c.mu.Unlock()
	if ok {
		q.(interface{ detach() }).detach()
	}
	c.router.Forget(k)
}

// Register returns the query for key, creating it on first use. Calling
// Register again with the same key returns the existing query; the fetcher
// and options of later calls are ignored.
//
// Register panics if key is already registered with a different data type.
func Register[T any](c *Store, key Key, fetch func(ctx context.Context) (T, error), opts ...QueryOption) *Query[T] {
	id := key.String()

	c.mu.Lock()
	if existing, ok := c.queries[id]; ok {
		c.mu.Unlock()
		q, ok := existing.(*Query[T])
		if !ok {
			panic(fmt.Sprintf("query: key %s registered with type %T", id, existing))
		}
		return q
	}

	cfg := queryConfig{staleTime: c.staleTime}
	for _, opt := range opts {
		opt(&cfg)
	}
	q := &Query[T]{
		store:     c,
		key:       key,
		fetcher:   fetch,
		staleTime: cfg.staleTime,
		retries:   cfg.retryCount,
		retryWait: cfg.retryDelay,
		observers: make(map[uint64]func(*Query[T])),
	}
	c.queries[id] = q
	c.mu.Unlock()

	q.unsubscribe = c.router.Subscribe(Exact(key), func(Key) {
		q.onInvalidate()
	})
	return q
}
