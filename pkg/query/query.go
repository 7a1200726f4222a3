package query

import (
	"context"
	"sync"
	"time"
)

// State represents the current state of a query.
type State int

const (
	Pending State = iota // Initial state, before first fetch
	Loading              // Fetch in progress
	Ready                // Data successfully loaded
	Error                // Fetch failed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// QueryOption configures a query at registration.
type QueryOption func(*queryConfig)

type queryConfig struct {
	staleTime  time.Duration
	retryCount int
	retryDelay time.Duration
}

// StaleTime sets how long fetched data counts as fresh. Zero means every
// Fetch refetches.
func StaleTime(d time.Duration) QueryOption {
	return func(c *queryConfig) {
		c.staleTime = d
	}
}

// RetryOnError sets the number of retries and the delay between them.
func RetryOnError(count int, delay time.Duration) QueryOption {
	return func(c *queryConfig) {
		c.retryCount = count
		c.retryDelay = delay
	}
}

// Query is one cached view of server data, identified by a Key.
type Query[T any] struct {
	store     *Store
	key       Key
	fetcher   func(ctx context.Context) (T, error)
	staleTime time.Duration
	retries   int
	retryWait time.Duration

	mu        sync.Mutex
	state     State
	data      T
	err       error
	lastFetch time.Time
	fetchID   uint64 // for ignoring outdated fetches
	observers map[uint64]func(*Query[T])
	nextObs   uint64

	unsubscribe func()
}

// Key returns the query's key.
func (q *Query[T]) Key() Key {
	return q.key
}

// State returns the current state.
func (q *Query[T]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *Query[T]) IsLoading() bool {
	s := q.State()
	return s == Loading || s == Pending
}

func (q *Query[T]) IsReady() bool {
	return q.State() == Ready
}

func (q *Query[T]) IsError() bool {
	return q.State() == Error
}

// Data returns the last successfully fetched data.
func (q *Query[T]) Data() T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.data
}

// DataOr returns the data if the query is ready, fallback otherwise.
func (q *Query[T]) DataOr(fallback T) T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == Ready {
		return q.data
	}
	return fallback
}

// Error returns the error of the last failed fetch.
func (q *Query[T]) Error() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// LastFetch returns when the query last settled.
func (q *Query[T]) LastFetch() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastFetch
}

// IsStale reports whether the next Fetch will hit the network: the query
// was invalidated, has no data, or its data is older than the stale time.
func (q *Query[T]) IsStale() bool {
	if q.store.router.IsStale(q.key) {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state != Ready || time.Since(q.lastFetch) >= q.staleTime
}

// Fetch refetches in the background if the query is stale.
func (q *Query[T]) Fetch() {
	if !q.IsStale() {
		return
	}
	q.Refetch()
}

// Refetch fetches in the background, bypassing freshness.
func (q *Query[T]) Refetch() {
	id, gen := q.begin()
	go q.run(q.store.ctx, id, gen)
}

// Load returns fresh data, fetching on the caller's goroutine when the
// query is stale.
func (q *Query[T]) Load(ctx context.Context) (T, error) {
	if !q.IsStale() {
		return q.Data(), nil
	}
	id, gen := q.begin()
	return q.run(ctx, id, gen)
}

// Invalidate marks this query's key stale through the router.
func (q *Query[T]) Invalidate() {
	q.store.router.Invalidate(Exact(q.key))
}

// SetData replaces the cached data locally without a fetch.
func (q *Query[T]) SetData(fn func(T) T) {
	q.mu.Lock()
	q.data = fn(q.data)
	if q.state != Ready {
		q.state = Ready
		q.lastFetch = time.Now()
	}
	q.mu.Unlock()
	q.notify()
}

// Observe registers fn to run on the loop after every state change and
// fetches if the query is stale. While a query has observers, invalidations
// refetch it immediately; unobserved queries only record the stale mark.
func (q *Query[T]) Observe(fn func(*Query[T])) (stop func()) {
	q.mu.Lock()
	q.nextObs++
	id := q.nextObs
	q.observers[id] = fn
	q.mu.Unlock()

	q.Fetch()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.observers, id)
			q.mu.Unlock()
		})
	}
}

// Observed reports whether the query has observers.
func (q *Query[T]) Observed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.observers) > 0
}

// onInvalidate runs on the loop.
func (q *Query[T]) onInvalidate() {
	if q.Observed() {
		q.Refetch()
	}
}

func (q *Query[T]) detach() {
	if q.unsubscribe != nil {
		q.unsubscribe()
	}
}

func (q *Query[T]) begin() (id, gen uint64) {
	gen = q.store.router.Generation(q.key)
	q.mu.Lock()
	q.fetchID++
	id = q.fetchID
	q.state = Loading
	q.err = nil
	q.mu.Unlock()
	q.notify()
	return id, gen
}

func (q *Query[T]) run(ctx context.Context, id, gen uint64) (T, error) {
	v, err, _ := q.store.flight.Do(q.key.String(), func() (any, error) {
		return q.fetchWithRetry(ctx)
	})
	result, _ := v.(T)

	q.mu.Lock()
	if q.fetchID != id {
		// a newer fetch owns the state
		q.mu.Unlock()
		return result, err
	}
	q.lastFetch = time.Now()
	if err != nil {
		q.err = err
		q.state = Error
	} else {
		q.data = result
		q.state = Ready
	}
	q.mu.Unlock()

	if err == nil {
		q.store.router.markFreshAt(q.key, gen)
	} else {
		q.store.logger.Debug("query fetch failed", "key", q.key.String(), "error", err)
	}
	q.notify()
	return result, err
}

func (q *Query[T]) fetchWithRetry(ctx context.Context) (T, error) {
	var result T
	var err error
	for attempt := 0; attempt <= q.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(q.retryWait):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
		result, err = q.fetcher(ctx)
		if err == nil {
			return result, nil
		}
	}
	return result, err
}

func (q *Query[T]) notify() {
	q.mu.Lock()
	if len(q.observers) == 0 {
		q.mu.Unlock()
		return
	}
	fns := make([]func(*Query[T]), 0, len(q.observers))
	for _, fn := range q.observers {
		fns = append(fns, fn)
	}
	q.mu.Unlock()

	q.store.loop.Dispatch(func() {
		for _, fn := range fns {
			fn(q)
		}
	})
}
