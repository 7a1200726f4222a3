package query

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/agora-dev/agora/pkg/loop"
)

// Router is the registry of stale-marked query groups. It owns no cached
// data: successful mutations mark groups stale through it, and views
// subscribe to it to learn when to refetch.
//
// A Router is created per client and passed to the components that need it.
type Router struct {
	loop   loop.Dispatcher
	logger *slog.Logger

	mu     sync.Mutex
	known  map[string]Key
	stale  map[string]Key
	gens   map[string]uint64
	subs   map[uint64]*subscription
	nextID uint64
}

type subscription struct {
	matcher Matcher
	fn      func(Key)
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the router's logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRouter creates a Router that delivers notifications on d.
func NewRouter(d loop.Dispatcher, opts ...RouterOption) *Router {
	r := &Router{
		loop:   d,
		logger: slog.Default(),
		known:  make(map[string]Key),
		stale:  make(map[string]Key),
		gens:   make(map[string]uint64),
		subs:   make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Track makes k visible to prefix and predicate matchers.
func (r *Router) Track(k Key) {
	r.mu.Lock()
	r.known[k.String()] = k
	r.mu.Unlock()
}

// Forget drops k from the registry, e.g. after the resource was deleted.
func (r *Router) Forget(k Key) {
	id := k.String()
	r.mu.Lock()
	delete(r.known, id)
	delete(r.stale, id)
	delete(r.gens, id)
	r.mu.Unlock()
}

// Invalidate marks every group matched by ms as stale and schedules the
// subscribers of those groups on the loop. It returns the marked keys in
// string order. It never waits for subscribers or refetches.
func (r *Router) Invalidate(ms ...Matcher) []Key {
	r.mu.Lock()
	marked := make(map[string]Key)
	for _, m := range ms {
		if lit, ok := m.(literal); ok {
			for _, k := range lit.keys() {
				marked[k.String()] = k
			}
		}
		for id, k := range r.known {
			if m.Match(k) {
				marked[id] = k
			}
		}
	}

	for id, k := range marked {
		r.known[id] = k
		r.stale[id] = k
		r.gens[id]++
	}
	type delivery struct {
		fn  func(Key)
		key Key
	}
	var deliveries []delivery
	keys := sortedKeys(marked)
	for _, k := range keys {
		for _, sub := range r.subs {
			if sub.matcher.Match(k) {
				deliveries = append(deliveries, delivery{fn: sub.fn, key: k})
			}
		}
	}
	r.mu.Unlock()

	if len(keys) > 0 {
		r.logger.Debug("query groups invalidated", "keys", keyStrings(keys), "subscribers", len(deliveries))
	}

	if len(deliveries) > 0 {
		if !r.loop.Dispatch(func() {
			for _, d := range deliveries {
				d.fn(d.key)
			}
		}) {
			r.logger.Debug("invalidation delivery dropped: loop closed")
		}
	}

	return keys
}

// IsStale reports whether k has been invalidated since it was last marked
// fresh.
func (r *Router) IsStale(k Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stale[k.String()]
	return ok
}

// Stale returns every stale key in string order.
func (r *Router) Stale() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.stale)
}

// MarkFresh clears the stale mark on k.
func (r *Router) MarkFresh(k Key) {
	r.mu.Lock()
	delete(r.stale, k.String())
	r.mu.Unlock()
}

// Generation returns the number of times k has been invalidated.
func (r *Router) Generation(k Key) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[k.String()]
}

// markFreshAt clears the stale mark on k unless k was invalidated again
// after gen was read. A fetch that started before an invalidation must not
// hide it.
func (r *Router) markFreshAt(k Key, gen uint64) bool {
	id := k.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[id] != gen {
		return false
	}
	delete(r.stale, id)
	return true
}

// Subscribe calls fn on the loop for every invalidated key m matches.
// Literal matchers (Exact, Keys) also Track their keys.
func (r *Router) Subscribe(m Matcher, fn func(Key)) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[id] = &subscription{matcher: m, fn: fn}
	if lit, ok := m.(literal); ok {
		for _, k := range lit.keys() {
			r.known[k.String()] = k
		}
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}

func sortedKeys(m map[string]Key) []Key {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Key, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}

func keyStrings(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
