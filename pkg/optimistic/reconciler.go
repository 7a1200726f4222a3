package optimistic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agora-dev/agora/pkg/mutation"
	"github.com/agora-dev/agora/pkg/query"
)

// LikeFunc performs the like (like=true) or unlike request for postID and
// returns the server's authoritative state.
type LikeFunc func(ctx context.Context, postID int, like bool) (State, error)

// Invalidator marks query groups stale. *query.Router and *query.Store
// implement it.
type Invalidator interface {
	Invalidate(ms ...query.Matcher) []query.Key
}

// Key returns the mutation key used for postID's likes.
func Key(postID int) string {
	return fmt.Sprintf("like:post:%d", postID)
}

// Reconciler owns the like state of one post. It shows a prediction as
// soon as Toggle is called, then replaces it with the server's answer or
// restores the snapshot taken before the toggle.
//
// Toggle and the callbacks run on the executor's loop. State and Phase may
// be read from any goroutine.
type Reconciler struct {
	postID int
	key    string
	exec   *mutation.Executor
	like   LikeFunc
	logger *slog.Logger

	invalidator Invalidator
	plan        query.Matcher
	onError     func(error)
	onSettled   func(State, error)

	mu       sync.Mutex
	state    State
	phase    Phase
	snapshot *Snapshot
	handle   *mutation.Handle
	subs     map[uint64]func(State)
	nextSub  uint64
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithInvalidation marks plan stale through inv after every successful
// toggle.
func WithInvalidation(inv Invalidator, plan query.Matcher) Option {
	return func(r *Reconciler) {
		r.invalidator = inv
		r.plan = plan
	}
}

// WithErrorHandler receives the error of every failed toggle after the
// rollback. Toggle itself never returns it.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Reconciler) {
		r.onError = fn
	}
}

// WithSettled is called after every settlement with the resulting state.
func WithSettled(fn func(State, error)) Option {
	return func(r *Reconciler) {
		r.onSettled = fn
	}
}

// WithLogger sets the reconciler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler creates a Reconciler for postID starting from initial.
func NewReconciler(postID int, initial State, exec *mutation.Executor, like LikeFunc, opts ...Option) *Reconciler {
	r := &Reconciler{
		postID: postID,
		key:    Key(postID),
		exec:   exec,
		like:   like,
		logger: slog.Default(),
		state:  initial.normalized(),
		subs:   make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PostID returns the post the reconciler manages.
func (r *Reconciler) PostID() int {
	return r.postID
}

// State returns the state currently shown.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Phase returns the current phase.
func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Pending reports whether a toggle is in flight.
func (r *Reconciler) Pending() bool {
	return r.exec.IsPending(r.key)
}

// Toggle flips the like state. It reports false, changing nothing, while a
// previous toggle is still in flight.
func (r *Reconciler) Toggle() bool {
	var predicted State
	h, err := r.exec.Execute(r.key,
		func(ctx context.Context) (any, error) {
			return r.like(ctx, r.postID, predicted.Liked)
		},
		mutation.Name(likeName(!r.State().Liked)),
		mutation.OnStart(func() {
			predicted = r.predict()
		}),
		mutation.OnSuccess(func(v any) {
			server, _ := v.(State)
			r.reconcile(server)
		}),
		mutation.OnError(func(err error) {
			r.rollback(err)
		}),
	)
	if err != nil {
		r.logger.Debug("toggle ignored", "post_id", r.postID, "error", err)
		return false
	}

	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()
	return true
}

// Sync adopts s as the authoritative state, e.g. after the post was
// refetched. It is ignored while a toggle is in flight.
func (r *Reconciler) Sync(s State) bool {
	if r.Pending() {
		return false
	}
	r.mu.Lock()
	r.state = s.normalized()
	r.mu.Unlock()
	r.publish()
	return true
}

// Subscribe calls fn on the loop with every new state.
func (r *Reconciler) Subscribe(fn func(State)) (unsubscribe func()) {
	r.mu.Lock()
	r.nextSub++
	id := r.nextSub
	r.subs[id] = fn
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

// Close stops observing an in-flight toggle. The request still completes
// but its result is not applied.
func (r *Reconciler) Close() {
	r.mu.Lock()
	h := r.handle
	r.subs = make(map[uint64]func(State))
	r.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}

// Wait blocks until the in-flight toggle, if any, has settled.
func (r *Reconciler) Wait(ctx context.Context) error {
	r.mu.Lock()
	h := r.handle
	r.mu.Unlock()
	if h == nil {
		return nil
	}
	_, err := h.Wait(ctx)
	return err
}

func (r *Reconciler) predict() State {
	r.mu.Lock()
	snap := Snapshot{state: r.state}
	r.snapshot = &snap
	r.state = Predict(r.state)
	r.phase = PhasePredicting
	predicted := r.state
	r.mu.Unlock()

	r.logger.Debug("like predicted", "post_id", r.postID, "from", snap.state.String(), "to", predicted.String())
	r.publish()
	return predicted
}

func (r *Reconciler) reconcile(server State) {
	r.mu.Lock()
	r.state = server.normalized()
	r.phase = PhaseReconciled
	r.snapshot = nil
	state := r.state
	r.mu.Unlock()

	r.logger.Debug("like reconciled", "post_id", r.postID, "state", state.String())
	r.publish()
	if r.invalidator != nil && r.plan != nil {
		r.invalidator.Invalidate(r.plan)
	}
	if r.onSettled != nil {
		r.onSettled(state, nil)
	}
}

func (r *Reconciler) rollback(err error) {
	r.mu.Lock()
	if r.snapshot != nil {
		r.state = r.snapshot.state
	}
	r.phase = PhaseIdle
	r.snapshot = nil
	state := r.state
	r.mu.Unlock()

	r.logger.Info("like rolled back", "post_id", r.postID, "state", state.String(), "error", err)
	r.publish()
	if r.onError != nil {
		r.onError(err)
	}
	if r.onSettled != nil {
		r.onSettled(state, err)
	}
}

func (r *Reconciler) publish() {
	r.mu.Lock()
	if len(r.subs) == 0 {
		r.mu.Unlock()
		return
	}
	state := r.state
	fns := make([]func(State), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	r.exec.Dispatcher().Dispatch(func() {
		for _, fn := range fns {
			fn(state)
		}
	})
}

func likeName(like bool) string {
	if like {
		return "like"
	}
	return "unlike"
}
