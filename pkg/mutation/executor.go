package mutation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agora-dev/agora/internal/errors"
	"github.com/agora-dev/agora/pkg/loop"
)

// State is the lifecycle state of a mutation slot.
type State int

const (
	// Idle is the state of a key that has never run.
	Idle State = iota

	// Pending indicates the work function is in flight.
	Pending

	// Succeeded indicates the last run completed without error.
	Succeeded

	// Failed indicates the last run returned an error.
	Failed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrBusy matches the error Execute returns while a key is Pending.
var ErrBusy = errors.ErrBusy

// Result is the settled outcome of one execution.
type Result struct {
	Value any
	Err   error
}

// slot tracks the lifecycle of one key.
type slot struct {
	state   State
	seq     uint64
	lastErr error
}

// Executor serializes mutations per key and settles them on an event loop.
type Executor struct {
	loop    loop.Dispatcher
	ctx     context.Context
	logger  *slog.Logger
	metrics *Metrics

	mu    sync.Mutex
	slots map[string]*slot

	seq atomic.Uint64
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records executions in m.
func WithMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithBaseContext sets the context passed to work functions. Handle.Cancel
// never cancels it.
func WithBaseContext(ctx context.Context) ExecutorOption {
	return func(e *Executor) {
		if ctx != nil {
			e.ctx = ctx
		}
	}
}

// NewExecutor creates an Executor that settles mutations on d.
func NewExecutor(d loop.Dispatcher, opts ...ExecutorOption) *Executor {
	e := &Executor{
		loop:   d,
		ctx:    context.Background(),
		logger: slog.Default(),
		slots:  make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute starts do for key. It returns a Busy error, without calling do,
// if key is already Pending.
func (e *Executor) Execute(key string, do func(ctx context.Context) (any, error), opts ...Option) (*Handle, error) {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	name := cfg.name
	if name == "" {
		name = "mutation"
	}

	e.mu.Lock()
	s := e.slots[key]
	if s == nil {
		s = &slot{}
		e.slots[key] = s
	}
	if s.state == Pending {
		e.mu.Unlock()
		e.logger.Debug("mutation dropped while pending", "key", key, "name", name)
		e.metrics.observeBusy(name)
		return nil, errors.New("A141").WithDetail("key " + key + " is pending")
	}
	seq := e.seq.Add(1)
	s.state = Pending
	s.seq = seq
	s.lastErr = nil
	e.mu.Unlock()

	h := &Handle{
		key:  key,
		seq:  seq,
		done: make(chan struct{}),
	}

	if cfg.onStart != nil {
		cfg.onStart()
	}
	e.metrics.started(name)
	e.logger.Debug("mutation started", "key", key, "name", name, "seq", seq)

	start := time.Now()
	go func() {
		value, err := do(e.ctx)
		elapsed := time.Since(start)

		if !e.loop.Dispatch(func() {
			e.settle(h, name, cfg, Result{Value: value, Err: err}, elapsed)
		}) {
			// The loop is gone; nobody is left to observe callbacks.
			e.logger.Warn("mutation settled after loop closed", "key", key, "name", name)
			e.metrics.finished(name, "dropped", elapsed)
			e.finish(h, Result{Value: value, Err: errors.New("A142").Wrap(err)}, true)
		}
	}()

	return h, nil
}

// settle runs on the loop. The callback runs before the slot leaves Pending,
// so a callback cannot start a second run for the same key. The slot is
// released even if the callback panics.
func (e *Executor) settle(h *Handle, name string, cfg options, res Result, elapsed time.Duration) {
	outcome := "success"
	if res.Err != nil {
		outcome = "error"
	}
	defer func() {
		e.metrics.finished(name, outcome, elapsed)
		e.finish(h, res, false)
	}()

	switch {
	case h.cancelled.Load():
		e.logger.Debug("mutation settled without observer", "key", h.key, "name", name, "outcome", outcome)
		outcome = "cancelled"
	case res.Err != nil:
		e.logger.Warn("mutation failed", "key", h.key, "name", name, "error", res.Err)
		if cfg.onError != nil {
			cfg.onError(res.Err)
		}
	default:
		e.logger.Debug("mutation succeeded", "key", h.key, "name", name, "elapsed", elapsed)
		if cfg.onSuccess != nil {
			cfg.onSuccess(res.Value)
		}
	}
}

// finish records the final slot state and releases waiters.
func (e *Executor) finish(h *Handle, res Result, dropped bool) {
	e.mu.Lock()
	if s := e.slots[h.key]; s != nil && s.seq == h.seq {
		if res.Err != nil || dropped {
			s.state = Failed
			s.lastErr = res.Err
		} else {
			s.state = Succeeded
		}
	}
	e.mu.Unlock()

	h.once.Do(func() {
		h.result = res
		close(h.done)
	})
}

// State returns the lifecycle state of key.
func (e *Executor) State(key string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.slots[key]; s != nil {
		return s.state
	}
	return Idle
}

// Dispatcher returns the loop settlements run on.
func (e *Executor) Dispatcher() loop.Dispatcher {
	return e.loop
}

// IsPending reports whether key has a mutation in flight.
func (e *Executor) IsPending(key string) bool {
	return e.State(key) == Pending
}

// LastError returns the error of key's last failed run, or nil.
func (e *Executor) LastError(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.slots[key]; s != nil {
		return s.lastErr
	}
	return nil
}

// Reset returns a settled key to Idle. Pending keys are left untouched.
func (e *Executor) Reset(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.slots[key]; s != nil && s.state != Pending {
		delete(e.slots, key)
	}
}

// Handle observes one execution.
type Handle struct {
	key       string
	seq       uint64
	cancelled atomic.Bool

	once   sync.Once
	done   chan struct{}
	result Result
}

// Key returns the key the handle was started for.
func (h *Handle) Key() string {
	return h.key
}

// Cancel suppresses the callbacks of this execution. The in-flight request
// is not aborted and the key stays Pending until it settles.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// Done is closed when the execution settles.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the execution settles or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
