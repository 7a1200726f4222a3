// Package loop provides the single-consumer event loop that serializes every
// state transition in the agora client.
//
// Work that blocks (network calls) runs on its own goroutine and posts its
// result back with Dispatch. Functions dispatched to a Loop run one at a time,
// in FIFO order, on the loop goroutine, so the state they touch needs no
// further locking.
//
//	l := loop.New(loop.WithLogger(logger))
//	l.Start()
//	defer l.Close()
//
//	go func() {
//	    res, err := client.LikePost(ctx, 42)
//	    l.Dispatch(func() {
//	        // runs on the loop
//	    })
//	}()
package loop

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Do and Flush once the loop has been closed.
var ErrClosed = errors.New("loop: closed")

// Dispatcher schedules fn to run on an event loop.
// It reports false if fn will never run.
type Dispatcher interface {
	Dispatch(fn func()) bool
}

// Loop is a single-goroutine FIFO executor.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	started atomic.Bool

	logger  *slog.Logger
	onPanic func(recovered any)
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for panic reports.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPanicHandler registers a callback invoked after a dispatched function
// panics. The loop keeps running.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(l *Loop) {
		l.onPanic = fn
	}
}

// New creates a Loop. Call Start to begin processing.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the loop goroutine. Calling Start more than once is a no-op.
func (l *Loop) Start() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go l.run()
}

// Dispatch queues fn to run on the loop. It is safe to call from any
// goroutine, including the loop itself. The queue is unbounded so that a
// settling network call can never be dropped.
func (l *Loop) Dispatch(fn func()) bool {
	if fn == nil || l.closed.Load() {
		return false
	}
	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish.
// It must not be called from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Dispatch(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every function dispatched before the call has run.
func (l *Loop) Flush(ctx context.Context) error {
	return l.Do(ctx, func() {})
}

// Close stops the loop after the function currently executing returns.
// Queued functions that have not started are discarded. Close does not wait;
// use Stopped for that. It is safe to call from a dispatched function.
func (l *Loop) Close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	close(l.done)
	if l.started.CompareAndSwap(false, true) {
		// never started: nothing will close stopped
		close(l.stopped)
	}
}

// Done is closed when Close is called.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Stopped is closed once the loop goroutine has exited.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		select {
		case <-l.wake:
			if !l.drain() {
				return
			}
		case <-l.done:
			return
		}
	}
}

// drain runs queued functions until the queue is empty. It returns false if
// the loop was closed while draining.
func (l *Loop) drain() bool {
	for {
		if l.closed.Load() {
			return false
		}
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return true
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.execute(fn)
	}
}

// execute runs fn with panic recovery.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("dispatch panic",
				"panic", r,
				"stack", string(debug.Stack()))
			if l.onPanic != nil {
				l.onPanic(r)
			}
		}
	}()
	fn()
}
