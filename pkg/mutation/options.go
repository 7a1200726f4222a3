package mutation

import "context"

// Option configures a single Execute call.
type Option func(*options)

type options struct {
	name      string
	onStart   func()
	onSuccess func(any)
	onError   func(error)
}

// Name labels the execution in logs and metrics (e.g. "post:like").
// Keep names low-cardinality; never put ids in them.
func Name(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// OnStart registers a callback that runs synchronously inside Execute, after
// the key has moved to Pending and before the work function starts.
func OnStart(fn func()) Option {
	return func(o *options) {
		o.onStart = fn
	}
}

// OnSuccess registers a callback that runs on the loop with the result.
//
// Note: the value is untyped. Use Run for a typed callback.
func OnSuccess(fn func(any)) Option {
	return func(o *options) {
		o.onSuccess = fn
	}
}

// OnError registers a callback that runs on the loop with the error.
func OnError(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// Callbacks are the typed lifecycle hooks accepted by Run.
type Callbacks[T any] struct {
	Name      string
	OnStart   func()
	OnSuccess func(T)
	OnError   func(error)
}

// Run is the typed form of Executor.Execute.
func Run[T any](e *Executor, key string, do func(ctx context.Context) (T, error), cb Callbacks[T]) (*Handle, error) {
	opts := []Option{Name(cb.Name)}
	if cb.OnStart != nil {
		opts = append(opts, OnStart(cb.OnStart))
	}
	if cb.OnSuccess != nil {
		opts = append(opts, OnSuccess(func(v any) {
			t, _ := v.(T)
			cb.OnSuccess(t)
		}))
	}
	if cb.OnError != nil {
		opts = append(opts, OnError(cb.OnError))
	}
	return e.Execute(key, func(ctx context.Context) (any, error) {
		return do(ctx)
	}, opts...)
}

// Value returns res.Value as T.
func Value[T any](res Result) (T, bool) {
	t, ok := res.Value.(T)
	return t, ok
}
