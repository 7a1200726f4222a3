// Package mutation runs state-changing remote calls with lifecycle tracking.
//
// An Executor keeps one slot per logical key ("like:post:42"). Each slot
// moves through Idle → Pending → Succeeded | Failed and back to Pending on
// the next Execute. While a slot is Pending, Execute rejects new work for the
// same key with a Busy error and the work function is never called.
//
// The work function runs on its own goroutine. Its outcome is posted to the
// event loop, where exactly one of OnSuccess or OnError runs, once. Callers
// that lose interest call Handle.Cancel: the request is not aborted, but no
// callback fires when it settles.
//
// # Example
//
//	exec := mutation.NewExecutor(l, mutation.WithLogger(logger))
//
//	h, err := mutation.Run(exec, "like:post:42",
//	    func(ctx context.Context) (remote.LikeResult, error) {
//	        return client.LikePost(ctx, 42)
//	    },
//	    mutation.Callbacks[remote.LikeResult]{
//	        Name:      "post:like",
//	        OnSuccess: func(r remote.LikeResult) { ... },
//	        OnError:   func(err error) { ... },
//	    },
//	)
//	if errors.Is(err, mutation.ErrBusy) {
//	    return // a like for this post is already in flight
//	}
//
//	res, _ := h.Wait(ctx) // or rely on the callbacks
package mutation
