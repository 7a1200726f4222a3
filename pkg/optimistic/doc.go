// Package optimistic shows the result of a like toggle before the server
// confirms it.
//
// A Reconciler holds the {liked, count} state of one post. Toggle takes a
// snapshot, shows the predicted state immediately and sends the request
// through a mutation.Executor:
//
//	r := optimistic.NewReconciler(post.ID,
//	    optimistic.State{Liked: post.Liked, LikeCount: post.LikeCount},
//	    exec, likeFunc,
//	    optimistic.WithInvalidation(store, community.PlanLike(post.ID)),
//	)
//	r.Subscribe(func(s optimistic.State) { render(s) })
//	r.Toggle()
//
// On success the server's state replaces the prediction and the query
// groups of the plan are invalidated. On failure the snapshot is restored
// exactly. While a toggle is in flight further toggles are ignored, so a
// prediction is always one step away from a settled state.
package optimistic
