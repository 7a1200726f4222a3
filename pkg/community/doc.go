// Package community is the application layer of the board: it runs the
// post, comment and report mutations through a keyed executor, serves the
// post, list and detail views from the query store, and owns the fixed
// invalidation plan of every mutation.
//
// A like on post 42 marks exactly ["post",42], ["posts"], ["myPosts"] and
// ["myLikes"] stale, along with the tracked page keys under those groups:
//
//	svc := community.NewService(client, exec, store,
//	    community.WithNotifier(toasts),
//	)
//	like := svc.Like(post)
//	like.Toggle()
//
// Failures are reported through the notifier. Busy mutations, dropped
// because the same subject already has one in flight, are not.
package community
