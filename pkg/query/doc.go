// Package query caches server reads under hierarchical keys and invalidates
// them after mutations.
//
// A Key is an ordered tuple such as ["post", 42] or ["myLikes"]. Mutations
// never touch cached data directly; they describe which groups became stale
// with a Matcher and hand it to the Router:
//
//	store.Invalidate(
//	    query.Keys(query.K("post", id), query.K("posts")),
//	    query.Prefix("communityDetail"),
//	)
//
// Invalidate records the stale marks before it returns and schedules
// subscribers on the event loop. Queries with observers refetch in the
// background; concurrent fetches of one key share a single request.
//
// Queries are registered on an injected Store:
//
//	post := query.Register(store, query.K("post", 42), func(ctx context.Context) (remote.Post, error) {
//	    return client.GetPost(ctx, 42)
//	}, query.StaleTime(30*time.Second))
//
//	stop := post.Observe(func(q *query.Query[remote.Post]) {
//	    render(q.DataOr(remote.Post{}))
//	})
//	defer stop()
package query
