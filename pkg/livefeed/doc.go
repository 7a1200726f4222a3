// Package livefeed keeps cached views current while other users change
// posts. It reads JSON change events from the backend's websocket endpoint
// and hands each one to a Planner, whose matcher is invalidated on the
// query store.
//
//	feed := livefeed.New("wss://api.example.com/events", store, community.PlanForEvent,
//	    livefeed.WithCookieJar(client.Jar()),
//	)
//	go feed.Run(ctx)
package livefeed
