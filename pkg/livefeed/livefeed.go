package livefeed

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agora-dev/agora/pkg/query"
)

// EventType names a change made by some client.
type EventType string

const (
	EventPostLiked      EventType = "post.liked"
	EventPostUnliked    EventType = "post.unliked"
	EventPostEdited     EventType = "post.edited"
	EventPostDeleted    EventType = "post.deleted"
	EventCommentCreated EventType = "comment.created"
	EventCommentEdited  EventType = "comment.edited"
	EventCommentDeleted EventType = "comment.deleted"
)

// Event is one change notification.
type Event struct {
	Type      EventType `json:"type"`
	PostID    int       `json:"postId"`
	CommentID int       `json:"commentId,omitempty"`
	At        time.Time `json:"at"`
}

// Planner returns the query groups an event makes stale, or nil.
type Planner func(Event) query.Matcher

// Invalidator marks query groups stale.
type Invalidator interface {
	Invalidate(ms ...query.Matcher) []query.Key
}

// Feed subscribes to the backend's change events and invalidates the
// matching query groups, so views refetch when other users mutate.
type Feed struct {
	url    string
	inv    Invalidator
	plan   Planner
	dialer *websocket.Dialer
	logger *slog.Logger

	readTimeout time.Duration
	minBackoff  time.Duration
	maxBackoff  time.Duration
	onEvent     func(Event)

	received atomic.Uint64
}

// Option configures a Feed.
type Option func(*Feed)

// WithCookieJar sends the session cookie with the handshake.
func WithCookieJar(jar http.CookieJar) Option {
	return func(f *Feed) {
		f.dialer.Jar = jar
	}
}

// WithLogger sets the feed's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Feed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithReadTimeout sets how long the connection may stay silent. The server
// pings more often than this.
func WithReadTimeout(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.readTimeout = d
		}
	}
}

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(lo, hi time.Duration) Option {
	return func(f *Feed) {
		if lo > 0 {
			f.minBackoff = lo
		}
		if hi >= f.minBackoff {
			f.maxBackoff = hi
		}
	}
}

// OnEvent is called for every decoded event after invalidation.
func OnEvent(fn func(Event)) Option {
	return func(f *Feed) {
		f.onEvent = fn
	}
}

// New creates a Feed for the websocket endpoint at url.
func New(url string, inv Invalidator, plan Planner, opts ...Option) *Feed {
	f := &Feed{
		url:         url,
		inv:         inv,
		plan:        plan,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:      slog.Default(),
		readTimeout: 60 * time.Second,
		minBackoff:  500 * time.Millisecond,
		maxBackoff:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Received returns the number of events handled.
func (f *Feed) Received() uint64 {
	return f.received.Load()
}

// Run connects and handles events until ctx is done, reconnecting with
// exponential backoff. It returns ctx.Err().
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.minBackoff
	for {
		connected, err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = f.minBackoff
		}
		f.logger.Warn("live feed disconnected", "url", f.url, "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

// session runs one connection. connected reports whether the handshake
// succeeded.
func (f *Feed) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return false, err
	}
	f.logger.Info("live feed connected", "url", f.url)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if stderrors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				f.logger.Error("live feed read error", "error", err)
			}
			return true, err
		}
		f.handle(msg)
	}
}

func (f *Feed) handle(msg []byte) {
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		f.logger.Error("live feed decode error", "error", err)
		return
	}
	f.received.Add(1)

	if m := f.plan(ev); m != nil {
		keys := f.inv.Invalidate(m)
		f.logger.Debug("live feed event", "type", ev.Type, "post_id", ev.PostID, "invalidated", len(keys))
	} else {
		f.logger.Debug("live feed event ignored", "type", ev.Type, "post_id", ev.PostID)
	}
	if f.onEvent != nil {
		f.onEvent(ev)
	}
}
