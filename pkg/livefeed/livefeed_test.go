package livefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/agora-dev/agora/pkg/query"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]query.Matcher
}

func (r *recordingInvalidator) Invalidate(ms ...query.Matcher) []query.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ms)
	return nil
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func eventServer(t *testing.T, msgs ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeedInvalidatesPlannedGroups(t *testing.T) {
	srv := eventServer(t,
		`{"type":"post.liked","postId":42}`,
		`not json`,
		`{"type":"comment.created","postId":7,"commentId":3}`,
		`{"type":"unknown","postId":1}`,
	)

	inv := &recordingInvalidator{}
	planner := func(ev Event) query.Matcher {
		if ev.Type == "unknown" {
			return nil
		}
		return query.Exact(query.K("post", ev.PostID))
	}

	events := make(chan Event, 8)
	feed := New(wsURL(srv), inv, planner, OnEvent(func(ev Event) { events <- ev }))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- feed.Run(ctx) }()

	var got []Event
	for len(got) < 3 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	cancel()
	if err := <-errc; err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}

	if got[0].Type != EventPostLiked || got[0].PostID != 42 {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].CommentID != 3 {
		t.Errorf("second event = %+v", got[1])
	}
	if inv.count() != 2 {
		t.Errorf("invalidations = %d, want 2", inv.count())
	}
	if feed.Received() != 3 {
		t.Errorf("Received() = %d, want 3", feed.Received())
	}
}

func TestFeedRetriesUntilCancelled(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	feed := New(url, &recordingInvalidator{}, func(Event) query.Matcher { return nil },
		WithBackoff(5*time.Millisecond, 10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := feed.Run(ctx); err != context.DeadlineExceeded {
		t.Errorf("Run() = %v, want deadline exceeded", err)
	}
}
