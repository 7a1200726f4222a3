package devserver

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-dev/agora/pkg/livefeed"
	"github.com/agora-dev/agora/pkg/remote"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	opts.Seed = true
	s := New(opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(s.Hub().Close)
	return s, srv
}

func newClient(t *testing.T, srv *httptest.Server, user string) *remote.Client {
	t.Helper()
	c, err := remote.New(srv.URL)
	require.NoError(t, err)
	if user != "" {
		require.NoError(t, c.Login(context.Background(), remote.Credentials{Username: user, Password: "password"}))
	}
	return c
}

func TestLoginAndLike(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	c := newClient(t, srv, "alice")
	ctx := context.Background()

	res, err := c.LikePost(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, remote.LikeResult{Liked: true, LikeCount: 1}, res)

	p, err := c.GetPost(ctx, 3)
	require.NoError(t, err)
	assert.True(t, p.Liked)
	assert.Equal(t, 1, p.LikeCount)

	res, err = c.UnlikePost(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, remote.LikeResult{Liked: false, LikeCount: 0}, res)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	c := newClient(t, srv, "")
	err := c.Login(context.Background(), remote.Credentials{Username: "alice", Password: "nope"})
	assert.True(t, remote.IsAuthRequired(err))
}

func TestAnonymousRequests(t *testing.T) {
	tests := []struct {
		name   string
		mode   Anonymous
		status int
	}{
		{"unauthorized", AnonymousUnauthorized, http.StatusUnauthorized},
		{"redirect", AnonymousRedirect, http.StatusFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newTestServer(t, Options{Anonymous: tt.mode})
			c := newClient(t, srv, "")

			_, err := c.LikePost(context.Background(), 1)
			require.Error(t, err)
			assert.True(t, remote.IsAuthRequired(err))
			assert.Equal(t, tt.status, remote.StatusOf(err))

			// Public reads need no session.
			_, err = c.GetPost(context.Background(), 1)
			assert.NoError(t, err)
		})
	}
}

func TestLoginPageIsHTML(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	resp, err := http.Get(srv.URL + "/login")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestOnlyWriterMayEdit(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	bob := newClient(t, srv, "bob")
	ctx := context.Background()

	_, err := bob.EditPost(ctx, 1, remote.PostInput{Title: "mine now", Content: "x"})
	assert.True(t, remote.IsForbidden(err))
	assert.True(t, remote.IsForbidden(bob.DeletePost(ctx, 1)))

	p, err := bob.EditPost(ctx, 3, remote.PostInput{Title: "Revised", Content: "v2"})
	require.NoError(t, err)
	assert.Equal(t, "Revised", p.Title)

	require.NoError(t, bob.DeletePost(ctx, 3))
	_, err = bob.GetPost(ctx, 3)
	assert.Equal(t, http.StatusNotFound, remote.StatusOf(err))
}

func TestPagination(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	bob := newClient(t, srv, "bob")
	ctx := context.Background()

	first, err := bob.ListPosts(ctx, remote.PageRequest{Index: 0, Size: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, 3, first.Items[0].ID)
	assert.Equal(t, 2, first.TotalPage)
	assert.True(t, first.IsFirst)
	assert.True(t, first.HasNext())

	second, err := bob.ListPosts(ctx, remote.PageRequest{Index: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Index)
	assert.True(t, second.IsLast)
	require.Len(t, second.Items, 1)
	assert.Equal(t, 1, second.Items[0].ID)

	likes, err := bob.ListMyLikes(ctx, remote.PageRequest{Index: 0, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, likes.Index)
	require.Len(t, likes.Items, 1)
	assert.Equal(t, 1, likes.Items[0].ID)
	assert.True(t, likes.Items[0].Liked)

	mine, err := bob.ListMyPosts(ctx, remote.PageRequest{Index: 0, Size: 10})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, "bob", mine.Items[0].Writer)
}

func TestCommentLifecycle(t *testing.T) {
	for _, env := range []Envelope{EnvelopeResult, EnvelopeData} {
		t.Run(string(env), func(t *testing.T) {
			_, srv := newTestServer(t, Options{Envelope: env})
			alice := newClient(t, srv, "alice")
			bob := newClient(t, srv, "bob")
			ctx := context.Background()

			c, err := alice.CreateComment(ctx, 1, "nice")
			require.NoError(t, err)
			assert.Equal(t, 1, c.PostID)

			_, err = bob.EditComment(ctx, 1, c.ID, "hijack")
			assert.True(t, remote.IsForbidden(err))

			edited, err := alice.EditComment(ctx, 1, c.ID, "nicer")
			require.NoError(t, err)
			assert.Equal(t, "nicer", edited.Content)

			cs, err := alice.ListComments(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, cs, 2)

			require.NoError(t, alice.DeleteComment(ctx, 1, c.ID))
			cs, err = alice.ListComments(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, cs, 1)

			res, err := bob.LikePost(ctx, 2)
			require.NoError(t, err)
			assert.True(t, res.Liked)
		})
	}
}

func TestReports(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	alice := newClient(t, srv, "alice")
	ctx := context.Background()

	r, err := alice.ReportPost(ctx, 3, "spam")
	require.NoError(t, err)
	assert.Equal(t, 3, r.SubjectID)

	r, err = alice.ReportComment(ctx, 1, 1, "rude")
	require.NoError(t, err)
	assert.Equal(t, 1, r.SubjectID)

	_, err = alice.ReportComment(ctx, 1, 99, "rude")
	assert.Equal(t, http.StatusNotFound, remote.StatusOf(err))
}

func TestServerValidatesBodies(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	alice := newClient(t, srv, "alice")
	hc := &http.Client{Jar: alice.Jar()}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/posts/1/comments", strings.NewReader(`{"content":"   "}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	o := remote.Decode(resp.StatusCode, resp.Header, body)
	assert.Equal(t, remote.OutcomeFailure, o.Kind)
	assert.Equal(t, "COMMON400", o.ServerCode)
}

func TestEventsBroadcast(t *testing.T) {
	s, srv := newTestServer(t, Options{})
	alice := newClient(t, srv, "alice")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err = alice.CreateComment(context.Background(), 3, "hello")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var ev livefeed.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, livefeed.EventCommentCreated, ev.Type)
	assert.Equal(t, 3, ev.PostID)
	assert.NotZero(t, ev.CommentID)
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	c := newClient(t, srv, "")
	_, err := c.GetPost(context.Background(), 1)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)

	assert.Contains(t, buf.String(), `agora_devserver_requests_total{method="GET",route="/posts/{id}",status="200"} 1`)
	assert.Contains(t, buf.String(), "agora_devserver_event_clients 0")
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- s.ListenAndServe(ctx, "127.0.0.1:0", func(a net.Addr) { ready <- a.String() })
	}()

	addr := <-ready
	resp, err := http.Get("http://" + addr + "/posts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}
