package community

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agora-dev/agora/internal/errors"
	"github.com/agora-dev/agora/pkg/livefeed"
	"github.com/agora-dev/agora/pkg/loop"
	"github.com/agora-dev/agora/pkg/mutation"
	"github.com/agora-dev/agora/pkg/optimistic"
	"github.com/agora-dev/agora/pkg/query"
	"github.com/agora-dev/agora/pkg/remote"
	"github.com/agora-dev/agora/pkg/toast"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRemote is an in-memory backend. Setting fail makes every call
// return that error.
type fakeRemote struct {
	mu       sync.Mutex
	posts    map[int]remote.Post
	comments map[int][]remote.Comment
	fail     error
	calls    map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		posts: map[int]remote.Post{
			42: {ID: 42, Title: "hello", LikeCount: 10},
			7:  {ID: 7, Title: "other", LikeCount: 1, Liked: true},
		},
		comments: map[int][]remote.Comment{
			42: {{ID: 1, PostID: 42, Content: "first"}},
		},
		calls: make(map[string]int),
	}
}

func (f *fakeRemote) enter(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.fail
}

func (f *fakeRemote) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func (f *fakeRemote) toggle(id int, like bool) (remote.LikeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.posts[id]
	if like && !p.Liked {
		p.LikeCount++
	} else if !like && p.Liked {
		p.LikeCount--
	}
	p.Liked = like
	f.posts[id] = p
	return remote.LikeResult{Liked: p.Liked, LikeCount: p.LikeCount}, nil
}

func (f *fakeRemote) LikePost(ctx context.Context, id int) (remote.LikeResult, error) {
	if err := f.enter("like"); err != nil {
		return remote.LikeResult{}, err
	}
	return f.toggle(id, true)
}

func (f *fakeRemote) UnlikePost(ctx context.Context, id int) (remote.LikeResult, error) {
	if err := f.enter("unlike"); err != nil {
		return remote.LikeResult{}, err
	}
	return f.toggle(id, false)
}

func (f *fakeRemote) GetPost(ctx context.Context, id int) (remote.Post, error) {
	if err := f.enter("get"); err != nil {
		return remote.Post{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[id], nil
}

func (f *fakeRemote) EditPost(ctx context.Context, id int, in remote.PostInput) (remote.Post, error) {
	if err := f.enter("edit"); err != nil {
		return remote.Post{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.posts[id]
	p.Title, p.Content = in.Title, in.Content
	f.posts[id] = p
	return p, nil
}

func (f *fakeRemote) DeletePost(ctx context.Context, id int) error {
	if err := f.enter("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, id)
	return nil
}

func (f *fakeRemote) CreateComment(ctx context.Context, postID int, content string) (remote.Comment, error) {
	if err := f.enter("comment"); err != nil {
		return remote.Comment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := remote.Comment{ID: len(f.comments[postID]) + 1, PostID: postID, Content: content}
	f.comments[postID] = append(f.comments[postID], c)
	return c, nil
}

func (f *fakeRemote) EditComment(ctx context.Context, postID, commentID int, content string) (remote.Comment, error) {
	if err := f.enter("comment:edit"); err != nil {
		return remote.Comment{}, err
	}
	return remote.Comment{ID: commentID, PostID: postID, Content: content}, nil
}

func (f *fakeRemote) DeleteComment(ctx context.Context, postID, commentID int) error {
	return f.enter("comment:delete")
}

func (f *fakeRemote) ListComments(ctx context.Context, postID int) ([]remote.Comment, error) {
	if err := f.enter("comments"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Comment(nil), f.comments[postID]...), nil
}

func (f *fakeRemote) ReportPost(ctx context.Context, id int, reason string) (remote.Report, error) {
	if err := f.enter("report"); err != nil {
		return remote.Report{}, err
	}
	return remote.Report{ReportID: 1, SubjectID: id}, nil
}

func (f *fakeRemote) ReportComment(ctx context.Context, postID, commentID int, reason string) (remote.Report, error) {
	if err := f.enter("report"); err != nil {
		return remote.Report{}, err
	}
	return remote.Report{ReportID: 2, SubjectID: commentID}, nil
}

func (f *fakeRemote) list(name string, page remote.PageRequest) (remote.Page[remote.Post], error) {
	if err := f.enter(name); err != nil {
		return remote.Page[remote.Post]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]remote.Post, 0, len(f.posts))
	for _, p := range f.posts {
		items = append(items, p)
	}
	return remote.Page[remote.Post]{Items: items, Index: page.Index, ListSize: page.Size, TotalPage: 1}, nil
}

func (f *fakeRemote) ListPosts(ctx context.Context, page remote.PageRequest) (remote.Page[remote.Post], error) {
	return f.list("posts", page)
}

func (f *fakeRemote) ListMyPosts(ctx context.Context, page remote.PageRequest) (remote.Page[remote.Post], error) {
	return f.list("myPosts", page)
}

func (f *fakeRemote) ListMyLikes(ctx context.Context, page remote.PageRequest) (remote.Page[remote.Post], error) {
	return f.list("myLikes", page)
}

type harness struct {
	loop   *loop.Loop
	remote *fakeRemote
	toasts *toast.Channel
	svc    *Service
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	l := loop.New()
	l.Start()
	t.Cleanup(func() {
		l.Close()
		<-l.Stopped()
	})

	h := &harness{
		loop:   l,
		remote: newFakeRemote(),
		toasts: toast.NewChannel(16),
	}
	opts = append([]Option{WithNotifier(h.toasts)}, opts...)
	h.svc = NewService(h.remote, mutation.NewExecutor(l), query.NewStore(l), opts...)
	t.Cleanup(h.svc.Close)
	return h
}

func (h *harness) wait(t *testing.T, handle *mutation.Handle) mutation.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := handle.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, h.loop.Flush(ctx))
	return res
}

func (h *harness) nextToast(t *testing.T) toast.Toast {
	t.Helper()
	select {
	case tt := <-h.toasts.C():
		return tt
	case <-time.After(time.Second):
		t.Fatal("no toast")
		return toast.Toast{}
	}
}

func keyStrings(keys []query.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

func TestPlanLikeMarksExactlyItsGroups(t *testing.T) {
	h := newHarness(t)
	got := keyStrings(h.svc.Store().Invalidate(PlanLike(42)))
	assert.Equal(t, []string{`["myLikes"]`, `["myPosts"]`, `["post",42]`, `["posts"]`}, got)
}

func TestPlanLikeReachesPagesButNotOtherPosts(t *testing.T) {
	h := newHarness(t)
	r := h.svc.Store().Router()
	for _, k := range []query.Key{
		KeyPost(42), KeyPost(7), KeyPosts(0), KeyMyLikes(1),
		KeyComments(42), KeyDetail(42),
	} {
		r.Track(k)
	}

	h.svc.Store().Invalidate(PlanLike(42))

	assert.True(t, r.IsStale(KeyPost(42)))
	assert.True(t, r.IsStale(KeyPosts(0)))
	assert.True(t, r.IsStale(KeyMyLikes(1)))
	assert.False(t, r.IsStale(KeyPost(7)))
	assert.False(t, r.IsStale(KeyComments(42)))
	assert.False(t, r.IsStale(KeyDetail(42)))
}

func TestPlansPerMutation(t *testing.T) {
	tracked := []query.Key{
		KeyPost(42), KeyPost(7), KeyPosts(0), KeyMyPosts(0), KeyMyLikes(0),
		KeyComments(42), KeyComments(7), KeyDetail(42), KeyDetail(7),
	}
	tests := []struct {
		name  string
		plan  query.Matcher
		stale []query.Key
	}{
		{"edit post", PlanEditPost(42), []query.Key{KeyPost(42), KeyPosts(0), KeyMyPosts(0), KeyDetail(42), KeyDetail(7)}},
		{"delete post", PlanDeletePost(42), []query.Key{KeyPost(42), KeyPosts(0), KeyMyPosts(0), KeyMyLikes(0), KeyDetail(42), KeyDetail(7)}},
		{"create comment", PlanCreateComment(42), []query.Key{KeyPost(42), KeyComments(42), KeyDetail(42), KeyDetail(7)}},
		{"delete comment", PlanDeleteComment(42), []query.Key{KeyComments(42), KeyDetail(42), KeyDetail(7)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			r := h.svc.Store().Router()
			for _, k := range tracked {
				r.Track(k)
			}
			h.svc.Store().Invalidate(tt.plan)

			want := make(map[string]bool)
			for _, k := range tt.stale {
				want[k.String()] = true
			}
			for _, k := range tracked {
				assert.Equal(t, want[k.String()], r.IsStale(k), "key %s", k)
			}
		})
	}
}

func TestPlanForEvent(t *testing.T) {
	assert.Nil(t, PlanForEvent(livefeed.Event{Type: livefeed.EventPostLiked}))
	assert.Nil(t, PlanForEvent(livefeed.Event{Type: "post.reported", PostID: 1}))

	m := PlanForEvent(livefeed.Event{Type: livefeed.EventPostUnliked, PostID: 42})
	require.NotNil(t, m)
	assert.True(t, m.Match(KeyMyLikes(3)))
	assert.False(t, m.Match(KeyComments(42)))

	m = PlanForEvent(livefeed.Event{Type: livefeed.EventCommentDeleted, PostID: 42, CommentID: 1})
	require.NotNil(t, m)
	assert.True(t, m.Match(KeyComments(42)))
	assert.False(t, m.Match(KeyPost(42)))
}

func TestLikeTogglesAndInvalidates(t *testing.T) {
	h := newHarness(t)
	r := h.svc.Store().Router()
	r.Track(KeyPosts(0))

	post := remote.Post{ID: 42, LikeCount: 10}
	rec := h.svc.Like(post)
	require.True(t, rec.Toggle())
	assert.Equal(t, optimistic.State{Liked: true, LikeCount: 11}, rec.State())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rec.Wait(ctx))
	require.NoError(t, h.loop.Flush(ctx))

	assert.Equal(t, optimistic.State{Liked: true, LikeCount: 11}, rec.State())
	assert.Equal(t, 1, h.remote.count("like"))
	assert.True(t, r.IsStale(KeyPosts(0)))
	assert.Same(t, rec, h.svc.Like(post), "reconciler is reused per post")
}

func TestLikeFailureShowsSignInToast(t *testing.T) {
	h := newHarness(t)
	h.remote.setFail(errors.New("A101"))

	rec := h.svc.Like(remote.Post{ID: 42, LikeCount: 10})
	require.True(t, rec.Toggle())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rec.Wait(ctx))
	require.NoError(t, h.loop.Flush(ctx))

	assert.Equal(t, optimistic.State{Liked: false, LikeCount: 10}, rec.State())
	tt := h.nextToast(t)
	assert.Equal(t, toast.TypeWarning, tt.Level)
	assert.Equal(t, toast.ActionLogin, tt.ActionID)
}

func TestEditPostInvalidatesAndToasts(t *testing.T) {
	h := newHarness(t)
	r := h.svc.Store().Router()
	r.Track(KeyDetail(42))

	handle, err := h.svc.EditPost(42, remote.PostInput{Title: "new", Content: "body"})
	require.NoError(t, err)
	res := h.wait(t, handle)
	require.NoError(t, res.Err)

	p, ok := mutation.Value[remote.Post](res)
	require.True(t, ok)
	assert.Equal(t, "new", p.Title)
	assert.True(t, r.IsStale(KeyPost(42)))
	assert.True(t, r.IsStale(KeyDetail(42)))
	assert.Equal(t, toast.TypeSuccess, h.nextToast(t).Level)
}

func TestMutationWhilePendingIsBusy(t *testing.T) {
	h := newHarness(t)
	block := make(chan struct{})
	h.svc.client = blockingRemote{Remote: h.remote, block: block}

	first, err := h.svc.DeleteComment(42, 1)
	require.NoError(t, err)
	_, err = h.svc.DeleteComment(42, 1)
	assert.True(t, errors.IsKind(err, errors.KindBusy))

	close(block)
	h.wait(t, first)
	assert.Equal(t, 1, h.remote.count("comment:delete"))
}

type blockingRemote struct {
	Remote
	block chan struct{}
}

func (b blockingRemote) DeleteComment(ctx context.Context, postID, commentID int) error {
	<-b.block
	return b.Remote.DeleteComment(ctx, postID, commentID)
}

func TestDeletePostDropsCachedViews(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := h.svc.Post(42).Load(ctx)
	require.NoError(t, err)
	rec := h.svc.Like(remote.Post{ID: 42})

	handle, err := h.svc.DeletePost(42)
	require.NoError(t, err)
	require.NoError(t, h.wait(t, handle).Err)

	for _, k := range h.svc.Store().Keys() {
		assert.NotEqual(t, KeyPost(42).String(), k.String())
	}
	assert.NotSame(t, rec, h.svc.Like(remote.Post{ID: 42}))
}

func TestReportInvalidatesNothing(t *testing.T) {
	h := newHarness(t)
	r := h.svc.Store().Router()
	r.Track(KeyPost(42))

	handle, err := h.svc.ReportPost(42, "spam")
	require.NoError(t, err)
	require.NoError(t, h.wait(t, handle).Err)

	assert.Empty(t, r.Stale())
	assert.Equal(t, "Report submitted.", h.nextToast(t).Message)
}

func TestForbiddenShowsPermissionToast(t *testing.T) {
	h := newHarness(t)
	h.remote.setFail(errors.New("A102"))

	handle, err := h.svc.EditComment(42, 1, "x")
	require.NoError(t, err)
	res := h.wait(t, handle)
	assert.True(t, errors.IsKind(res.Err, errors.KindForbidden))

	tt := h.nextToast(t)
	assert.Equal(t, toast.TypeError, tt.Level)
	assert.Equal(t, "You don't have permission to do that.", tt.Message)
}

func TestQueriesLoadThroughRemote(t *testing.T) {
	h := newHarness(t, WithPageSize(5))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	page, err := h.svc.Posts(2).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Index)
	assert.Equal(t, 5, page.ListSize)

	_, err = h.svc.MyPosts(0).Load(ctx)
	require.NoError(t, err)
	_, err = h.svc.MyLikes(0).Load(ctx)
	require.NoError(t, err)

	d, err := h.svc.Detail(42).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", d.Post.Title)
	assert.Len(t, d.Comments, 1)

	cs, err := h.svc.Comments(42).Load(ctx)
	require.NoError(t, err)
	assert.Len(t, cs, 1)

	assert.Same(t, h.svc.Post(42), h.svc.Post(42))
	assert.Equal(t, 1, h.remote.count("myPosts"))
}

func TestCreateCommentRefreshesObservedDetail(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := h.svc.Detail(42)
	updates := make(chan int, 8)
	stop := q.Observe(func(q *query.Query[Detail]) {
		if q.IsReady() {
			updates <- len(q.Data().Comments)
		}
	})
	defer stop()

	waitFor := func(n int) {
		t.Helper()
		for {
			select {
			case got := <-updates:
				if got == n {
					return
				}
			case <-ctx.Done():
				t.Fatalf("detail never showed %d comments", n)
			}
		}
	}
	waitFor(1)

	handle, err := h.svc.CreateComment(42, "second")
	require.NoError(t, err)
	require.NoError(t, h.wait(t, handle).Err)
	waitFor(2)
}
