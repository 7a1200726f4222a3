package community

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agora-dev/agora/pkg/mutation"
	"github.com/agora-dev/agora/pkg/optimistic"
	"github.com/agora-dev/agora/pkg/query"
	"github.com/agora-dev/agora/pkg/remote"
	"github.com/agora-dev/agora/pkg/toast"
)

// Remote is the part of *remote.Client the service uses.
type Remote interface {
	LikePost(ctx context.Context, id int) (remote.LikeResult, error)
	UnlikePost(ctx context.Context, id int) (remote.LikeResult, error)
	GetPost(ctx context.Context, id int) (remote.Post, error)
	EditPost(ctx context.Context, id int, in remote.PostInput) (remote.Post, error)
	DeletePost(ctx context.Context, id int) error
	CreateComment(ctx context.Context, postID int, content string) (remote.Comment, error)
	EditComment(ctx context.Context, postID, commentID int, content string) (remote.Comment, error)
	DeleteComment(ctx context.Context, postID, commentID int) error
	ListComments(ctx context.Context, postID int) ([]remote.Comment, error)
	ReportPost(ctx context.Context, id int, reason string) (remote.Report, error)
	ReportComment(ctx context.Context, postID, commentID int, reason string) (remote.Report, error)
	ListPosts(ctx context.Context, page remote.PageRequest) (remote.Page[remote.Post], error)
	ListMyPosts(ctx context.Context, page remote.PageRequest) (remote.Page[remote.Post], error)
	ListMyLikes(ctx context.Context, page remote.PageRequest) (remote.Page[remote.Post], error)
}

// Detail is the post-detail view: a post with its comments.
type Detail struct {
	Post     remote.Post
	Comments []remote.Comment
}

// DefaultPageSize is the list page size when none is configured.
const DefaultPageSize = 20

// Service ties the remote client, the mutation executor and the query
// store together. Every mutation is keyed so a second request for the
// same subject is dropped while the first is in flight, and every success
// invalidates the mutation's plan.
type Service struct {
	client   Remote
	exec     *mutation.Executor
	store    *query.Store
	notify   toast.Emitter
	logger   *slog.Logger
	pageSize int

	mu    sync.Mutex
	likes map[int]*optimistic.Reconciler
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where toasts go. The default logs them.
func WithNotifier(e toast.Emitter) Option {
	return func(s *Service) {
		if e != nil {
			s.notify = e
		}
	}
}

// WithLogger sets the service's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPageSize sets the list page size.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= remote.MaxPageSize {
			s.pageSize = n
		}
	}
}

// NewService creates a Service. exec and store must share one loop.
func NewService(client Remote, exec *mutation.Executor, store *query.Store, opts ...Option) *Service {
	s := &Service{
		client:   client,
		exec:     exec,
		store:    store,
		logger:   slog.Default(),
		pageSize: DefaultPageSize,
		likes:    make(map[int]*optimistic.Reconciler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notify == nil {
		s.notify = toast.Log(s.logger)
	}
	return s
}

// Store returns the service's query store.
func (s *Service) Store() *query.Store {
	return s.store
}

// Like returns the like reconciler of post, creating it on first use. An
// existing reconciler adopts post's like state unless a toggle is pending.
func (s *Service) Like(post remote.Post) *optimistic.Reconciler {
	initial := optimistic.State{Liked: post.Liked, LikeCount: post.LikeCount}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.likes[post.ID]; ok {
		r.Sync(initial)
		return r
	}
	r := optimistic.NewReconciler(post.ID, initial, s.exec, s.like,
		optimistic.WithInvalidation(s.store, PlanLike(post.ID)),
		optimistic.WithErrorHandler(func(err error) { toast.FromError(s.notify, err) }),
		optimistic.WithLogger(s.logger),
	)
	s.likes[post.ID] = r
	return r
}

func (s *Service) like(ctx context.Context, postID int, like bool) (optimistic.State, error) {
	var (
		res remote.LikeResult
		err error
	)
	if like {
		res, err = s.client.LikePost(ctx, postID)
	} else {
		res, err = s.client.UnlikePost(ctx, postID)
	}
	if err != nil {
		return optimistic.State{}, err
	}
	return optimistic.State{Liked: res.Liked, LikeCount: res.LikeCount}, nil
}

// Close cancels pending likes. Their settlements are dropped.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.likes {
		r.Close()
		delete(s.likes, id)
	}
}

// EditPost replaces a post's title and content.
func (s *Service) EditPost(id int, in remote.PostInput) (*mutation.Handle, error) {
	return mutation.Run(s.exec, fmt.Sprintf("post:edit:%d", id),
		func(ctx context.Context) (remote.Post, error) {
			return s.client.EditPost(ctx, id, in)
		},
		mutation.Callbacks[remote.Post]{
			Name: "post:edit",
			OnSuccess: func(remote.Post) {
				s.store.Invalidate(PlanEditPost(id))
				toast.Success(s.notify, "Post updated.")
			},
			OnError: s.showError,
		})
}

// DeletePost deletes a post and drops its cached views.
func (s *Service) DeletePost(id int) (*mutation.Handle, error) {
	return mutation.Run(s.exec, fmt.Sprintf("post:delete:%d", id),
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.client.DeletePost(ctx, id)
		},
		mutation.Callbacks[struct{}]{
			Name: "post:delete",
			OnSuccess: func(struct{}) {
				s.forgetPost(id)
				s.store.Invalidate(PlanDeletePost(id))
				toast.Success(s.notify, "Post deleted.")
			},
			OnError: s.showError,
		})
}

func (s *Service) forgetPost(id int) {
	s.store.Remove(KeyPost(id))
	s.store.Remove(KeyDetail(id))
	s.store.Remove(KeyComments(id))

	s.mu.Lock()
	r := s.likes[id]
	delete(s.likes, id)
	s.mu.Unlock()
	if r != nil {
		r.Close()
	}
}

// CreateComment adds a comment to postID.
func (s *Service) CreateComment(postID int, content string) (*mutation.Handle, error) {
	return mutation.Run(s.exec, fmt.Sprintf("comment:create:%d", postID),
		func(ctx context.Context) (remote.Comment, error) {
			return s.client.CreateComment(ctx, postID, content)
		},
		mutation.Callbacks[remote.Comment]{
			Name: "comment:create",
			OnSuccess: func(remote.Comment) {
				s.store.Invalidate(PlanCreateComment(postID))
			},
			OnError: s.showError,
		})
}

// EditComment replaces a comment's content.
func (s *Service) EditComment(postID, commentID int, content string) (*mutation.Handle, error) {
	return mutation.Run(s.exec, fmt.Sprintf("comment:edit:%d", commentID),
		func(ctx context.Context) (remote.Comment, error) {
			return s.client.EditComment(ctx, postID, commentID, content)
		},
		mutation.Callbacks[remote.Comment]{
			Name: "comment:edit",
			OnSuccess: func(remote.Comment) {
				s.store.Invalidate(PlanEditComment(postID))
				toast.Success(s.notify, "Comment updated.")
			},
			OnError: s.showError,
		})
}

// DeleteComment deletes a comment.
func (s *Service) DeleteComment(postID, commentID int) (*mutation.Handle, error) {
	return mutation.Run(s.exec, fmt.Sprintf("comment:delete:%d", commentID),
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.client.DeleteComment(ctx, postID, commentID)
		},
		mutation.Callbacks[struct{}]{
			Name: "comment:delete",
			OnSuccess: func(struct{}) {
				s.store.Invalidate(PlanDeleteComment(postID))
				toast.Success(s.notify, "Comment deleted.")
			},
			OnError: s.showError,
		})
}

// ReportPost reports a post. Reports invalidate nothing.
func (s *Service) ReportPost(id int, reason string) (*mutation.Handle, error) {
	return mutation.Run(s.exec, fmt.Sprintf("report:post:%d", id),
		func(ctx context.Context) (remote.Report, error) {
			return s.client.ReportPost(ctx, id, reason)
		},
		mutation.Callbacks[remote.Report]{
			Name: "report:post",
			OnSuccess: func(remote.Report) {
				toast.Success(s.notify, "Report submitted.")
			},
			OnError: s.showError,
		})
}

// ReportComment reports a comment.
func (s *Service) ReportComment(postID, commentID int, reason string) (*mutation.Handle, error) {
	return mutation.Run(s.exec, fmt.Sprintf("report:comment:%d", commentID),
		func(ctx context.Context) (remote.Report, error) {
			return s.client.ReportComment(ctx, postID, commentID, reason)
		},
		mutation.Callbacks[remote.Report]{
			Name: "report:comment",
			OnSuccess: func(remote.Report) {
				toast.Success(s.notify, "Report submitted.")
			},
			OnError: s.showError,
		})
}

func (s *Service) showError(err error) {
	toast.FromError(s.notify, err)
}

// Post returns the query for a single post.
func (s *Service) Post(id int) *query.Query[remote.Post] {
	return query.Register(s.store, KeyPost(id), func(ctx context.Context) (remote.Post, error) {
		return s.client.GetPost(ctx, id)
	})
}

// Posts returns the query for page index of the community board.
func (s *Service) Posts(index int) *query.Query[remote.Page[remote.Post]] {
	return s.page(KeyPosts(index), index, s.client.ListPosts)
}

// MyPosts returns the query for page index of the user's own posts.
func (s *Service) MyPosts(index int) *query.Query[remote.Page[remote.Post]] {
	return s.page(KeyMyPosts(index), index, s.client.ListMyPosts)
}

// MyLikes returns the query for page index of the posts the user liked.
func (s *Service) MyLikes(index int) *query.Query[remote.Page[remote.Post]] {
	return s.page(KeyMyLikes(index), index, s.client.ListMyLikes)
}

type pageFunc func(ctx context.Context, page remote.PageRequest) (remote.Page[remote.Post], error)

func (s *Service) page(key query.Key, index int, list pageFunc) *query.Query[remote.Page[remote.Post]] {
	req := remote.PageRequest{Index: index, Size: s.pageSize}
	return query.Register(s.store, key, func(ctx context.Context) (remote.Page[remote.Post], error) {
		return list(ctx, req)
	})
}

// Comments returns the query for a post's comments.
func (s *Service) Comments(postID int) *query.Query[[]remote.Comment] {
	return query.Register(s.store, KeyComments(postID), func(ctx context.Context) ([]remote.Comment, error) {
		return s.client.ListComments(ctx, postID)
	})
}

// Detail returns the query for the post-detail view. The post and its
// comments are fetched concurrently.
func (s *Service) Detail(postID int) *query.Query[Detail] {
	return query.Register(s.store, KeyDetail(postID), func(ctx context.Context) (Detail, error) {
		var d Detail
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			p, err := s.client.GetPost(ctx, postID)
			d.Post = p
			return err
		})
		g.Go(func() error {
			cs, err := s.client.ListComments(ctx, postID)
			d.Comments = cs
			return err
		})
		if err := g.Wait(); err != nil {
			return Detail{}, err
		}
		return d, nil
	})
}
