package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agora-dev/agora/pkg/livefeed"
	"github.com/agora-dev/agora/pkg/remote"
)

const defaultPageSize = 20

// wirePage is the list shape. Page echoes the request in the endpoint's
// wire base.
type wirePage struct {
	PostList      []remote.Post `json:"postList"`
	ListSize      int           `json:"listSize"`
	TotalPage     int           `json:"totalPage"`
	TotalElements int           `json:"totalElements"`
	IsFirst       bool          `json:"isFirst"`
	IsLast        bool          `json:"isLast"`
	Page          int           `json:"page"`
}

func paginate(posts []remote.Post, r *http.Request, base int) (wirePage, bool) {
	page, size := base, defaultPageSize
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return wirePage{}, false
		}
		page = n
	}
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > remote.MaxPageSize {
			return wirePage{}, false
		}
		size = n
	}
	index := page - base
	if index < 0 {
		return wirePage{}, false
	}

	total := len(posts)
	totalPage := (total + size - 1) / size
	start := min(index*size, total)
	end := min(start+size, total)
	items := posts[start:end]
	return wirePage{
		PostList:      items,
		ListSize:      len(items),
		TotalPage:     totalPage,
		TotalElements: total,
		IsFirst:       index == 0,
		IsLast:        index >= totalPage-1,
		Page:          page,
	}, true
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request, posts []remote.Post, base int) {
	p, ok := paginate(posts, r, base)
	if !ok {
		s.fail(w, http.StatusBadRequest, "PAGE400", "Invalid page or size.")
		return
	}
	s.ok(w, http.StatusOK, p)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	s.servePage(w, r, s.store.list(s.userOf(r), nil), 0)
}

func (s *Server) handleListMyPosts(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	s.servePage(w, r, s.store.list(user, func(p *post) bool { return p.Writer == user }), 0)
}

func (s *Server) handleListLikes(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	s.servePage(w, r, s.store.list(user, func(p *post) bool { return p.likers[user] }), 1)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	p, found := s.store.post(id, s.userOf(r))
	if !found {
		s.notFound(w)
		return
	}
	s.ok(w, http.StatusOK, p)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	cs, found := s.store.listComments(id)
	if !found {
		s.notFound(w)
		return
	}
	if s.opts.Envelope == EnvelopeData {
		s.ok(w, http.StatusOK, cs)
		return
	}
	s.ok(w, http.StatusOK, map[string]any{"commentList": cs})
}

func (s *Server) handleLike(liked bool) http.HandlerFunc {
	event := livefeed.EventPostUnliked
	if liked {
		event = livefeed.EventPostLiked
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.postID(w, r)
		if !ok {
			return
		}
		res, found := s.store.setLike(id, currentUser(r), liked)
		if !found {
			s.notFound(w)
			return
		}
		s.publish(event, id, 0)
		if s.opts.Envelope == EnvelopeData {
			s.ok(w, http.StatusOK, map[string]any{"isLiked": res.Liked, "likeCount": res.LikeCount})
			return
		}
		s.ok(w, http.StatusOK, res)
	}
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ownPost(w, r)
	if !ok {
		return
	}
	var in remote.PostInput
	if !s.decode(w, r, &in) {
		return
	}
	p, _ := s.store.editPost(id, in, currentUser(r))
	s.publish(livefeed.EventPostEdited, id, 0)
	s.ok(w, http.StatusOK, p)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ownPost(w, r)
	if !ok {
		return
	}
	s.store.deletePost(id)
	s.publish(livefeed.EventPostDeleted, id, 0)
	s.ok(w, http.StatusOK, nil)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	var in remote.CommentInput
	if !s.decode(w, r, &in) {
		return
	}
	c, found := s.store.addComment(id, currentUser(r), in.Content)
	if !found {
		s.notFound(w)
		return
	}
	s.publish(livefeed.EventCommentCreated, id, c.ID)
	s.ok(w, http.StatusCreated, c)
}

func (s *Server) handleEditComment(w http.ResponseWriter, r *http.Request) {
	id, cid, ok := s.ownComment(w, r)
	if !ok {
		return
	}
	var in remote.CommentInput
	if !s.decode(w, r, &in) {
		return
	}
	c, _ := s.store.editComment(id, cid, in.Content)
	s.publish(livefeed.EventCommentEdited, id, cid)
	s.ok(w, http.StatusOK, c)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, cid, ok := s.ownComment(w, r)
	if !ok {
		return
	}
	s.store.deleteComment(id, cid)
	s.publish(livefeed.EventCommentDeleted, id, cid)
	s.ok(w, http.StatusOK, nil)
}

func (s *Server) handleReportPost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	var in remote.ReportInput
	if !s.decode(w, r, &in) {
		return
	}
	if _, found := s.store.writer(id); !found {
		s.notFound(w)
		return
	}
	s.ok(w, http.StatusCreated, s.store.addReport(id))
}

func (s *Server) handleReportComment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	cid, ok := s.commentID(w, r)
	if !ok {
		return
	}
	var in remote.ReportInput
	if !s.decode(w, r, &in) {
		return
	}
	if _, found := s.store.commentWriter(id, cid); !found {
		s.fail(w, http.StatusNotFound, "COMMENT404", "Comment not found.")
		return
	}
	s.ok(w, http.StatusCreated, s.store.addReport(cid))
}

// Request helpers. Each writes the error response itself and reports
// whether the handler may continue.

func (s *Server) postID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		s.fail(w, http.StatusBadRequest, "POST400", "Invalid post id.")
		return 0, false
	}
	return id, true
}

func (s *Server) commentID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "commentId"))
	if err != nil || id <= 0 {
		s.fail(w, http.StatusBadRequest, "COMMENT400", "Invalid comment id.")
		return 0, false
	}
	return id, true
}

func (s *Server) ownPost(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := s.postID(w, r)
	if !ok {
		return 0, false
	}
	writer, found := s.store.writer(id)
	switch {
	case !found:
		s.notFound(w)
		return 0, false
	case writer != currentUser(r):
		s.fail(w, http.StatusForbidden, "POST403", "Only the writer can change this post.")
		return 0, false
	}
	return id, true
}

func (s *Server) ownComment(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	id, ok := s.postID(w, r)
	if !ok {
		return 0, 0, false
	}
	cid, ok := s.commentID(w, r)
	if !ok {
		return 0, 0, false
	}
	writer, found := s.store.commentWriter(id, cid)
	switch {
	case !found:
		s.fail(w, http.StatusNotFound, "COMMENT404", "Comment not found.")
		return 0, 0, false
	case writer != currentUser(r):
		s.fail(w, http.StatusForbidden, "COMMENT403", "Only the writer can change this comment.")
		return 0, 0, false
	}
	return id, cid, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, http.StatusBadRequest, "COMMON400", "Malformed request body.")
		return false
	}
	if err := remote.ValidateInput(v); err != nil {
		s.fail(w, http.StatusBadRequest, "COMMON400", err.Error())
		return false
	}
	return true
}

func (s *Server) notFound(w http.ResponseWriter) {
	s.fail(w, http.StatusNotFound, "POST404", "Post not found.")
}
