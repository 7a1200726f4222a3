package devserver

import (
	"sort"
	"sync"
	"time"

	"github.com/agora-dev/agora/pkg/remote"
)

type post struct {
	remote.Post
	likers map[string]bool
}

type comment struct {
	remote.Comment
}

// store is the in-memory board. Every method is safe for concurrent use.
type store struct {
	mu          sync.RWMutex
	posts       map[int]*post
	comments    map[int][]*comment
	reports     []remote.Report
	nextPost    int
	nextComment int
	nextReport  int
	now         func() time.Time
}

func newStore() *store {
	return &store{
		posts:    make(map[int]*post),
		comments: make(map[int][]*comment),
		now:      time.Now,
	}
}

// view returns p as seen by user.
func (p *post) view(user string, comments int) remote.Post {
	v := p.Post
	v.LikeCount = len(p.likers)
	v.Liked = p.likers[user]
	v.CommentCount = comments
	return v
}

func (s *store) addPost(writer, title, content string) remote.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPost++
	p := &post{
		Post: remote.Post{
			ID:        s.nextPost,
			Title:     title,
			Content:   content,
			Writer:    writer,
			CreatedAt: s.now(),
		},
		likers: make(map[string]bool),
	}
	s.posts[p.ID] = p
	return p.view(writer, 0)
}

func (s *store) post(id int, user string) (remote.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return remote.Post{}, false
	}
	return p.view(user, len(s.comments[id])), true
}

func (s *store) writer(id int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return "", false
	}
	return p.Writer, true
}

// setLike records user's like on post id and returns the new state.
func (s *store) setLike(id int, user string, liked bool) (remote.LikeResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return remote.LikeResult{}, false
	}
	if liked {
		p.likers[user] = true
	} else {
		delete(p.likers, user)
	}
	return remote.LikeResult{Liked: liked, LikeCount: len(p.likers)}, true
}

func (s *store) editPost(id int, in remote.PostInput, user string) (remote.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return remote.Post{}, false
	}
	p.Title, p.Content = in.Title, in.Content
	return p.view(user, len(s.comments[id])), true
}

func (s *store) deletePost(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return false
	}
	delete(s.posts, id)
	delete(s.comments, id)
	return true
}

// list returns the posts accepted by keep, newest first.
func (s *store) list(user string, keep func(*post) bool) []remote.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]remote.Post, 0, len(s.posts))
	for id, p := range s.posts {
		if keep == nil || keep(p) {
			out = append(out, p.view(user, len(s.comments[id])))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *store) addComment(postID int, writer, content string) (remote.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return remote.Comment{}, false
	}
	s.nextComment++
	c := &comment{remote.Comment{
		ID:        s.nextComment,
		PostID:    postID,
		Content:   content,
		Writer:    writer,
		CreatedAt: s.now(),
	}}
	s.comments[postID] = append(s.comments[postID], c)
	return c.Comment, true
}

func (s *store) findComment(postID, commentID int) (*comment, int) {
	for i, c := range s.comments[postID] {
		if c.ID == commentID {
			return c, i
		}
	}
	return nil, -1
}

func (s *store) commentWriter(postID, commentID int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, _ := s.findComment(postID, commentID)
	if c == nil {
		return "", false
	}
	return c.Writer, true
}

func (s *store) editComment(postID, commentID int, content string) (remote.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, _ := s.findComment(postID, commentID)
	if c == nil {
		return remote.Comment{}, false
	}
	c.Content = content
	return c.Comment, true
}

func (s *store) deleteComment(postID, commentID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, i := s.findComment(postID, commentID)
	if i < 0 {
		return false
	}
	cs := s.comments[postID]
	s.comments[postID] = append(cs[:i:i], cs[i+1:]...)
	return true
}

func (s *store) listComments(postID int) ([]remote.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.posts[postID]; !ok {
		return nil, false
	}
	out := make([]remote.Comment, 0, len(s.comments[postID]))
	for _, c := range s.comments[postID] {
		out = append(out, c.Comment)
	}
	return out, true
}

func (s *store) addReport(subjectID int) remote.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReport++
	r := remote.Report{ReportID: s.nextReport, SubjectID: subjectID, ReportedAt: s.now()}
	s.reports = append(s.reports, r)
	return r
}

// seed fills an empty board with a few posts.
func (s *store) seed() {
	p1 := s.addPost("alice", "Welcome to the board", "Say hello below.")
	s.addPost("alice", "Weekly thread", "What are you working on?")
	p3 := s.addPost("bob", "Looking for feedback", "Please review my draft.")
	s.addComment(p1.ID, "bob", "Hello!")
	s.addComment(p3.ID, "alice", "Happy to help.")
	s.setLike(p1.ID, "bob", true)
}
