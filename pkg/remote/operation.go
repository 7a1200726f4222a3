package remote

import (
	"fmt"
	"net/http"
	"strconv"
)

// Operation names a backend call.
type Operation int

const (
	OpLike Operation = iota + 1
	OpUnlike
	OpEditPost
	OpDeletePost
	OpCreateComment
	OpEditComment
	OpDeleteComment
	OpReportPost
	OpReportComment
	OpGetPost
	OpListPosts
	OpListMyPosts
	OpListMyLikes
	OpListComments
)

type route struct {
	name   string
	method string
	// path builds the request path from the post id and comment id.
	path func(id, commentID int) string
	// needsID is set for operations on a single post.
	needsID bool
	// comment operations take a CommentRef payload.
	comment bool
	// paged operations take a PageRequest payload.
	paged bool
}

func postPath(id, _ int) string { return "/posts/" + strconv.Itoa(id) }

func commentPath(id, commentID int) string {
	return fmt.Sprintf("/posts/%d/comments/%d", id, commentID)
}

func fixedPath(p string) func(int, int) string {
	return func(int, int) string { return p }
}

var routes = map[Operation]route{
	OpLike: {name: "like", method: http.MethodPost, needsID: true,
		path: func(id, _ int) string { return postPath(id, 0) + "/likes" }},
	OpUnlike: {name: "unlike", method: http.MethodDelete, needsID: true,
		path: func(id, _ int) string { return postPath(id, 0) + "/likes" }},
	OpEditPost:   {name: "editPost", method: http.MethodPatch, needsID: true, path: postPath},
	OpDeletePost: {name: "deletePost", method: http.MethodDelete, needsID: true, path: postPath},
	OpCreateComment: {name: "createComment", method: http.MethodPost, needsID: true,
		path: func(id, _ int) string { return postPath(id, 0) + "/comments" }},
	OpEditComment:   {name: "editComment", method: http.MethodPatch, needsID: true, comment: true, path: commentPath},
	OpDeleteComment: {name: "deleteComment", method: http.MethodDelete, needsID: true, comment: true, path: commentPath},
	OpReportPost: {name: "reportPost", method: http.MethodPost, needsID: true,
		path: func(id, _ int) string { return postPath(id, 0) + "/reports" }},
	OpReportComment: {name: "reportComment", method: http.MethodPost, needsID: true, comment: true,
		path: func(id, commentID int) string { return commentPath(id, commentID) + "/reports" }},
	OpGetPost:     {name: "getPost", method: http.MethodGet, needsID: true, path: postPath},
	OpListPosts:   {name: "listPosts", method: http.MethodGet, paged: true, path: fixedPath("/posts")},
	OpListMyPosts: {name: "listMyPosts", method: http.MethodGet, paged: true, path: fixedPath("/posts/me")},
	OpListMyLikes: {name: "listMyLikes", method: http.MethodGet, paged: true, path: fixedPath("/likes")},
	OpListComments: {name: "listComments", method: http.MethodGet, needsID: true,
		path: func(id, _ int) string { return postPath(id, 0) + "/comments" }},
}

// String returns the operation's name as used in logs and metrics.
func (op Operation) String() string {
	if r, ok := routes[op]; ok {
		return r.name
	}
	return "Operation(" + strconv.Itoa(int(op)) + ")"
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	_, ok := routes[op]
	return ok
}

// Method returns the HTTP method op is sent with.
func (op Operation) Method() string {
	return routes[op].method
}

// Mutates reports whether op changes server state.
func (op Operation) Mutates() bool {
	return op.Valid() && routes[op].method != http.MethodGet
}
