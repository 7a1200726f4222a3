package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/agora-dev/agora/internal/errors"
	"github.com/agora-dev/agora/pkg/middleware"
)

// Credentials are sent to the login endpoint.
type Credentials struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates and stores the session cookie in the client's jar.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	if err := validate.Struct(creds); err != nil {
		return errors.New("A161").WithDetail("username and password are required").Wrap(err)
	}
	ctx = middleware.WithOperation(ctx, "login")
	req, err := c.buildRequest(ctx, http.MethodPost, "/auth/login", nil, creds)
	if err != nil {
		return err
	}
	_, err = c.do(req, "login", 0)
	return err
}

// LikePost likes a post and returns the server's like state.
func (c *Client) LikePost(ctx context.Context, id int) (LikeResult, error) {
	raw, err := c.Perform(ctx, OpLike, id, nil)
	if err != nil {
		return LikeResult{}, err
	}
	return decodeLike(raw, true)
}

// UnlikePost removes the current user's like.
func (c *Client) UnlikePost(ctx context.Context, id int) (LikeResult, error) {
	raw, err := c.Perform(ctx, OpUnlike, id, nil)
	if err != nil {
		return LikeResult{}, err
	}
	return decodeLike(raw, false)
}

// decodeLike reads {likeCount, liked|isLiked}. A missing likeCount is 0 and
// a missing liked flag is the state the operation requested.
func decodeLike(raw json.RawMessage, liked bool) (LikeResult, error) {
	var wire struct {
		LikeCount *int  `json:"likeCount"`
		Liked     *bool `json:"liked"`
		IsLiked   *bool `json:"isLiked"`
	}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &wire); err != nil {
			return LikeResult{}, malformed(err)
		}
	}
	res := LikeResult{Liked: liked}
	if wire.LikeCount != nil {
		res.LikeCount = max(0, *wire.LikeCount)
	}
	switch {
	case wire.Liked != nil:
		res.Liked = *wire.Liked
	case wire.IsLiked != nil:
		res.Liked = *wire.IsLiked
	}
	return res, nil
}

// GetPost fetches one post.
func (c *Client) GetPost(ctx context.Context, id int) (Post, error) {
	raw, err := c.Perform(ctx, OpGetPost, id, nil)
	if err != nil {
		return Post{}, err
	}
	return decodeInto[Post](raw)
}

// EditPost updates a post's title and content.
func (c *Client) EditPost(ctx context.Context, id int, in PostInput) (Post, error) {
	raw, err := c.Perform(ctx, OpEditPost, id, in)
	if err != nil {
		return Post{}, err
	}
	p, err := decodeInto[Post](raw)
	if err != nil {
		return Post{}, err
	}
	if p.ID == 0 {
		p.ID, p.Title, p.Content = id, in.Title, in.Content
	}
	return p, nil
}

// DeletePost deletes a post.
func (c *Client) DeletePost(ctx context.Context, id int) error {
	_, err := c.Perform(ctx, OpDeletePost, id, nil)
	return err
}

// CreateComment adds a comment to a post.
func (c *Client) CreateComment(ctx context.Context, postID int, content string) (Comment, error) {
	in := CommentInput{Content: content}
	raw, err := c.Perform(ctx, OpCreateComment, postID, in)
	if err != nil {
		return Comment{}, err
	}
	cm, err := decodeInto[Comment](raw)
	if err != nil {
		return Comment{}, err
	}
	if cm.PostID == 0 {
		cm.PostID = postID
	}
	if cm.Content == "" {
		cm.Content = content
	}
	return cm, nil
}

// EditComment replaces a comment's content.
func (c *Client) EditComment(ctx context.Context, postID, commentID int, content string) (Comment, error) {
	ref := CommentRef{CommentID: commentID, Body: CommentInput{Content: content}}
	raw, err := c.Perform(ctx, OpEditComment, postID, ref)
	if err != nil {
		return Comment{}, err
	}
	cm, err := decodeInto[Comment](raw)
	if err != nil {
		return Comment{}, err
	}
	if cm.ID == 0 {
		cm.ID, cm.PostID, cm.Content = commentID, postID, content
	}
	return cm, nil
}

// DeleteComment deletes a comment.
func (c *Client) DeleteComment(ctx context.Context, postID, commentID int) error {
	_, err := c.Perform(ctx, OpDeleteComment, postID, CommentRef{CommentID: commentID})
	return err
}

// ListComments lists a post's comments.
func (c *Client) ListComments(ctx context.Context, postID int) ([]Comment, error) {
	raw, err := c.Perform(ctx, OpListComments, postID, nil)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		return decodeInto[[]Comment](raw)
	}
	var wire struct {
		CommentList []Comment `json:"commentList"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, malformed(err)
		}
	}
	return wire.CommentList, nil
}

// ReportPost reports a post.
func (c *Client) ReportPost(ctx context.Context, id int, reason string) (Report, error) {
	raw, err := c.Perform(ctx, OpReportPost, id, ReportInput{Reason: reason})
	if err != nil {
		return Report{}, err
	}
	return decodeReport(raw, id)
}

// ReportComment reports a comment.
func (c *Client) ReportComment(ctx context.Context, postID, commentID int, reason string) (Report, error) {
	ref := CommentRef{CommentID: commentID, Body: ReportInput{Reason: reason}}
	raw, err := c.Perform(ctx, OpReportComment, postID, ref)
	if err != nil {
		return Report{}, err
	}
	return decodeReport(raw, commentID)
}

func decodeReport(raw json.RawMessage, subjectID int) (Report, error) {
	r, err := decodeInto[Report](raw)
	if err != nil {
		return Report{}, err
	}
	if r.SubjectID == 0 {
		r.SubjectID = subjectID
	}
	return r, nil
}

// ListPosts lists all posts.
func (c *Client) ListPosts(ctx context.Context, page PageRequest) (Page[Post], error) {
	return c.listPosts(ctx, OpListPosts, page)
}

// ListMyPosts lists the current user's posts.
func (c *Client) ListMyPosts(ctx context.Context, page PageRequest) (Page[Post], error) {
	return c.listPosts(ctx, OpListMyPosts, page)
}

// ListMyLikes lists the posts the current user liked.
func (c *Client) ListMyLikes(ctx context.Context, page PageRequest) (Page[Post], error) {
	return c.listPosts(ctx, OpListMyLikes, page)
}

func (c *Client) listPosts(ctx context.Context, op Operation, page PageRequest) (Page[Post], error) {
	raw, err := c.Perform(ctx, op, 0, page)
	if err != nil {
		return Page[Post]{}, err
	}
	return decodePage[Post](raw, page.Index, c.bases[op])
}

// wirePage is the backend's list shape. Page, when echoed, uses the
// endpoint's wire base.
type wirePage struct {
	PostList      json.RawMessage `json:"postList"`
	ListSize      int             `json:"listSize"`
	TotalPage     int             `json:"totalPage"`
	TotalElements int             `json:"totalElements"`
	IsFirst       bool            `json:"isFirst"`
	IsLast        bool            `json:"isLast"`
	Page          *int            `json:"page"`
}

func decodePage[T any](raw json.RawMessage, index, base int) (Page[T], error) {
	var wire wirePage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &wire); err != nil {
			return Page[T]{}, malformed(err)
		}
	}
	p := Page[T]{
		Index:         index,
		ListSize:      wire.ListSize,
		TotalPage:     wire.TotalPage,
		TotalElements: wire.TotalElements,
		IsFirst:       wire.IsFirst,
		IsLast:        wire.IsLast,
	}
	if wire.Page != nil {
		p.Index = max(0, *wire.Page-base)
	}
	if present(wire.PostList) {
		if err := json.Unmarshal(wire.PostList, &p.Items); err != nil {
			return Page[T]{}, malformed(err)
		}
	}
	if p.ListSize == 0 {
		p.ListSize = len(p.Items)
	}
	return p, nil
}

func decodeInto[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, malformed(err)
	}
	return v, nil
}

func malformed(err error) error {
	return errors.New("A105").Wrap(err)
}
